// Package swarm runs tool-calling agents against OpenAI-compatible chat
// completion endpoints, including Azure OpenAI deployments.
//
// An Agent carries instructions and a list of AgentFunctions. Swarm.Run sends
// the conversation to the model, executes the tool calls in the reply, appends
// their results as tool messages and repeats until the model answers without
// calling a tool or RunOptions.MaxTurns is reached. A function may return a
// Result naming another Agent to hand the conversation over.
//
// Functions built from Go code describe their arguments with Parameter values;
// functions generated from an OpenAPI document (see package openapi) implement
// SchemaProvider and supply a JSON schema directly.
package swarm
