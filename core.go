package swarm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmptyMessages indicates that the messages array is empty when making a request.
	ErrEmptyMessages = errors.New("messages cannot be empty")

	// ErrInvalidToolCall indicates that a tool call request was malformed or invalid.
	ErrInvalidToolCall = errors.New("invalid tool call")

	// ErrInvalidInstruction indicates that Agent.Instructions has an unsupported type.
	ErrInvalidInstruction = errors.New("invalid agent instructions")

	// ErrNoChoices indicates that the model returned a completion without choices.
	ErrNoChoices = errors.New("completion has no choices")
)

// ContextVariablesName is the key used to store context variables in function arguments.
const ContextVariablesName = "context_variables"

// DefaultMaxTurns bounds a run when RunOptions.MaxTurns is not set.
const DefaultMaxTurns = 10

// Swarm orchestrates interactions between agents and OpenAI's language models.
// It handles message processing, tool execution, and response management.
type Swarm struct {
	// Client is the interface to OpenAI's API
	Client OpenAIClient

	logger  *zap.Logger
	metrics *Metrics
}

// Option configures a Swarm.
type Option func(*Swarm)

// WithLogger sets the logger used by the Swarm.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Swarm) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables tool call metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Swarm) {
		s.metrics = m
	}
}

// RunOptions controls a single Run.
type RunOptions struct {
	// ContextVariables are passed to every function call
	ContextVariables map[string]interface{}
	// ModelOverride replaces the agent model when set
	ModelOverride string
	// MaxTurns bounds the number of assistant messages; DefaultMaxTurns if zero
	MaxTurns int
	// ExecuteTools runs tool calls; when false the run stops at the first tool call
	ExecuteTools bool
	// JSONMode requests a JSON object response
	JSONMode bool
}

// NewSwarm creates a new Swarm instance with the provided OpenAI client.
func NewSwarm(client OpenAIClient, opts ...Option) *Swarm {
	if client == nil {
		panic("OpenAI client cannot be nil")
	}
	s := &Swarm{Client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "swarm"))
	return s
}

// NewDefaultSwarm creates a new Swarm instance from the environment.
// OPENAI_API_KEY (and optional OPENAI_API_BASE) selects OpenAI; otherwise
// AZURE_API_KEY, AZURE_API_BASE and the optional AZURE_API_VERSION select
// Azure OpenAI.
func NewDefaultSwarm(opts ...Option) (*Swarm, error) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		return NewSwarm(NewOpenAIClientWithBaseURL(apiKey, os.Getenv("OPENAI_API_BASE")), opts...), nil
	}

	azureAPIKey := os.Getenv("AZURE_API_KEY")
	azureAPIBase := os.Getenv("AZURE_API_BASE")

	var missingEnvs []string
	if azureAPIKey == "" {
		missingEnvs = append(missingEnvs, "AZURE_API_KEY")
	}
	if azureAPIBase == "" {
		missingEnvs = append(missingEnvs, "AZURE_API_BASE")
	}
	if len(missingEnvs) > 0 {
		return nil, fmt.Errorf("required environment variables not set: %s", strings.Join(missingEnvs, ", "))
	}

	client := NewAzureOpenAIClient(azureAPIKey, azureAPIBase, os.Getenv("AZURE_API_VERSION"))
	return NewSwarm(client, opts...), nil
}

// getChatCompletion sends a request to the chat completion API for the
// active agent and the conversation so far.
func (s *Swarm) getChatCompletion(
	ctx context.Context,
	agent *Agent,
	history []map[string]interface{},
	contextVariables map[string]interface{},
	opts RunOptions,
) (*openai.ChatCompletion, error) {
	instructions, err := s.getInstructions(agent, contextVariables)
	if err != nil {
		return nil, err
	}

	model := opts.ModelOverride
	if model == "" {
		model = agent.Model
	}

	params := openai.ChatCompletionNewParams{
		Messages: prepareMessages(instructions, history, model),
		Model:    openai.ChatModel(model),
	}
	if opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}
	if tools := prepareTools(agent); len(tools) > 0 {
		params.Tools = tools
		if agent.ToolChoice != nil {
			params.ToolChoice = *agent.ToolChoice
		}
	}

	s.logger.Debug("getting chat completion",
		zap.String("agent", agent.Name),
		zap.String("model", model),
		zap.Int("messages", len(params.Messages)),
		zap.Int("tools", len(params.Tools)),
	)

	return s.Client.CreateChatCompletion(ctx, params)
}

// getInstructions safely extracts instructions from the agent based on its type.
func (s *Swarm) getInstructions(agent *Agent, contextVariables map[string]interface{}) (string, error) {
	switch i := agent.Instructions.(type) {
	case string:
		return i, nil
	case func(map[string]interface{}) string:
		return i(contextVariables), nil
	case func() string:
		return i(), nil
	default:
		return "", ErrInvalidInstruction
	}
}

func prepareTools(agent *Agent) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(agent.Functions))
	for _, f := range agent.Functions {
		if f == nil {
			continue
		}
		fn := FunctionToJSON(f)["function"].(map[string]interface{})
		params := withoutContextVariables(fn["parameters"])

		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        f.Name(),
				Description: openai.String(f.Description()),
				Parameters:  openai.FunctionParameters(params),
			},
		})
	}
	return tools
}

// withoutContextVariables returns the schema without the context_variables
// property. The schema may be shared by concurrent runs, so it is copied
// rather than modified.
func withoutContextVariables(schema interface{}) map[string]interface{} {
	params, _ := schema.(map[string]interface{})
	props, ok := params["properties"].(map[string]interface{})
	if !ok {
		return params
	}
	if _, found := props[ContextVariablesName]; !found {
		return params
	}

	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	trimmed := make(map[string]interface{}, len(props))
	for k, v := range props {
		if k != ContextVariablesName {
			trimmed[k] = v
		}
	}
	out["properties"] = trimmed
	return out
}

func prepareMessages(instructions string, history []map[string]interface{}, model string) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(instructions),
	}
	lower := strings.ToLower(model)
	if strings.Contains(lower, "o1") || strings.Contains(lower, "o3") || strings.Contains(lower, "deepseek") {
		messages = []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(instructions),
		}
	}

	for _, msg := range history {
		content, _ := msg["content"].(string)
		role, _ := msg["role"].(string)

		switch role {
		case "user":
			messages = append(messages, openai.UserMessage(content))
		case "system":
			// The agent instructions replace any system message in the history.
		case "tool":
			toolCallID, _ := msg["tool_call_id"].(string)
			messages = append(messages, openai.ToolMessage(content, toolCallID))
		default:
			assistantMsg := openai.AssistantMessage(content)
			if toolCalls, ok := msg["tool_calls"].([]openai.ChatCompletionMessageToolCall); ok && len(toolCalls) > 0 {
				toolCallParams := make([]openai.ChatCompletionMessageToolCallParam, len(toolCalls))
				for i, tc := range toolCalls {
					toolCallParams[i] = openai.ChatCompletionMessageToolCallParam{
						ID:   tc.ID,
						Type: tc.Type,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					}
				}
				assistantMsg.OfAssistant.ToolCalls = toolCallParams
			}
			messages = append(messages, assistantMsg)
		}
	}
	return messages
}

// handleFunctionResult processes the result from an agent function
func (s *Swarm) handleFunctionResult(result interface{}) (*Result, error) {
	switch v := result.(type) {
	case nil:
		return &Result{}, nil
	case *Result:
		return v, nil
	case Result:
		return &v, nil
	case *Agent:
		return &Result{
			Value: fmt.Sprintf(`{"assistant":%q}`, v.Name),
			Agent: v,
		}, nil
	default:
		str, err := stringify(v)
		if err != nil {
			return nil, err
		}
		return &Result{Value: str}, nil
	}
}

// toolOutcome is the result of one tool call within a turn.
type toolOutcome struct {
	message map[string]interface{}
	result  *Result
}

// handleToolCalls executes the tool calls of one assistant message. Calls run
// concurrently when parallel is set; messages keep the order of toolCalls.
func (s *Swarm) handleToolCalls(
	ctx context.Context,
	toolCalls []openai.ChatCompletionMessageToolCall,
	functions []AgentFunction,
	contextVariables map[string]interface{},
	parallel bool,
) (*Response, error) {
	if len(toolCalls) == 0 {
		return nil, fmt.Errorf("%w: no tool calls provided", ErrInvalidToolCall)
	}

	if contextVariables == nil {
		contextVariables = make(map[string]interface{})
	}

	functionMap := make(map[string]AgentFunction, len(functions))
	for _, f := range functions {
		if f != nil {
			functionMap[f.Name()] = f
		}
	}

	outcomes := make([]toolOutcome, len(toolCalls))
	if parallel && len(toolCalls) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i := range toolCalls {
			i := i
			g.Go(func() error {
				outcomes[i] = s.callTool(gctx, toolCalls[i], functionMap, copyVariables(contextVariables))
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range toolCalls {
			outcomes[i] = s.callTool(ctx, toolCalls[i], functionMap, copyVariables(contextVariables))
		}
	}

	response := &Response{
		Messages:         make([]map[string]interface{}, 0, len(toolCalls)),
		ContextVariables: copyVariables(contextVariables),
	}
	for _, o := range outcomes {
		response.Messages = append(response.Messages, o.message)
		if o.result == nil {
			continue
		}
		for k, v := range o.result.ContextVariables {
			response.ContextVariables[k] = v
		}
		if o.result.Agent != nil {
			response.Agent = o.result.Agent
		}
	}

	return response, nil
}

func (s *Swarm) callTool(
	ctx context.Context,
	toolCall openai.ChatCompletionMessageToolCall,
	functionMap map[string]AgentFunction,
	contextVariables map[string]interface{},
) toolOutcome {
	name := toolCall.Function.Name
	logger := s.logger.With(zap.String("tool", name), zap.String("tool_call_id", toolCall.ID))

	fail := func(outcome, errMsg string) toolOutcome {
		logger.Warn("tool call failed", zap.String("outcome", outcome), zap.String("error", errMsg))
		return toolOutcome{message: toolMessage(toolCall.ID, name, "Error: "+errMsg)}
	}

	fn, exists := functionMap[name]
	if !exists {
		s.metrics.observe(name, "not_found", 0)
		return fail("not_found", fmt.Sprintf("Tool %q not found in function map", name))
	}

	args := make(map[string]interface{})
	if strings.TrimSpace(toolCall.Function.Arguments) != "" {
		if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
			s.metrics.observe(name, "bad_arguments", 0)
			return fail("bad_arguments", fmt.Sprintf("Failed to parse arguments for tool %q: %v", name, err))
		}
	}
	args[ContextVariablesName] = contextVariables

	start := time.Now()
	rawResult, err := fn.Call(ctx, args)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.observe(name, "error", elapsed)
		return fail("error", fmt.Sprintf("Function %q execution failed: %v", name, err))
	}

	result, err := s.handleFunctionResult(rawResult)
	if err != nil {
		s.metrics.observe(name, "bad_result", elapsed)
		return fail("bad_result", fmt.Sprintf("Failed to handle result for tool %q: %v", name, err))
	}

	s.metrics.observe(name, "ok", elapsed)
	logger.Info("tool call", zap.Duration("elapsed", elapsed))

	message := toolMessage(toolCall.ID, name, result.Value)
	if result.Agent != nil {
		message["agent"] = result.Agent.Name
	}
	return toolOutcome{message: message, result: result}
}

func toolMessage(id, name, content string) map[string]interface{} {
	return map[string]interface{}{
		"role":         "tool",
		"tool_call_id": id,
		"tool_name":    name,
		"content":      content,
	}
}

func copyVariables(vars map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// Run executes an interaction with the model using the provided agent.
// Each turn sends the conversation to the model and, if the reply contains
// tool calls and opts.ExecuteTools is set, executes them and continues. The
// run ends when the model answers without tool calls or after opts.MaxTurns
// assistant messages.
//
// The returned Response holds only the messages produced by this run.
func (s *Swarm) Run(
	ctx context.Context,
	agent *Agent,
	messages []map[string]interface{},
	opts RunOptions,
) (*Response, error) {
	if len(messages) == 0 {
		return nil, ErrEmptyMessages
	}
	if agent == nil {
		return nil, errors.New("agent cannot be nil")
	}

	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	contextVariables := copyVariables(opts.ContextVariables)

	activeAgent := agent
	history := make([]map[string]interface{}, len(messages))
	copy(history, messages)
	initLen := len(messages)

	for turns := 0; turns < maxTurns; turns++ {
		completion, err := s.getChatCompletion(ctx, activeAgent, history, contextVariables, opts)
		if err != nil {
			return nil, err
		}
		if completion == nil || len(completion.Choices) == 0 {
			return nil, ErrNoChoices
		}

		choice := completion.Choices[0].Message
		message := map[string]interface{}{
			"content": choice.Content,
			"sender":  activeAgent.Name,
			"role":    "assistant",
		}
		if len(choice.ToolCalls) > 0 {
			message["tool_calls"] = choice.ToolCalls
		}
		history = append(history, message)

		if len(choice.ToolCalls) == 0 || !opts.ExecuteTools {
			s.logger.Debug("ending turn", zap.String("agent", activeAgent.Name), zap.Int("turns", turns+1))
			break
		}

		response, err := s.handleToolCalls(ctx, choice.ToolCalls, activeAgent.Functions, contextVariables, activeAgent.ParallelToolCalls)
		if err != nil {
			return nil, err
		}

		history = append(history, response.Messages...)
		for k, v := range response.ContextVariables {
			contextVariables[k] = v
		}
		if response.Agent != nil {
			s.logger.Info("agent handoff", zap.String("from", activeAgent.Name), zap.String("to", response.Agent.Name))
			activeAgent = response.Agent
		}
	}

	return &Response{
		Messages:         history[initLen:],
		Agent:            activeAgent,
		ContextVariables: contextVariables,
	}, nil
}
