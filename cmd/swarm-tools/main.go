// Command swarm-tools runs tool-calling agents on an Azure OpenAI deployment.
package main

func main() {
	Execute()
}
