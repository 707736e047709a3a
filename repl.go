package swarm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"go.uber.org/zap"
)

// RunDemoLoop starts an interactive conversation with agent. Each input line
// is sent as a user message; the conversation history is kept between turns.
// The loop ends on EOF, "exit" or "quit", or when ctx is cancelled.
func RunDemoLoop(ctx context.Context, s *Swarm, agent *Agent, in io.Reader, out io.Writer, opts RunOptions) error {
	sessionID := uuid.NewString()
	logger := s.logger.With(zap.String("session", sessionID))
	logger.Info("starting demo loop", zap.String("agent", agent.Name))

	fmt.Fprintf(out, "Starting %s (type 'exit' to quit)\n", agent.Name)

	scanner := bufio.NewScanner(in)
	var messages []map[string]interface{}
	activeAgent := agent

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(out, "\033[90mUser\033[0m: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}

		messages = append(messages, map[string]interface{}{
			"role":    "user",
			"content": input,
		})

		response, err := s.Run(ctx, activeAgent, messages, opts)
		if err != nil {
			logger.Error("run failed", zap.Error(err))
			fmt.Fprintf(out, "Error: %v\n", err)
			// Drop the failed input so the next turn starts clean.
			messages = messages[:len(messages)-1]
			continue
		}

		PrettyPrintMessages(out, response.Messages)
		messages = append(messages, response.Messages...)
		opts.ContextVariables = response.ContextVariables
		if response.Agent != nil {
			activeAgent = response.Agent
		}
	}
}

// PrettyPrintMessages writes assistant messages and their tool calls to out.
func PrettyPrintMessages(out io.Writer, messages []map[string]interface{}) {
	for _, msg := range messages {
		if msg["role"] != "assistant" {
			continue
		}
		sender, _ := msg["sender"].(string)

		if content, _ := msg["content"].(string); content != "" {
			fmt.Fprintf(out, "\033[94m%s\033[0m: %s\n", sender, content)
		}

		toolCalls, _ := msg["tool_calls"].([]openai.ChatCompletionMessageToolCall)
		for _, tc := range toolCalls {
			args := strings.ReplaceAll(tc.Function.Arguments, ":", "=")
			fmt.Fprintf(out, "\033[94m%s\033[0m: \033[95m%s\033[0m(%s)\n", sender, tc.Function.Name, strings.Trim(args, "{}"))
		}
	}
}
