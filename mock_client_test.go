package swarm

import (
	"context"
	"sync"

	"github.com/openai/openai-go"
)

// MockOpenAIClient mocks the OpenAI client for testing. Responses are
// returned in order; the last one repeats once the list is exhausted.
type MockOpenAIClient struct {
	mu        sync.Mutex
	responses []*openai.ChatCompletion
	calls     int
	params    []openai.ChatCompletionNewParams
	Error     error
}

func NewMockOpenAIClient(responses ...*openai.ChatCompletion) *MockOpenAIClient {
	return &MockOpenAIClient{responses: responses}
}

func (m *MockOpenAIClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.params = append(m.params, params)
	if m.Error != nil {
		return nil, m.Error
	}
	if len(m.responses) == 0 {
		return nil, nil
	}
	i := m.calls
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	m.calls++
	return m.responses[i], nil
}

// Requests returns the parameters of every request received so far.
func (m *MockOpenAIClient) Requests() []openai.ChatCompletionNewParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]openai.ChatCompletionNewParams(nil), m.params...)
}

// MockToolCall builds tool calls for mocked completions.
type MockToolCall struct {
	ID   string
	Name string
	Args string
}

func (m MockToolCall) ToOpenAI() openai.ChatCompletionMessageToolCall {
	return openai.ChatCompletionMessageToolCall{
		ID: m.ID,
		Function: openai.ChatCompletionMessageToolCallFunction{
			Name:      m.Name,
			Arguments: m.Args,
		},
		Type: "function",
	}
}

func textCompletion(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func toolCallCompletion(calls ...MockToolCall) *openai.ChatCompletion {
	toolCalls := make([]openai.ChatCompletionMessageToolCall, len(calls))
	for i, c := range calls {
		toolCalls[i] = c.ToOpenAI()
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{ToolCalls: toolCalls}},
		},
	}
}
