package swarm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

// DefaultAzureAPIVersion is used when no Azure API version is configured.
const DefaultAzureAPIVersion = "2024-06-01"

// OpenAIClient defines the interface for OpenAI API interactions
type OpenAIClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

type completionFunc func(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)

// openAIClientWrapper wraps the OpenAI client
type openAIClientWrapper struct {
	newCompletion completionFunc
}

func newClientWrapper(opts ...option.RequestOption) *openAIClientWrapper {
	client := openai.NewClient(opts...)
	return &openAIClientWrapper{newCompletion: client.Chat.Completions.New}
}

// NewOpenAIClient creates a new OpenAI client wrapper
func NewOpenAIClient(apiKey string) OpenAIClient {
	if apiKey == "" {
		return nil
	}
	return newClientWrapper(option.WithAPIKey(apiKey))
}

// NewOpenAIClientWithBaseURL creates a new OpenAI client wrapper with a custom base URL
func NewOpenAIClientWithBaseURL(apiKey string, baseURL string) OpenAIClient {
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		return newClientWrapper(option.WithAPIKey(apiKey))
	}
	return newClientWrapper(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL))
}

// NewAzureOpenAIClient creates a new OpenAI client wrapper for an Azure
// OpenAI resource. Requests are routed to the deployment named by the Model
// field of each request.
func NewAzureOpenAIClient(apiKey, endpoint, apiVersion string) OpenAIClient {
	if apiKey == "" || endpoint == "" {
		return nil
	}
	if apiVersion == "" {
		apiVersion = DefaultAzureAPIVersion
	}
	return newClientWrapper(
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(apiKey),
	)
}

// CreateChatCompletion implements OpenAIClient interface
func (c *openAIClientWrapper) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	completion, err := c.newCompletion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	return completion, nil
}
