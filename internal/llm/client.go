package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// Client is the interface for LLM interactions.
type Client interface {
	ChatCompletion(ctx context.Context, messages []Message, opts Options) (*Response, error)
	Model() string
}

// OpenAICompatClient works with any OpenAI-compatible API.
type OpenAICompatClient struct {
	client  *openai.Client
	model   string
	baseURL string
}

// NewClient creates an LLM client. SDK retries are disabled; callers wrap
// the client with their own retry policy.
func NewClient(baseURL, apiKey, model string) *OpenAICompatClient {
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
	return &OpenAICompatClient{
		client:  &client,
		model:   model,
		baseURL: baseURL,
	}
}

func (c *OpenAICompatClient) Model() string { return c.model }

func (c *OpenAICompatClient) ChatCompletion(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    convertMessages(messages),
		Temperature: param.NewOpt(opts.Temperature),
	}
	if opts.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	model := completion.Model
	if model == "" {
		model = c.model
	}
	return &Response{
		Message: AssistantMessage(completion.Choices[0].Message.Content),
		Model:   model,
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}, nil
}

func convertMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		}
	}
	return out
}

// StatusCode extracts the HTTP status of a provider error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsRetryable reports whether a failed call is worth repeating: rate
// limiting and server-side failures.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch StatusCode(err) {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
