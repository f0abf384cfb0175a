// Package llm provides LLM provider adapters plus the resilience
// decorators (circuit breaker, rate limiter) wrapped around them.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"concierge/internal/domain"
)

const defaultOpenAITimeout = 15 * time.Second

// OpenAIProvider implements domain.LLMProvider using the official
// OpenAI Chat Completions client.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// OpenAIOption configures the OpenAI provider.
type OpenAIOption func(*OpenAIProvider)

// WithOpenAIAPIKey overrides the API key (default: OPENAI_API_KEY env).
func WithOpenAIAPIKey(key string) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.client = openai.NewClient(option.WithAPIKey(key))
	}
}

// WithOpenAITimeout sets the default per-call timeout.
func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(p *OpenAIProvider) { p.timeout = d }
}

// NewOpenAIProvider creates an OpenAI provider. The model is used for
// requests that do not specify their own.
func NewOpenAIProvider(model string, temperature float64, maxTokens int, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		client:      openai.NewClient(),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     defaultOpenAITimeout,
	}
	if p.model == "" {
		p.model = openai.ChatModelGPT4oMini
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Complete implements domain.LLMProvider.
func (p *OpenAIProvider) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = p.model
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               model,
		Messages:            messages,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if req.JSONOnly {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", mapProviderError("openai", ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", domain.ErrProviderError)
	}
	return resp.Choices[0].Message.Content, nil
}

// Name implements domain.LLMProvider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Compile-time interface check.
var _ domain.LLMProvider = (*OpenAIProvider)(nil)
