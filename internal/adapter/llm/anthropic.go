package llm

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"concierge/internal/domain"
)

const defaultAnthropicTimeout = 15 * time.Second

// jsonOnlySuffix is appended when structured output is requested; the
// Messages API has no JSON response format parameter.
const jsonOnlySuffix = "\n\nRespond with a single JSON object and nothing else."

// AnthropicProvider implements domain.LLMProvider using the official
// Anthropic Messages client.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// AnthropicOption configures the Anthropic provider.
type AnthropicOption func(*AnthropicProvider)

// WithAnthropicAPIKey overrides the API key (default: ANTHROPIC_API_KEY env).
func WithAnthropicAPIKey(key string) AnthropicOption {
	return func(p *AnthropicProvider) {
		p.client = anthropic.NewClient(option.WithAPIKey(key))
	}
}

// WithAnthropicTimeout sets the default per-call timeout.
func WithAnthropicTimeout(d time.Duration) AnthropicOption {
	return func(p *AnthropicProvider) { p.timeout = d }
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(model string, temperature float64, maxTokens int, opts ...AnthropicOption) *AnthropicProvider {
	p := &AnthropicProvider{
		client:      anthropic.NewClient(),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     defaultAnthropicTimeout,
	}
	if p.model == "" {
		p.model = string(anthropic.ModelClaude3_5SonnetLatest)
	}
	if p.maxTokens <= 0 {
		p.maxTokens = 1024
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Complete implements domain.LLMProvider.
func (p *AnthropicProvider) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
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

	prompt := req.Prompt
	if req.JSONOnly {
		prompt += jsonOnlySuffix
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", mapProviderError("anthropic", ctx, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String(), nil
}

// Name implements domain.LLMProvider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Compile-time interface check.
var _ domain.LLMProvider = (*AnthropicProvider)(nil)
