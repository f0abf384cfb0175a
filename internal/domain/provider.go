package domain

import (
	"context"
	"time"
)

// CompletionRequest is sent to an LLM provider. Prompt-level options only;
// provider identity and credentials live in the adapter.
type CompletionRequest struct {
	System      string        `json:"system,omitempty"`
	Prompt      string        `json:"prompt"`
	Model       string        `json:"model,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	// JSONOnly requests a structured JSON object response.
	JSONOnly bool `json:"json_only,omitempty"`
	// Timeout bounds the call; zero means the adapter default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// LLMProvider is the interface for any LLM backend. Callers treat every
// invocation as a suspension point; adapters enforce the request timeout.
type LLMProvider interface {
	// Complete sends a prompt and returns the generated text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the provider's identifier (e.g., "openai", "anthropic").
	Name() string
}
