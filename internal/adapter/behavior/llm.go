package behavior

import (
	"context"
	"fmt"
	"strings"

	"concierge/internal/domain"
)

// LLM is the prompt-driven behavior variant. One completion per message,
// with the agent's system prompt and the turn context rendered inline.
type LLM struct {
	agentName string
	cfg       domain.AgentConfig
	provider  domain.LLMProvider
}

// NewLLM creates an LLM-driven behavior.
func NewLLM(agentName string, cfg domain.AgentConfig, provider domain.LLMProvider) *LLM {
	return &LLM{agentName: agentName, cfg: cfg, provider: provider}
}

// Process implements domain.Behavior.
func (b *LLM) Process(ctx context.Context, message string, turnCtx map[string]any) (*domain.ProcessResult, error) {
	system := b.cfg.SystemPrompt
	if system == "" {
		system = fmt.Sprintf("You are %s, a customer service agent. Answer concisely and helpfully.", b.agentName)
	}

	prompt := message
	if hist := renderHistory(turnCtx); hist != "" {
		prompt = "Recent conversation:\n" + hist + "\n\nCustomer: " + message
	}

	resp, err := b.provider.Complete(ctx, domain.CompletionRequest{
		System:      system,
		Prompt:      prompt,
		Model:       b.cfg.Model,
		Temperature: b.cfg.Temperature,
		Timeout:     b.cfg.Timeout,
	})
	if err != nil {
		return nil, domain.WrapOp("llm behavior", err)
	}
	return &domain.ProcessResult{
		Response: strings.TrimSpace(resp),
		Success:  true,
	}, nil
}

// renderHistory formats the history slice carried in turn context, if any.
func renderHistory(turnCtx map[string]any) string {
	msgs, ok := turnCtx["history"].([]domain.Message)
	if !ok || len(msgs) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Compile-time interface check.
var _ domain.Behavior = (*LLM)(nil)
