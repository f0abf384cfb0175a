package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"concierge/internal/domain"
)

// ContinuityDecision is the outcome of a continuity check.
type ContinuityDecision struct {
	Continue   bool
	Confidence float64
}

// ContinuityDetector decides whether a new message continues the task the
// previous agent was handling, avoiding a full (expensive) re-selection
// every turn of a multi-turn task.
type ContinuityDetector struct {
	llm    domain.LLMProvider
	floor  float64 // minimum confidence to accept a continuation
	window int     // recent turns included in the prompt
	logger *slog.Logger
}

// NewContinuityDetector creates a detector. floor and window fall back to
// 0.6 and 4 when zero.
func NewContinuityDetector(llm domain.LLMProvider, floor float64, window int, logger *slog.Logger) *ContinuityDetector {
	if floor <= 0 {
		floor = 0.6
	}
	if window <= 0 {
		window = 4
	}
	return &ContinuityDetector{llm: llm, floor: floor, window: window, logger: logger}
}

// continuityResponse is the structured output requested from the LLM.
type continuityResponse struct {
	Continue   bool    `json:"continue"`
	Confidence float64 `json:"confidence"`
}

// ShouldContinue classifies the message against the last agent's ongoing
// task. Callers only invoke it when a last agent exists and the history
// has at least two turns. LLM failures mean "don't continue"; the router
// falls through to full selection.
func (d *ContinuityDetector) ShouldContinue(ctx context.Context, message string, lastAgent *CatalogAgent, history []domain.Message) ContinuityDecision {
	prompt := d.buildPrompt(message, lastAgent, history)

	raw, err := d.llm.Complete(ctx, domain.CompletionRequest{
		System:   "You judge whether a customer message continues an ongoing support task.",
		Prompt:   prompt,
		JSONOnly: true,
	})
	if err != nil {
		d.logger.Warn("continuity check failed", "error", err)
		return ContinuityDecision{}
	}

	var resp continuityResponse
	if err := decodeJSON(raw, &resp); err != nil {
		d.logger.Warn("continuity check returned malformed JSON", "error", err)
		return ContinuityDecision{}
	}

	conf := clamp01(resp.Confidence)
	if !resp.Continue || conf < d.floor {
		return ContinuityDecision{Continue: false, Confidence: conf}
	}
	return ContinuityDecision{Continue: true, Confidence: conf}
}

func (d *ContinuityDetector) buildPrompt(message string, lastAgent *CatalogAgent, history []domain.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The customer was being helped by %q (%s).\n\nRecent conversation:\n",
		lastAgent.Name, lastAgent.Description)
	for _, m := range lastN(history, d.window) {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&sb, "\nNew message: %q\n\n", message)
	sb.WriteString(`Does the new message continue the same task? Respond with JSON: {"continue": <bool>, "confidence": <0.0-1.0>}`)
	return sb.String()
}
