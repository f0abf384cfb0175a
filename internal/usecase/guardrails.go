package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"concierge/internal/domain"
	"concierge/internal/infra/tracer"
)

// ReviewContext carries the selection metadata handed to the guardrails
// pass alongside the candidate response.
type ReviewContext struct {
	AgentName  string
	Confidence float64
	UserInput  string
}

// GuardrailsResult is the outcome of a guardrails review.
type GuardrailsResult struct {
	Response string
	Modified bool
}

// Guardrails post-processes agent output against policy. A dedicated
// guardrails agent is preferred; otherwise a generic LLM review prompt is
// used. The stage is best-effort: any failure passes the original
// response through unchanged.
type Guardrails struct {
	llm       domain.LLMProvider
	catalog   *Catalog
	agentName string // dedicated guardrails agent, empty = generic prompt
	enabled   bool
	logger    *slog.Logger
}

// NewGuardrails creates the guardrails stage.
func NewGuardrails(llm domain.LLMProvider, catalog *Catalog, agentName string, enabled bool, logger *slog.Logger) *Guardrails {
	return &Guardrails{
		llm:       llm,
		catalog:   catalog,
		agentName: agentName,
		enabled:   enabled,
		logger:    logger,
	}
}

// Review returns the (possibly rewritten) response. The response is only
// replaced when the reviewer materially changed it.
func (g *Guardrails) Review(ctx context.Context, response string, rctx ReviewContext) GuardrailsResult {
	passthrough := GuardrailsResult{Response: response}
	if !g.enabled {
		return passthrough
	}

	ctx, span := tracer.StartSpan(ctx, "guardrails.review")
	defer span.End()

	reviewed, err := g.runReview(ctx, response, rctx)
	if err != nil {
		// Best-effort stage: failure must not drop the turn.
		g.logger.Warn("guardrails review failed, passing response through", "error", err)
		tracer.RecordError(span, err)
		return passthrough
	}

	reviewed = strings.TrimSpace(reviewed)
	if reviewed == "" || reviewed == strings.TrimSpace(response) {
		tracer.SetOK(span)
		return passthrough
	}

	g.logger.Debug("guardrails rewrote response", "agent", rctx.AgentName)
	tracer.SetOK(span)
	return GuardrailsResult{Response: reviewed, Modified: true}
}

func (g *Guardrails) runReview(ctx context.Context, response string, rctx ReviewContext) (string, error) {
	// Dedicated guardrails agent, when configured and present.
	if g.agentName != "" && g.catalog != nil {
		if agent, err := g.catalog.ByName(g.agentName); err == nil {
			res, err := agent.Behavior.Process(ctx, response, map[string]any{
				"source_agent": rctx.AgentName,
				"confidence":   rctx.Confidence,
				"user_input":   rctx.UserInput,
			})
			if err != nil {
				return "", domain.WrapOp("guardrails agent", err)
			}
			return res.Response, nil
		}
		g.logger.Warn("configured guardrails agent not in catalog", "agent", g.agentName)
	}

	// Generic review prompt.
	prompt := fmt.Sprintf(
		`Review this customer-service response for tone and policy. The customer asked: %q. The agent %q (confidence %.2f) replied:

%s

If the response is appropriate, return it unchanged. Otherwise return a corrected version. Return only the response text.`,
		rctx.UserInput, rctx.AgentName, rctx.Confidence, response)

	return g.llm.Complete(ctx, domain.CompletionRequest{
		System: "You review customer-service responses for tone and policy compliance.",
		Prompt: prompt,
	})
}
