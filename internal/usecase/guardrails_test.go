package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"concierge/internal/infra/logger"
)

func TestGuardrailsDisabledPassesThrough(t *testing.T) {
	llm := &fakeLLM{responses: []string{"rewritten"}}
	g := NewGuardrails(llm, nil, "", false, logger.Discard())

	got := g.Review(context.Background(), "original", ReviewContext{})
	assert.Equal(t, "original", got.Response)
	assert.False(t, got.Modified)
	assert.Zero(t, llm.callCount())
}

func TestGuardrailsRewritesResponse(t *testing.T) {
	llm := &fakeLLM{responses: []string{"A politer version."}}
	g := NewGuardrails(llm, nil, "", true, logger.Discard())

	got := g.Review(context.Background(), "No. Figure it out yourself.", ReviewContext{
		AgentName: "Tech Support Agent", Confidence: 0.8, UserInput: "how do I reset",
	})
	assert.Equal(t, "A politer version.", got.Response)
	assert.True(t, got.Modified)
}

func TestGuardrailsUnchangedResponseIsNotModified(t *testing.T) {
	llm := &fakeLLM{responses: []string{"Here is how to reset your router."}}
	g := NewGuardrails(llm, nil, "", true, logger.Discard())

	got := g.Review(context.Background(), "Here is how to reset your router.", ReviewContext{})
	assert.False(t, got.Modified)
}

func TestGuardrailsFailurePassesThrough(t *testing.T) {
	llm := &fakeLLM{err: assert.AnError}
	g := NewGuardrails(llm, nil, "", true, logger.Discard())

	got := g.Review(context.Background(), "original", ReviewContext{})
	assert.Equal(t, "original", got.Response)
	assert.False(t, got.Modified)
}

func TestGuardrailsEmptyReviewPassesThrough(t *testing.T) {
	llm := &fakeLLM{responses: []string{"   "}}
	g := NewGuardrails(llm, nil, "", true, logger.Discard())

	got := g.Review(context.Background(), "original", ReviewContext{})
	assert.Equal(t, "original", got.Response)
	assert.False(t, got.Modified)
}

func TestGuardrailsUsesDedicatedAgent(t *testing.T) {
	cat, behaviors := testCatalog(agentDef("guard", "Guardrails Agent"))
	behaviors["guard"].response = "Reviewed and corrected."
	llm := &fakeLLM{responses: []string{"generic review, should not be used"}}
	g := NewGuardrails(llm, cat, "Guardrails Agent", true, logger.Discard())

	got := g.Review(context.Background(), "raw agent output", ReviewContext{})
	assert.Equal(t, "Reviewed and corrected.", got.Response)
	assert.True(t, got.Modified)
	assert.Equal(t, 1, behaviors["guard"].callCount())
	assert.Zero(t, llm.callCount())
}

func TestGuardrailsMissingDedicatedAgentFallsBackToGeneric(t *testing.T) {
	cat, _ := testCatalog(agentDef("billing", "Billing Agent"))
	llm := &fakeLLM{responses: []string{"generic rewrite"}}
	g := NewGuardrails(llm, cat, "Nonexistent Agent", true, logger.Discard())

	got := g.Review(context.Background(), "raw output", ReviewContext{})
	assert.Equal(t, "generic rewrite", got.Response)
	assert.Equal(t, 1, llm.callCount())
}
