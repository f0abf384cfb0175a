package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge/internal/domain"
	"concierge/internal/infra/logger"
)

type spyMatcher struct {
	match *PatternMatch
	calls int
}

func (s *spyMatcher) Match(string, []*CatalogAgent) *PatternMatch {
	s.calls++
	return s.match
}

type spyScorer struct {
	match *SemanticMatch
	calls int
}

func (s *spyScorer) Select(context.Context, string, []*CatalogAgent, []domain.Message) *SemanticMatch {
	s.calls++
	return s.match
}

type stubContinuity struct {
	dec   ContinuityDecision
	calls int
}

func (s *stubContinuity) ShouldContinue(context.Context, string, *CatalogAgent, []domain.Message) ContinuityDecision {
	s.calls++
	return s.dec
}

type stubSpecial struct {
	sc    *SpecialCase
	calls int
}

func (s *stubSpecial) Classify(context.Context, string) *SpecialCase {
	s.calls++
	return s.sc
}

func testRouter(cat *Catalog, deps RouterDeps) *Router {
	deps.Catalog = cat
	if deps.Config.FallbackGeneralConfidence == 0 {
		deps.Config = RouterConfig{
			PatternFirst:              true,
			GeneralAgentName:          "General Conversation Agent",
			FallbackGeneralConfidence: 0.5,
			FallbackFirstConfidence:   0.2,
		}
	}
	deps.Logger = logger.Discard()
	return NewRouter(deps)
}

func TestRouterSpecialCaseShortCircuits(t *testing.T) {
	cat, _ := testCatalog(agentDef("billing", "Billing Agent"))
	special := &stubSpecial{sc: &SpecialCase{
		Category: domain.SpecialGreeting, Confidence: 0.95, Response: "Hello!",
	}}
	patterns := &spyMatcher{}
	semantic := &spyScorer{}

	r := testRouter(cat, RouterDeps{Patterns: patterns, Semantic: semantic, Special: special})
	got, err := r.Select(context.Background(), "hi", "", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.OrchestratorAgentID, got.AgentID)
	assert.Equal(t, domain.MethodSpecialCase, got.Method)
	assert.Equal(t, "Hello!", got.Response)
	assert.True(t, got.ShortCircuit())
	// Downstream stages are never consulted.
	assert.Zero(t, patterns.calls)
	assert.Zero(t, semantic.calls)
}

func TestRouterEmptyCatalogIsAnError(t *testing.T) {
	cat, _ := testCatalog()
	r := testRouter(cat, RouterDeps{Patterns: &spyMatcher{}, Semantic: &spyScorer{}})

	got, err := r.Select(context.Background(), "I need a refund", "", nil)
	require.ErrorIs(t, err, domain.ErrNoAgentsAvailable)
	assert.Equal(t, domain.MethodNone, got.Method)
	assert.Equal(t, domain.CodeCatalogEmpty, domain.ErrorCodeOf(err))
}

func TestRouterContinuityPinsPreviousAgent(t *testing.T) {
	cat, _ := testCatalog(
		agentDef("billing", "Billing Agent"),
		agentDef("tech", "Tech Support Agent"),
	)
	continuity := &stubContinuity{dec: ContinuityDecision{Continue: true, Confidence: 0.8}}
	patterns := &spyMatcher{}

	r := testRouter(cat, RouterDeps{Patterns: patterns, Continuity: continuity})
	history := continuityHistory()

	got, err := r.Select(context.Background(), "still not working", "tech", history)
	require.NoError(t, err)
	assert.Equal(t, "tech", got.AgentID)
	assert.Equal(t, domain.MethodContinuity, got.Method)
	assert.Equal(t, 0.8, got.Confidence)
	assert.Zero(t, patterns.calls)
}

func TestRouterContinuitySkippedWithoutHistory(t *testing.T) {
	cat, _ := testCatalog(agentDef("tech", "Tech Support Agent",
		domain.Pattern{Type: domain.PatternLiteral, Value: "wifi"}))
	continuity := &stubContinuity{dec: ContinuityDecision{Continue: true, Confidence: 0.9}}

	r := testRouter(cat, RouterDeps{
		Patterns:   NewPatternMatcher(logger.Discard()),
		Continuity: continuity,
	})

	// No prior turns: continuity must not even be consulted.
	got, err := r.Select(context.Background(), "wifi is down", "tech", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.MethodPattern, got.Method)
	assert.Zero(t, continuity.calls)
}

func TestRouterPatternPrecedesSemantic(t *testing.T) {
	cat, _ := testCatalog(agentDef("billing", "Billing Agent",
		domain.Pattern{Type: domain.PatternLiteral, Value: "refund"}))
	semantic := &spyScorer{match: &SemanticMatch{Confidence: 0.9}}

	r := testRouter(cat, RouterDeps{
		Patterns: NewPatternMatcher(logger.Discard()),
		Semantic: semantic,
	})

	got, err := r.Select(context.Background(), "I want a refund", "", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.MethodPattern, got.Method)
	assert.Equal(t, "billing", got.AgentID)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, "refund", got.MatchedPattern)
	// The costly semantic stage never ran.
	assert.Zero(t, semantic.calls)
}

func TestRouterSemanticWhenNoPatternMatch(t *testing.T) {
	cat, _ := testCatalog(
		agentDef("billing", "Billing Agent"),
		agentDef("tech", "Tech Support Agent"),
	)
	tech, _ := cat.ByID("tech")
	semantic := &spyScorer{match: &SemanticMatch{
		Agent: tech, Confidence: 0.75, Method: domain.MethodSemanticLLM, Explanation: "tech terms",
	}}

	r := testRouter(cat, RouterDeps{Patterns: &spyMatcher{}, Semantic: semantic})
	got, err := r.Select(context.Background(), "my screen flickers", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "tech", got.AgentID)
	assert.Equal(t, domain.MethodSemanticLLM, got.Method)
	assert.Equal(t, 0.75, got.Confidence)
}

func TestRouterFallsBackToGeneralAgent(t *testing.T) {
	cat, _ := testCatalog(
		agentDef("billing", "Billing Agent"),
		agentDef("general", "General Conversation Agent"),
	)

	r := testRouter(cat, RouterDeps{Patterns: &spyMatcher{}, Semantic: &spyScorer{}})
	got, err := r.Select(context.Background(), "what's the weather", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "general", got.AgentID)
	assert.Equal(t, domain.MethodFallbackGeneral, got.Method)
	assert.Equal(t, 0.5, got.Confidence)
}

func TestRouterFallsBackToFirstAgentWithoutGeneral(t *testing.T) {
	cat, _ := testCatalog(
		agentDef("billing", "Billing Agent"),
		agentDef("tech", "Tech Support Agent"),
	)

	r := testRouter(cat, RouterDeps{Patterns: &spyMatcher{}, Semantic: &spyScorer{}})
	got, err := r.Select(context.Background(), "what's the weather", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "billing", got.AgentID)
	assert.Equal(t, domain.MethodFallbackFirst, got.Method)
	assert.Equal(t, 0.2, got.Confidence)
}

func TestRouterFallbackIsDeterministic(t *testing.T) {
	cat, _ := testCatalog(
		agentDef("billing", "Billing Agent"),
		agentDef("general", "General Conversation Agent"),
	)
	r := testRouter(cat, RouterDeps{Patterns: &spyMatcher{}, Semantic: &spyScorer{}})

	for i := 0; i < 5; i++ {
		got, err := r.Select(context.Background(), "hmm", "", nil)
		require.NoError(t, err)
		assert.Equal(t, "general", got.AgentID)
		assert.Equal(t, 0.5, got.Confidence)
	}
}

func TestRouterPatternLastWhenPatternFirstDisabled(t *testing.T) {
	cat, _ := testCatalog(agentDef("billing", "Billing Agent",
		domain.Pattern{Type: domain.PatternLiteral, Value: "refund"}))
	billing, _ := cat.ByID("billing")
	semantic := &spyScorer{match: &SemanticMatch{
		Agent: billing, Confidence: 0.7, Method: domain.MethodSemanticLLM,
	}}

	r := NewRouter(RouterDeps{
		Catalog:  cat,
		Patterns: NewPatternMatcher(logger.Discard()),
		Semantic: semantic,
		Config: RouterConfig{
			PatternFirst:              false,
			GeneralAgentName:          "General Conversation Agent",
			FallbackGeneralConfidence: 0.5,
			FallbackFirstConfidence:   0.2,
		},
		Logger: logger.Discard(),
	})

	got, err := r.Select(context.Background(), "I want a refund", "", nil)
	require.NoError(t, err)
	// Semantic runs first when pattern-first is off.
	assert.Equal(t, domain.MethodSemanticLLM, got.Method)
	assert.Equal(t, 1, semantic.calls)
}
