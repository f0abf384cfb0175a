package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"concierge/internal/domain"
	"concierge/internal/infra/tracer"
)

// Matcher is the deterministic pattern stage of the cascade.
type Matcher interface {
	Match(message string, agents []*CatalogAgent) *PatternMatch
}

// Scorer is the semantic stage of the cascade.
type Scorer interface {
	Select(ctx context.Context, message string, agents []*CatalogAgent, history []domain.Message) *SemanticMatch
}

// ContinuityChecker decides whether to keep the previous agent.
type ContinuityChecker interface {
	ShouldContinue(ctx context.Context, message string, lastAgent *CatalogAgent, history []domain.Message) ContinuityDecision
}

// SpecialClassifier detects greeting/goodbye/handoff short circuits.
type SpecialClassifier interface {
	Classify(ctx context.Context, message string) *SpecialCase
}

// RouterConfig holds the cascade tuning knobs.
type RouterConfig struct {
	// PatternFirst runs the pattern matcher before semantic selection.
	PatternFirst bool
	// GeneralAgentName designates the general-conversation fallback.
	GeneralAgentName string
	// FallbackGeneralConfidence is reported for the general fallback.
	FallbackGeneralConfidence float64
	// FallbackFirstConfidence is reported for the first-agent fallback.
	FallbackFirstConfidence float64
}

// RouterDeps holds injected dependencies for the router.
type RouterDeps struct {
	Catalog    *Catalog
	Patterns   Matcher
	Semantic   Scorer
	Continuity ContinuityChecker
	Special    SpecialClassifier
	Config     RouterConfig
	Logger     *slog.Logger
}

// Router is the selection state machine. Each stage is a guard that may
// terminate selection early; the cascade always produces an actionable
// decision unless the catalog itself is empty.
type Router struct {
	deps RouterDeps
}

// NewRouter creates a router.
func NewRouter(deps RouterDeps) *Router {
	if deps.Config.FallbackGeneralConfidence <= 0 {
		deps.Config.FallbackGeneralConfidence = 0.5
	}
	if deps.Config.FallbackFirstConfidence <= 0 {
		deps.Config.FallbackFirstConfidence = 0.2
	}
	if deps.Config.GeneralAgentName == "" {
		deps.Config.GeneralAgentName = "General Conversation Agent"
	}
	return &Router{deps: deps}
}

// Select produces the routing decision for one turn. The only error is
// domain.ErrNoAgentsAvailable; every other condition resolves through the
// fallback cascade.
func (r *Router) Select(ctx context.Context, message, lastAgentID string, history []domain.Message) (domain.SelectionResult, error) {
	ctx, span := tracer.StartSpan(ctx, "router.select")
	defer span.End()

	// 1. Special case: greeting/goodbye/handoff bypasses agents entirely.
	if r.deps.Special != nil {
		if sc := r.deps.Special.Classify(ctx, message); sc != nil {
			r.deps.Logger.Debug("special case detected",
				"category", sc.Category, "confidence", sc.Confidence)
			tracer.SetOK(span)
			return domain.SelectionResult{
				AgentID:     domain.OrchestratorAgentID,
				Confidence:  sc.Confidence,
				Method:      domain.MethodSpecialCase,
				Explanation: string(sc.Category),
				Response:    sc.Response,
			}, nil
		}
	}

	agents := r.deps.Catalog.Agents()
	if len(agents) == 0 {
		err := domain.NewDomainError("Router.Select", domain.ErrNoAgentsAvailable, "")
		tracer.RecordError(span, err)
		return domain.SelectionResult{Method: domain.MethodNone}, err
	}

	// 2. Continuity: keep the previous agent for an ongoing task.
	if r.deps.Continuity != nil && lastAgentID != "" && len(history) >= 2 {
		if last, err := r.deps.Catalog.ByID(lastAgentID); err == nil {
			if dec := r.deps.Continuity.ShouldContinue(ctx, message, last, history); dec.Continue {
				r.deps.Logger.Debug("continuing with previous agent",
					"agent", last.ID, "confidence", dec.Confidence)
				tracer.SetOK(span)
				return domain.SelectionResult{
					AgentID:     last.ID,
					Confidence:  dec.Confidence,
					Method:      domain.MethodContinuity,
					Explanation: "continues the previous task",
				}, nil
			}
		}
	}

	// 3+4. Pattern match and semantic selection. Pattern-first checks the
	// cheap deterministic patterns before any semantic call; disabling it
	// flips the order, keeping patterns as the backup.
	if r.deps.Config.PatternFirst {
		if res, ok := r.tryPatterns(message, agents); ok {
			tracer.SetOK(span)
			return res, nil
		}
		if res, ok := r.trySemantic(ctx, message, agents, history); ok {
			tracer.SetOK(span)
			return res, nil
		}
	} else {
		if res, ok := r.trySemantic(ctx, message, agents, history); ok {
			tracer.SetOK(span)
			return res, nil
		}
		if res, ok := r.tryPatterns(message, agents); ok {
			tracer.SetOK(span)
			return res, nil
		}
	}

	// Fallback: the designated general-conversation agent.
	if general, err := r.deps.Catalog.ByName(r.deps.Config.GeneralAgentName); err == nil {
		r.deps.Logger.Debug("falling back to general agent", "agent", general.ID)
		tracer.SetOK(span)
		return domain.SelectionResult{
			AgentID:     general.ID,
			Confidence:  r.deps.Config.FallbackGeneralConfidence,
			Method:      domain.MethodFallbackGeneral,
			Explanation: "no agent cleared the selection threshold",
		}, nil
	}

	// Last resort: the first catalog entry at minimal confidence.
	first := agents[0]
	r.deps.Logger.Debug("falling back to first catalog agent", "agent", first.ID)
	tracer.SetOK(span)
	return domain.SelectionResult{
		AgentID:     first.ID,
		Confidence:  r.deps.Config.FallbackFirstConfidence,
		Method:      domain.MethodFallbackFirst,
		Explanation: "no agent cleared the selection threshold and no general agent exists",
	}, nil
}

func (r *Router) tryPatterns(message string, agents []*CatalogAgent) (domain.SelectionResult, bool) {
	if r.deps.Patterns == nil {
		return domain.SelectionResult{}, false
	}
	pm := r.deps.Patterns.Match(message, agents)
	if pm == nil {
		return domain.SelectionResult{}, false
	}
	return domain.SelectionResult{
		AgentID:        pm.Agent.ID,
		Confidence:     pm.Confidence,
		Method:         domain.MethodPattern,
		Explanation:    fmt.Sprintf("matched pattern %q", pm.Pattern.Value),
		MatchedPattern: pm.Pattern.Value,
	}, true
}

func (r *Router) trySemantic(ctx context.Context, message string, agents []*CatalogAgent, history []domain.Message) (domain.SelectionResult, bool) {
	if r.deps.Semantic == nil {
		return domain.SelectionResult{}, false
	}
	sm := r.deps.Semantic.Select(ctx, message, agents, history)
	if sm == nil {
		return domain.SelectionResult{}, false
	}
	return domain.SelectionResult{
		AgentID:     sm.Agent.ID,
		Confidence:  sm.Confidence,
		Method:      sm.Method,
		Explanation: sm.Explanation,
	}, true
}
