package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"concierge/internal/domain"
)

// SemanticStrategy selects how agent relevance is scored.
type SemanticStrategy string

const (
	StrategyLLM    SemanticStrategy = "llm"
	StrategyVector SemanticStrategy = "vector"
)

// SemanticMatch is a scored semantic selection.
type SemanticMatch struct {
	Agent       *CatalogAgent
	Confidence  float64
	Method      domain.SelectionMethod
	Explanation string
}

// SemanticSelector scores agent relevance for a message, either by an
// LLM-prompted ranking or by vector similarity against precomputed
// pattern embeddings. The external call is the dominant latency driver;
// both paths are bounded by the provider timeout.
type SemanticSelector struct {
	llm       domain.LLMProvider
	embedder  domain.EmbeddingProvider
	index     domain.EmbeddingIndex
	strategy  SemanticStrategy
	threshold float64
	simFloor  float64
	logger    *slog.Logger
}

// SemanticSelectorDeps holds injected dependencies for the selector.
type SemanticSelectorDeps struct {
	LLM       domain.LLMProvider
	Embedder  domain.EmbeddingProvider // vector strategy only
	Index     domain.EmbeddingIndex    // vector strategy only
	Strategy  SemanticStrategy
	Threshold float64 // minimum acceptable confidence
	SimFloor  float64 // minimum vector similarity
	Logger    *slog.Logger
}

// NewSemanticSelector creates a selector.
func NewSemanticSelector(deps SemanticSelectorDeps) *SemanticSelector {
	if deps.Strategy == "" {
		deps.Strategy = StrategyLLM
	}
	return &SemanticSelector{
		llm:       deps.LLM,
		embedder:  deps.Embedder,
		index:     deps.Index,
		strategy:  deps.Strategy,
		threshold: deps.Threshold,
		simFloor:  deps.SimFloor,
		logger:    deps.Logger,
	}
}

// Select returns the best-scoring agent above the configured threshold,
// or nil when no agent clears it. External-call failures and malformed
// LLM output are treated as no-match, never propagated as errors.
func (s *SemanticSelector) Select(ctx context.Context, message string, agents []*CatalogAgent, history []domain.Message) *SemanticMatch {
	if len(agents) == 0 {
		return nil
	}
	switch s.strategy {
	case StrategyVector:
		return s.selectVector(ctx, message, agents)
	default:
		return s.selectLLM(ctx, message, agents, history)
	}
}

// rankingResponse is the structured output requested from the LLM.
type rankingResponse struct {
	Scores      map[string]float64 `json:"scores"`
	Explanation string             `json:"explanation"`
}

func (s *SemanticSelector) selectLLM(ctx context.Context, message string, agents []*CatalogAgent, history []domain.Message) *SemanticMatch {
	prompt := buildRankingPrompt(message, agents, history)

	raw, err := s.llm.Complete(ctx, domain.CompletionRequest{
		System:   "You score customer-service agents for relevance to a message.",
		Prompt:   prompt,
		JSONOnly: true,
	})
	if err != nil {
		s.logger.Warn("semantic ranking call failed", "error", err)
		return nil
	}

	var ranked rankingResponse
	if err := decodeJSON(raw, &ranked); err != nil {
		s.logger.Warn("semantic ranking returned malformed JSON", "error", err)
		return nil
	}

	// Strictly greater score wins; exact ties keep the first-seen agent
	// in catalog order. Unknown agent ids are ignored.
	var (
		best      *CatalogAgent
		bestScore float64
	)
	for _, agent := range agents {
		score, ok := ranked.Scores[agent.ID]
		if !ok {
			continue
		}
		score = clamp01(score)
		if best == nil || score > bestScore {
			best = agent
			bestScore = score
		}
	}
	if best == nil {
		s.logger.Warn("semantic ranking contained no known agent ids")
		return nil
	}
	if bestScore < s.threshold {
		s.logger.Debug("semantic ranking below threshold",
			"agent", best.ID, "score", bestScore, "threshold", s.threshold)
		return nil
	}
	return &SemanticMatch{
		Agent:       best,
		Confidence:  bestScore,
		Method:      domain.MethodSemanticLLM,
		Explanation: ranked.Explanation,
	}
}

func (s *SemanticSelector) selectVector(ctx context.Context, message string, agents []*CatalogAgent) *SemanticMatch {
	if s.embedder == nil || s.index == nil {
		s.logger.Warn("vector strategy configured without embedder/index")
		return nil
	}

	vecs, err := s.embedder.Embed(ctx, []string{message})
	if err != nil || len(vecs) == 0 {
		s.logger.Warn("message embedding failed", "error", err)
		return nil
	}

	hits, err := s.index.Similar(ctx, vecs[0], len(agents))
	if err != nil {
		s.logger.Warn("similarity lookup failed", "error", err)
		return nil
	}

	byID := make(map[string]*CatalogAgent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}

	for _, hit := range hits {
		agent, ok := byID[hit.ID]
		if !ok {
			continue
		}
		if hit.Score < s.simFloor {
			// Hits are sorted best-first; nothing further can clear the floor.
			break
		}
		score := clamp01(hit.Score + maxBoost(agent))
		if score < s.threshold {
			continue
		}
		return &SemanticMatch{
			Agent:       agent,
			Confidence:  score,
			Method:      domain.MethodSemanticVector,
			Explanation: fmt.Sprintf("vector similarity %.2f", hit.Score),
		}
	}
	return nil
}

// maxBoost returns the largest confidence boost among the agent's
// semantic patterns.
func maxBoost(agent *CatalogAgent) float64 {
	var boost float64
	for _, p := range agent.Patterns {
		if p.Type == domain.PatternSemantic && p.ConfidenceBoost > boost {
			boost = p.ConfidenceBoost
		}
	}
	return boost
}

// buildRankingPrompt enumerates agents and asks for per-agent scores as
// structured JSON.
func buildRankingPrompt(message string, agents []*CatalogAgent, history []domain.Message) string {
	var sb strings.Builder
	sb.WriteString("Score each agent's relevance to the customer message on a 0.0-1.0 scale.\n\nAgents:\n")
	for _, a := range agents {
		fmt.Fprintf(&sb, "- id: %s, name: %s, description: %s\n", a.ID, a.Name, a.Description)
	}
	if n := len(history); n > 0 {
		sb.WriteString("\nRecent conversation:\n")
		for _, m := range lastN(history, 4) {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
	}
	fmt.Fprintf(&sb, "\nCustomer message: %q\n\n", message)
	sb.WriteString(`Respond with JSON: {"scores": {"<agent id>": <score>, ...}, "explanation": "<one sentence>"}`)
	return sb.String()
}

// lastN returns the trailing n messages.
func lastN(msgs []domain.Message, n int) []domain.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
