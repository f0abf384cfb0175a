package usecase

import (
	"log/slog"
	"strings"

	"concierge/internal/domain"
)

// PatternMatch is a successful deterministic match. Confidence is fixed
// at 1.0: pattern matches are authoritative.
type PatternMatch struct {
	Agent      *CatalogAgent
	Confidence float64
	Pattern    domain.Pattern
}

// PatternMatcher evaluates a message against each agent's literal/regex
// patterns. Pure function over its inputs; compilation happened at
// catalog load.
type PatternMatcher struct {
	logger *slog.Logger
}

// NewPatternMatcher creates a pattern matcher.
func NewPatternMatcher(logger *slog.Logger) *PatternMatcher {
	return &PatternMatcher{logger: logger}
}

// Match iterates agents in catalog order and each agent's patterns by
// descending priority; the first match wins. Returns nil when nothing
// matches.
func (m *PatternMatcher) Match(message string, agents []*CatalogAgent) *PatternMatch {
	lower := strings.ToLower(message)

	for _, agent := range agents {
		for _, p := range agent.patterns {
			matched := false
			switch {
			case p.re != nil:
				matched = p.re.MatchString(message)
			case p.literal != "":
				matched = strings.Contains(lower, p.literal)
			}
			if matched {
				m.logger.Debug("pattern matched",
					"agent", agent.ID, "pattern", p.src.Value, "priority", p.src.Priority)
				return &PatternMatch{Agent: agent, Confidence: 1.0, Pattern: p.src}
			}
		}
	}
	return nil
}
