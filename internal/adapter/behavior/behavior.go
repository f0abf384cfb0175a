// Package behavior implements the closed set of agent behavior variants:
// LLM-driven, rule-based, retrieval-based, and workflow-based. The
// orchestration core depends only on domain.Behavior; workflow behavior is
// composition over a base behavior, not a subclass hierarchy.
package behavior

import (
	"fmt"
	"log/slog"

	"concierge/internal/domain"
	"concierge/internal/infra/config"
)

// FromDef builds the behavior for one agent definition. The LLM provider
// is shared across agents; per-agent model/temperature/prompt come from
// the definition's config.
func FromDef(def config.AgentDef, provider domain.LLMProvider, logger *slog.Logger) (domain.Behavior, error) {
	switch def.Type {
	case domain.AgentTypeLLM:
		return NewLLM(def.Name, def.Config, provider), nil
	case domain.AgentTypeRule:
		return NewRule(def.Rules, def.Templates, logger), nil
	case domain.AgentTypeRetrieval:
		return NewRetrieval(def.Snippets, def.Config, provider), nil
	case domain.AgentTypeWorkflow:
		base := NewLLM(def.Name, def.Config, provider)
		return NewWorkflow(def.Workflow, base), nil
	default:
		return nil, fmt.Errorf("%w: agent %q has unknown type %q",
			domain.ErrInvalidInput, def.ID, def.Type)
	}
}
