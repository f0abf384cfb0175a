package config

import (
	"fmt"
	"strings"

	"concierge/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateRouting(cfg, ve)
	validateExecution(cfg, ve)
	validateState(cfg, ve)
	validateLLM(cfg, ve)
	validateAgents(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateRouting(cfg *Config, ve *ValidationError) {
	r := cfg.Routing
	for name, v := range map[string]float64{
		"routing.semantic_threshold":          r.SemanticThreshold,
		"routing.similarity_floor":            r.SimilarityFloor,
		"routing.continuity_floor":            r.ContinuityFloor,
		"routing.special_case_floor":          r.SpecialCaseFloor,
		"routing.fallback_general_confidence": r.FallbackGeneralConfidence,
		"routing.fallback_first_confidence":   r.FallbackFirstConfidence,
	} {
		if v < 0 || v > 1 {
			ve.Add("%s must be in [0,1], got %v", name, v)
		}
	}
	if r.SemanticStrategy != "llm" && r.SemanticStrategy != "vector" {
		ve.Add("routing.semantic_strategy must be \"llm\" or \"vector\", got %q", r.SemanticStrategy)
	}
	if r.SemanticStrategy == "vector" && !cfg.Embedding.Enabled {
		ve.Add("routing.semantic_strategy \"vector\" requires embedding.enabled")
	}
	if r.ContinuityWindow <= 0 {
		ve.Add("routing.continuity_window must be > 0")
	}
}

func validateExecution(cfg *Config, ve *ValidationError) {
	if cfg.Execution.DefaultTimeout <= 0 {
		ve.Add("execution.default_timeout must be > 0")
	}
}

func validateState(cfg *Config, ve *ValidationError) {
	if cfg.State.Path == "" {
		ve.Add("state.path must be set")
	}
	r := cfg.State.Retry
	if r.MaxAttempts <= 0 {
		ve.Add("state.retry.max_attempts must be > 0")
	}
	if r.BaseDelay <= 0 {
		ve.Add("state.retry.base_delay must be > 0")
	}
	if r.MaxDelay < r.BaseDelay {
		ve.Add("state.retry.max_delay must be >= base_delay")
	}
}

func validateLLM(cfg *Config, ve *ValidationError) {
	switch cfg.LLM.Provider {
	case "openai", "anthropic":
	default:
		ve.Add("llm.provider must be \"openai\" or \"anthropic\", got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Timeout <= 0 {
		ve.Add("llm.timeout must be > 0")
	}
}

func validateAgents(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool, len(cfg.Agents))
	for i, a := range cfg.Agents {
		if a.ID == "" {
			ve.Add("agents[%d].id must be set", i)
			continue
		}
		if seen[a.ID] {
			ve.Add("agents[%d]: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
		if a.Name == "" {
			ve.Add("agent %q: name must be set", a.ID)
		}
		switch a.Type {
		case domain.AgentTypeLLM, domain.AgentTypeRule, domain.AgentTypeRetrieval, domain.AgentTypeWorkflow:
		default:
			ve.Add("agent %q: unknown type %q", a.ID, a.Type)
		}
		switch a.Status {
		case domain.AgentStatusDraft, domain.AgentStatusActive, domain.AgentStatusArchived, "":
		default:
			ve.Add("agent %q: unknown status %q", a.ID, a.Status)
		}
		for j, p := range a.Patterns {
			switch p.Type {
			case domain.PatternLiteral, domain.PatternRegex, domain.PatternSemantic:
			default:
				ve.Add("agent %q: patterns[%d]: unknown type %q", a.ID, j, p.Type)
			}
			if p.Value == "" {
				ve.Add("agent %q: patterns[%d]: value must be set", a.ID, j)
			}
		}
		if a.Type == domain.AgentTypeRule && len(a.Rules) == 0 {
			ve.Add("agent %q: rule agents need at least one rule", a.ID)
		}
		if a.Type == domain.AgentTypeWorkflow && len(a.Workflow) == 0 {
			ve.Add("agent %q: workflow agents need at least one step", a.ID)
		}
	}
}
