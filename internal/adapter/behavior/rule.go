package behavior

import (
	"context"
	"log/slog"
	"strings"

	"concierge/internal/domain"
	"concierge/internal/infra/config"
)

const ruleFallbackResponse = "I'm sorry, I don't have an answer for that. Could you rephrase your question?"

// Rule is the deterministic behavior variant: trigger keywords select a
// canned response template. No external calls.
type Rule struct {
	rules     []config.RuleDef
	templates map[string]string
	logger    *slog.Logger
}

// NewRule creates a rule-based behavior.
func NewRule(rules []config.RuleDef, templates map[string]string, logger *slog.Logger) *Rule {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rule{rules: rules, templates: templates, logger: logger}
}

// Process implements domain.Behavior. First matching rule wins.
func (b *Rule) Process(_ context.Context, message string, _ map[string]any) (*domain.ProcessResult, error) {
	lower := strings.ToLower(message)

	for _, rule := range b.rules {
		for _, kw := range rule.Keywords {
			if kw == "" || !strings.Contains(lower, strings.ToLower(kw)) {
				continue
			}
			resp, ok := b.templates[rule.Template]
			if !ok {
				b.logger.Warn("rule references unknown template", "template", rule.Template)
				continue
			}
			return &domain.ProcessResult{
				Response: resp,
				Success:  true,
				Metadata: map[string]any{"matched_keyword": kw, "template": rule.Template},
			}, nil
		}
	}

	if resp, ok := b.templates["default"]; ok {
		return &domain.ProcessResult{Response: resp, Success: true}, nil
	}
	return &domain.ProcessResult{Response: ruleFallbackResponse, Success: true}, nil
}

// Compile-time interface check.
var _ domain.Behavior = (*Rule)(nil)
