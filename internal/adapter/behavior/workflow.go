package behavior

import (
	"context"
	"strings"

	"concierge/internal/domain"
	"concierge/internal/infra/config"
)

// Workflow runs an ordered list of steps over a base behavior. Presence of
// a workflow changes behavior via delegation: each step feeds the previous
// step's output back through the base behavior with the step prompt.
type Workflow struct {
	steps []config.WorkflowStep
	base  domain.Behavior
}

// NewWorkflow creates a workflow behavior delegating to base.
func NewWorkflow(steps []config.WorkflowStep, base domain.Behavior) *Workflow {
	return &Workflow{steps: steps, base: base}
}

// Process implements domain.Behavior. Steps run sequentially; the final
// step's response is the agent response, with every step's output kept in
// the result metadata.
func (b *Workflow) Process(ctx context.Context, message string, turnCtx map[string]any) (*domain.ProcessResult, error) {
	if len(b.steps) == 0 {
		return b.base.Process(ctx, message, turnCtx)
	}

	stepOutputs := make(map[string]string, len(b.steps))
	current := message
	for _, step := range b.steps {
		input := step.Prompt
		input = strings.ReplaceAll(input, "{{message}}", message)
		input = strings.ReplaceAll(input, "{{previous}}", current)

		res, err := b.base.Process(ctx, input, turnCtx)
		if err != nil {
			return nil, domain.WrapOp("workflow step "+step.Name, err)
		}
		current = res.Response
		stepOutputs[step.Name] = res.Response
	}

	return &domain.ProcessResult{
		Response: current,
		Success:  true,
		Metadata: map[string]any{"workflow_steps": stepOutputs},
	}, nil
}

// Compile-time interface check.
var _ domain.Behavior = (*Workflow)(nil)
