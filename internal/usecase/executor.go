package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"concierge/internal/domain"
	"concierge/internal/infra/tracer"
)

// emaSmoothing is the smoothing factor for the rolling response-time
// average.
const emaSmoothing = 0.1

// execFallbackResponse is the user-safe reply when an agent fails. The
// raw error travels only through metadata and logs.
const execFallbackResponse = "I'm sorry, I ran into a problem handling that. Please try again in a moment."

// ExecutionResult is the contained outcome of one agent invocation.
type ExecutionResult struct {
	Response string
	Success  bool
	Err      error // nil on success; never surfaced in Response
	Elapsed  time.Duration
	Metadata map[string]any
}

// agentMetrics tracks rolling per-agent counters. Guarded by Executor.mu.
type agentMetrics struct {
	requests  int
	successes int
	errors    int
	avg       time.Duration
}

// Executor invokes the selected agent's processing capability with
// timeout and error containment: failures and panics become a contained
// failure result, never a propagated error.
type Executor struct {
	defaultTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	metrics map[string]*agentMetrics
}

// NewExecutor creates an executor. defaultTimeout bounds agents whose
// config sets none.
func NewExecutor(defaultTimeout time.Duration, logger *slog.Logger) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = 12 * time.Second
	}
	return &Executor{
		defaultTimeout: defaultTimeout,
		logger:         logger,
		metrics:        make(map[string]*agentMetrics),
	}
}

// Execute runs the agent's behavior for one message. A nil agent
// short-circuits with a deterministic failure rather than a null call.
func (e *Executor) Execute(ctx context.Context, agent *CatalogAgent, message string, turnCtx map[string]any) ExecutionResult {
	if agent == nil {
		return ExecutionResult{
			Response: execFallbackResponse,
			Err:      domain.ErrNoAgentSelected,
		}
	}

	ctx, span := tracer.StartSpan(ctx, "executor.execute",
		trace.WithAttributes(tracer.StringAttr("agent.id", agent.ID)),
	)
	defer span.End()

	timeout := agent.Config.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := e.invoke(ctx, agent, message, turnCtx)
	elapsed := time.Since(start)

	e.record(agent.ID, err == nil && result != nil && result.Success, elapsed)

	if err != nil {
		e.logger.Error("agent execution failed",
			"agent", agent.ID, "elapsed", elapsed, "error", err)
		tracer.RecordError(span, err)
		return ExecutionResult{
			Response: execFallbackResponse,
			Err:      fmt.Errorf("%w: %v", domain.ErrAgentExecution, err),
			Elapsed:  elapsed,
		}
	}

	tracer.SetOK(span)
	return ExecutionResult{
		Response: result.Response,
		Success:  result.Success,
		Elapsed:  elapsed,
		Metadata: result.Metadata,
	}
}

// invoke calls the behavior with panic containment.
func (e *Executor) invoke(ctx context.Context, agent *CatalogAgent, message string, turnCtx map[string]any) (result *domain.ProcessResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("agent %q panicked: %v", agent.ID, rec)
		}
	}()
	result, err = agent.Behavior.Process(ctx, message, turnCtx)
	if err == nil && result == nil {
		err = fmt.Errorf("agent %q returned no result", agent.ID)
	}
	return result, err
}

// record updates the agent's rolling metrics.
func (e *Executor) record(agentID string, success bool, elapsed time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.metrics[agentID]
	if !ok {
		m = &agentMetrics{}
		e.metrics[agentID] = m
	}
	m.requests++
	if success {
		m.successes++
	} else {
		m.errors++
	}
	if m.avg == 0 {
		m.avg = elapsed
	} else {
		m.avg = time.Duration(float64(m.avg)*(1-emaSmoothing) + float64(elapsed)*emaSmoothing)
	}
}

// Metrics returns a snapshot of an agent's rolling counters.
func (e *Executor) Metrics(agentID string) domain.AgentMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.metrics[agentID]
	if !ok {
		return domain.AgentMetrics{}
	}
	return domain.AgentMetrics{
		Requests:      m.requests,
		Successes:     m.successes,
		Errors:        m.errors,
		AvgProcessing: m.avg,
	}
}
