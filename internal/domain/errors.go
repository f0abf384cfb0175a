package domain

import (
	"errors"
	"fmt"
)

// Category sentinels — use with NewDomainError for component-specific errors.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the orchestration core.
var (
	// ErrNoAgentsAvailable indicates an empty catalog: a deployment or
	// configuration problem, distinct from a routing judgment call.
	ErrNoAgentsAvailable = fmt.Errorf("no agents available")
	// ErrNoAgentSelected indicates the executor was invoked without an
	// upstream selection.
	ErrNoAgentSelected = fmt.Errorf("no agent selected")
	ErrAgentNotFound   = fmt.Errorf("agent: %w", ErrNotFound)
	ErrAgentExecution  = fmt.Errorf("agent execution failed")
	ErrSessionNotFound = fmt.Errorf("session: %w", ErrNotFound)

	// ErrCheckpointNotFound is a normal negative result for rollback, not
	// an exceptional condition.
	ErrCheckpointNotFound = fmt.Errorf("checkpoint: %w", ErrNotFound)
	// ErrStatePersistence indicates the state backend failed after
	// exhausted retries.
	ErrStatePersistence = fmt.Errorf("state persistence failed")

	ErrSelectionFailed = fmt.Errorf("agent selection failed")
	ErrEmbeddingFailed = fmt.Errorf("embedding generation failed")
	ErrConfigLoad      = fmt.Errorf("failed to load configuration")
)

// ErrorCode is the stable machine-readable code surfaced in turn metadata.
type ErrorCode string

const (
	CodeNone             ErrorCode = ""
	CodeCatalogEmpty     ErrorCode = "catalog_empty"
	CodeAgentExecution   ErrorCode = "agent_execution_failure"
	CodePersistence      ErrorCode = "persistence_failure"
	CodeCheckpointNotFnd ErrorCode = "checkpoint_not_found"
	CodeTimeout          ErrorCode = "timeout"
	CodeInternal         ErrorCode = "internal"
)

// ErrorCodeOf maps an error to its ErrorCode for turn metadata.
func ErrorCodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, ErrNoAgentsAvailable):
		return CodeCatalogEmpty
	case errors.Is(err, ErrCheckpointNotFound):
		return CodeCheckpointNotFnd
	case errors.Is(err, ErrStatePersistence):
		return CodePersistence
	case errors.Is(err, ErrAgentExecution), errors.Is(err, ErrNoAgentSelected):
		return CodeAgentExecution
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	default:
		return CodeInternal
	}
}

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "StateStore.PersistState")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
