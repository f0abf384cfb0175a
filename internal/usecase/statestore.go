package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/trace"

	"concierge/internal/domain"
	"concierge/internal/infra/tracer"
)

// RetryPolicy bounds the retry/backoff loop around the persistence
// backend. It applies only to persistence, never to LLM calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is used when a zero policy is supplied.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    10 * time.Second,
}

// StateStore is the durable orchestration-state surface: snapshots,
// checkpoints, rollback, and pending-operation recovery, all wrapped in
// the retry policy. Exhausted retries surface as structured errors; the
// store never panics into orchestration logic.
type StateStore struct {
	backend domain.StateBackend
	policy  RetryPolicy
	logger  *slog.Logger

	// sleep is injectable for tests; defaults to a context-aware sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewStateStore creates a state store.
func NewStateStore(backend domain.StateBackend, policy RetryPolicy, logger *slog.Logger) *StateStore {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy
	}
	return &StateStore{
		backend: backend,
		policy:  policy,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// MostRecentState returns the current (non-checkpoint) state for a
// session, or nil when the session has no stored state yet.
func (s *StateStore) MostRecentState(ctx context.Context, sessionID string) (*domain.OrchestrationState, error) {
	var rec *domain.StateRecord
	err := s.withRetry(ctx, "StateStore.MostRecentState", func() error {
		var err error
		rec, err = s.backend.LatestState(ctx, sessionID)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return recordToState(rec)
}

// PersistState appends a non-checkpoint snapshot and returns its ID.
func (s *StateStore) PersistState(ctx context.Context, sessionID string, data domain.StateData) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "statestore.persist")
	defer span.End()

	rec, err := stateToRecord(sessionID, data, "", false)
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}
	if err := s.withRetry(ctx, "StateStore.PersistState", func() error {
		return s.backend.Insert(ctx, rec)
	}); err != nil {
		tracer.RecordError(span, err)
		return "", err
	}
	tracer.SetOK(span)
	return rec.ID, nil
}

// CreateCheckpoint writes a named checkpoint snapshot. Recreating an
// existing name appends a new row; the latest row for a name wins on
// restore, which makes retried creates harmless.
func (s *StateStore) CreateCheckpoint(ctx context.Context, sessionID, name string, data domain.StateData) (*domain.OrchestrationState, error) {
	ctx, span := tracer.StartSpan(ctx, "statestore.checkpoint",
		trace.WithAttributes(tracer.StringAttr("checkpoint.name", name)))
	defer span.End()

	// Pre-flight before the write so a dead backend is diagnosed before
	// partial writes are attempted.
	if err := s.checkConnection(ctx, "StateStore.CreateCheckpoint"); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	rec, err := stateToRecord(sessionID, data, name, true)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if err := s.withRetry(ctx, "StateStore.CreateCheckpoint", func() error {
		return s.backend.Insert(ctx, rec)
	}); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	tracer.SetOK(span)
	return recordToState(&rec)
}

// RollbackToCheckpoint restores the named checkpoint, or the most recent
// checkpoint when name is empty. The restored data is re-persisted as a
// new current snapshot, so the rollback itself stays auditable in the row
// history; no rows are deleted. A missing checkpoint returns
// domain.ErrCheckpointNotFound, a normal negative result.
func (s *StateStore) RollbackToCheckpoint(ctx context.Context, sessionID, name string) (*domain.OrchestrationState, error) {
	ctx, span := tracer.StartSpan(ctx, "statestore.rollback",
		trace.WithAttributes(tracer.StringAttr("checkpoint.name", name)))
	defer span.End()

	if err := s.checkConnection(ctx, "StateStore.RollbackToCheckpoint"); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var rec *domain.StateRecord
	err := s.withRetry(ctx, "StateStore.RollbackToCheckpoint", func() error {
		var err error
		rec, err = s.backend.LatestCheckpoint(ctx, sessionID, name)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewDomainError("StateStore.RollbackToCheckpoint", domain.ErrCheckpointNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	restored, err := recordToState(rec)
	if err != nil {
		return nil, err
	}

	// Reactivate the checkpoint's data as the current state.
	current, err := stateToRecord(sessionID, restored.Data, "", false)
	if err != nil {
		return nil, err
	}
	if err := s.withRetry(ctx, "StateStore.RollbackToCheckpoint", func() error {
		return s.backend.Insert(ctx, current)
	}); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("rolled back to checkpoint",
		"session", sessionID, "checkpoint", restored.CheckpointName)
	tracer.SetOK(span)
	return restored, nil
}

// ListCheckpoints returns the session's checkpoints, newest first.
func (s *StateStore) ListCheckpoints(ctx context.Context, sessionID string) ([]domain.CheckpointInfo, error) {
	var out []domain.CheckpointInfo
	err := s.withRetry(ctx, "StateStore.ListCheckpoints", func() error {
		var err error
		out, err = s.backend.ListCheckpoints(ctx, sessionID)
		return err
	})
	return out, err
}

// SessionInfo returns stored-state counts for a session.
func (s *StateStore) SessionInfo(ctx context.Context, sessionID string) (domain.SessionCounts, error) {
	var counts domain.SessionCounts
	err := s.withRetry(ctx, "StateStore.SessionInfo", func() error {
		var err error
		counts, err = s.backend.Counts(ctx, sessionID)
		return err
	})
	return counts, err
}

// ProcessPendingOperations drains operations that were queued but not yet
// applied, persisting the updated state. Used to recover from partial
// failures between compute and persist.
func (s *StateStore) ProcessPendingOperations(ctx context.Context, sessionID string, data domain.StateData) (domain.StateData, error) {
	if len(data.PendingOps) == 0 {
		return data, nil
	}

	updated := data.Clone()
	for _, op := range updated.PendingOps {
		if err := applyPendingOp(&updated, op); err != nil {
			s.logger.Warn("dropping unprocessable pending operation",
				"session", sessionID, "kind", op.Kind, "error", err)
		}
	}
	updated.PendingOps = nil

	if _, err := s.PersistState(ctx, sessionID, updated); err != nil {
		return data, err
	}
	return updated, nil
}

// applyPendingOp applies one queued operation to the state data.
func applyPendingOp(data *domain.StateData, op domain.PendingOperation) error {
	switch op.Kind {
	case "increment_counter":
		var p struct {
			Name string `json:"name"`
			By   int    `json:"by"`
		}
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return err
		}
		if p.By == 0 {
			p.By = 1
		}
		if data.Counters == nil {
			data.Counters = make(map[string]int)
		}
		data.Counters[p.Name] += p.By
		return nil
	case "append_trace":
		var entry domain.TraceEntry
		if err := json.Unmarshal(op.Payload, &entry); err != nil {
			return err
		}
		data.Trace = append(data.Trace, entry)
		return nil
	default:
		return fmt.Errorf("unknown pending operation kind %q", op.Kind)
	}
}

// checkConnection is the pre-flight before write-heavy operations.
func (s *StateStore) checkConnection(ctx context.Context, op string) error {
	if err := s.backend.Ping(ctx); err != nil {
		return domain.NewDomainError(op, domain.ErrStatePersistence, "backend unreachable: "+err.Error())
	}
	return nil
}

// withRetry runs fn with bounded exponential backoff. Not-found results
// are terminal, never retried. Exhausted retries are wrapped in
// ErrStatePersistence.
func (s *StateStore) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < s.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.backoff(attempt-1)); err != nil {
				return domain.NewDomainError(op, domain.ErrStatePersistence, err.Error())
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, domain.ErrNotFound) {
			return lastErr
		}
		s.logger.Warn("state backend operation failed",
			"op", op, "attempt", attempt+1, "max_attempts", s.policy.MaxAttempts, "error", lastErr)
	}
	return domain.NewDomainError(op, domain.ErrStatePersistence,
		fmt.Sprintf("%d attempts exhausted: %v", s.policy.MaxAttempts, lastErr))
}

// backoff computes exponential backoff with jitter for the given
// attempt (0-based).
func (s *StateStore) backoff(attempt int) time.Duration {
	delay := s.policy.BaseDelay * time.Duration(1<<uint(attempt))
	if s.policy.MaxDelay > 0 && delay > s.policy.MaxDelay {
		delay = s.policy.MaxDelay
	}
	// Add 0-25% jitter.
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// stateToRecord serializes state data into a backend record with a fresh
// ULID.
func stateToRecord(sessionID string, data domain.StateData, checkpointName string, isCheckpoint bool) (domain.StateRecord, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return domain.StateRecord{}, domain.NewDomainError("StateStore.marshal", err, sessionID)
	}
	now := time.Now().UTC()
	return domain.StateRecord{
		ID:             generateULID(now),
		SessionID:      sessionID,
		StateData:      payload,
		CheckpointName: checkpointName,
		IsCheckpoint:   isCheckpoint,
		CreatedAt:      now,
	}, nil
}

// recordToState deserializes a backend record.
func recordToState(rec *domain.StateRecord) (*domain.OrchestrationState, error) {
	var data domain.StateData
	if err := json.Unmarshal(rec.StateData, &data); err != nil {
		return nil, domain.NewDomainError("StateStore.unmarshal", err, rec.SessionID)
	}
	return &domain.OrchestrationState{
		ID:             rec.ID,
		SessionID:      rec.SessionID,
		Data:           data,
		CheckpointName: rec.CheckpointName,
		IsCheckpoint:   rec.IsCheckpoint,
		CreatedAt:      rec.CreatedAt,
	}, nil
}
