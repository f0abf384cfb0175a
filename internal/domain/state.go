package domain

import (
	"context"
	"encoding/json"
	"time"
)

// TraceEntry is one observability record appended to the turn trace.
// Append-only within a turn.
type TraceEntry struct {
	Step      string         `json:"step"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// PendingOperation is an operation queued in state but not yet applied,
// used to recover from partial failures between compute and persist.
type PendingOperation struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StateData is the serializable conversation state carried in every
// orchestration snapshot. Each pipeline stage receives and returns it
// explicitly; there is no shared mutable map.
type StateData struct {
	Messages    []Message          `json:"messages"`
	LastAgentID string             `json:"last_agent_id,omitempty"`
	Confidence  float64            `json:"confidence,omitempty"`
	Method      SelectionMethod    `json:"method,omitempty"`
	Trace       []TraceEntry       `json:"trace,omitempty"`
	Counters    map[string]int     `json:"counters,omitempty"`
	PendingOps  []PendingOperation `json:"pending_ops,omitempty"`
}

// Clone returns a deep copy of the state data. Snapshots and checkpoints
// must not alias the live per-session state.
func (d StateData) Clone() StateData {
	cp := d
	cp.Messages = append([]Message(nil), d.Messages...)
	cp.Trace = make([]TraceEntry, len(d.Trace))
	for i, t := range d.Trace {
		cp.Trace[i] = t
		if t.Fields != nil {
			f := make(map[string]any, len(t.Fields))
			for k, v := range t.Fields {
				f[k] = v
			}
			cp.Trace[i].Fields = f
		}
	}
	if d.Counters != nil {
		c := make(map[string]int, len(d.Counters))
		for k, v := range d.Counters {
			c[k] = v
		}
		cp.Counters = c
	}
	cp.PendingOps = append([]PendingOperation(nil), d.PendingOps...)
	return cp
}

// OrchestrationState is one durable snapshot of a session's execution.
// For a given session the most recent non-checkpoint row is the current
// state; checkpoint rows are named restore points.
type OrchestrationState struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Data           StateData `json:"data"`
	CheckpointName string    `json:"checkpoint_name,omitempty"`
	IsCheckpoint   bool      `json:"is_checkpoint"`
	CreatedAt      time.Time `json:"created_at"`
}

// CheckpointInfo is a listing entry for a named checkpoint.
type CheckpointInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// StateRecord is the raw persistence shape handled by a StateBackend.
// StateData travels as serialized JSON so the backend stays schema-free.
type StateRecord struct {
	ID             string
	SessionID      string
	StateData      []byte
	CheckpointName string
	IsCheckpoint   bool
	CreatedAt      time.Time
}

// SessionCounts summarizes stored state for one session. States and
// Checkpoints are row counts; Messages is the conversation length in the
// current state. Backends leave Messages zero, the orchestrator fills it
// from the cached session or the latest snapshot.
type SessionCounts struct {
	Messages    int
	States      int
	Checkpoints int
	LastUpdate  time.Time
}

// StateBackend is the underlying storage for orchestration snapshots.
// Implementations return ErrNotFound for missing rows; transient failures
// are retried by the state store, not by the backend.
type StateBackend interface {
	// Insert appends one snapshot row.
	Insert(ctx context.Context, rec StateRecord) error
	// LatestState returns the most recent non-checkpoint row.
	LatestState(ctx context.Context, sessionID string) (*StateRecord, error)
	// LatestCheckpoint returns the most recent checkpoint row matching
	// name, or the most recent checkpoint of any name when name is empty.
	LatestCheckpoint(ctx context.Context, sessionID, name string) (*StateRecord, error)
	// ListCheckpoints returns checkpoint rows, newest first.
	ListCheckpoints(ctx context.Context, sessionID string) ([]CheckpointInfo, error)
	// Counts returns row counts and the last update time for a session.
	Counts(ctx context.Context, sessionID string) (SessionCounts, error)
	// Ping verifies the backend connection.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}
