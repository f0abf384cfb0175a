package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"concierge/internal/domain"
	"concierge/internal/infra/config"
	"concierge/internal/infra/logger"
)

// fakeLLM is a scripted LLM provider. Responses are returned in order;
// the last one repeats. A non-nil err fails every call.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (f *fakeLLM) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	i := f.calls - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// echoBehavior replies with a fixed response attributed to its agent.
type echoBehavior struct {
	mu       sync.Mutex
	agentID  string
	response string
	err      error
	panics   bool
	calls    int
}

func (b *echoBehavior) Process(_ context.Context, _ string, _ map[string]any) (*domain.ProcessResult, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.panics {
		panic("behavior exploded")
	}
	if b.err != nil {
		return nil, b.err
	}
	resp := b.response
	if resp == "" {
		resp = "response from " + b.agentID
	}
	return &domain.ProcessResult{Response: resp, Success: true}, nil
}

func (b *echoBehavior) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// blockingBehavior blocks until its context is cancelled.
type blockingBehavior struct{}

func (blockingBehavior) Process(ctx context.Context, _ string, _ map[string]any) (*domain.ProcessResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// testCatalog builds a catalog whose agents use echo behaviors. Behaviors
// are retrievable by agent ID for call-count assertions.
func testCatalog(defs ...config.AgentDef) (*Catalog, map[string]*echoBehavior) {
	behaviors := make(map[string]*echoBehavior, len(defs))
	cat, err := NewCatalog(defs, func(def config.AgentDef) (domain.Behavior, error) {
		b := &echoBehavior{agentID: def.ID}
		behaviors[def.ID] = b
		return b, nil
	}, logger.Discard())
	if err != nil {
		panic(fmt.Sprintf("test catalog: %v", err))
	}
	return cat, behaviors
}

func agentDef(id, name string, patterns ...domain.Pattern) config.AgentDef {
	return config.AgentDef{
		ID:          id,
		Name:        name,
		Description: "handles " + name + " questions",
		Type:        domain.AgentTypeLLM,
		Status:      domain.AgentStatusActive,
		Patterns:    patterns,
	}
}

// fakeBackend is an in-memory StateBackend with failure injection.
// failNext fails that many upcoming Insert calls before succeeding.
type fakeBackend struct {
	mu       sync.Mutex
	records  []domain.StateRecord
	failNext int
	inserts  int
	pingErr  error
}

func (b *fakeBackend) Insert(_ context.Context, rec domain.StateRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inserts++
	if b.failNext > 0 {
		b.failNext--
		return fmt.Errorf("backend write failed")
	}
	b.records = append(b.records, rec)
	return nil
}

func (b *fakeBackend) LatestState(_ context.Context, sessionID string) (*domain.StateRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.records) - 1; i >= 0; i-- {
		r := b.records[i]
		if r.SessionID == sessionID && !r.IsCheckpoint {
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (b *fakeBackend) LatestCheckpoint(_ context.Context, sessionID, name string) (*domain.StateRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.records) - 1; i >= 0; i-- {
		r := b.records[i]
		if r.SessionID == sessionID && r.IsCheckpoint && (name == "" || r.CheckpointName == name) {
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (b *fakeBackend) ListCheckpoints(_ context.Context, sessionID string) ([]domain.CheckpointInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.CheckpointInfo
	for i := len(b.records) - 1; i >= 0; i-- {
		r := b.records[i]
		if r.SessionID == sessionID && r.IsCheckpoint {
			out = append(out, domain.CheckpointInfo{ID: r.ID, Name: r.CheckpointName, CreatedAt: r.CreatedAt})
		}
	}
	return out, nil
}

func (b *fakeBackend) Counts(_ context.Context, sessionID string) (domain.SessionCounts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var c domain.SessionCounts
	for _, r := range b.records {
		if r.SessionID != sessionID {
			continue
		}
		if r.IsCheckpoint {
			c.Checkpoints++
		} else {
			c.States++
		}
		if r.CreatedAt.After(c.LastUpdate) {
			c.LastUpdate = r.CreatedAt
		}
	}
	return c, nil
}

func (b *fakeBackend) Ping(_ context.Context) error { return b.pingErr }
func (b *fakeBackend) Close() error                 { return nil }

func (b *fakeBackend) insertCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inserts
}

// noSleepStore builds a StateStore whose backoff sleeps are recorded
// instead of slept.
func noSleepStore(backend domain.StateBackend, policy RetryPolicy) (*StateStore, *[]time.Duration) {
	store := NewStateStore(backend, policy, logger.Discard())
	slept := &[]time.Duration{}
	store.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return store, slept
}
