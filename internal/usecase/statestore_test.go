package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge/internal/domain"
)

var testPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

func sampleData() domain.StateData {
	return domain.StateData{
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "my invoice is wrong", Timestamp: time.Unix(100, 0).UTC()},
			{Role: domain.RoleAssistant, Content: "Let me check that.", AgentID: "billing", Timestamp: time.Unix(101, 0).UTC()},
		},
		LastAgentID: "billing",
		Confidence:  0.9,
		Method:      domain.MethodPattern,
		Counters:    map[string]int{"turns": 1},
	}
}

func TestStateStorePersistAndLoad(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := noSleepStore(backend, testPolicy)

	id, err := store.PersistState(context.Background(), "s1", sampleData())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := store.MostRecentState(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sampleData(), got.Data)
}

func TestStateStoreMostRecentStateMissingIsNil(t *testing.T) {
	store, _ := noSleepStore(&fakeBackend{}, testPolicy)

	got, err := store.MostRecentState(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStateStoreRetriesTransientFailures(t *testing.T) {
	backend := &fakeBackend{failNext: 2}
	store, slept := noSleepStore(backend, testPolicy)

	_, err := store.PersistState(context.Background(), "s1", sampleData())
	require.NoError(t, err)

	// Two failures then success: exactly three attempts, two backoffs.
	assert.Equal(t, 3, backend.insertCount())
	require.Len(t, *slept, 2)
	// Exponential with jitter: attempt delays are at least base and 2x base.
	assert.GreaterOrEqual(t, (*slept)[0], time.Second)
	assert.GreaterOrEqual(t, (*slept)[1], 2*time.Second)
}

func TestStateStoreExhaustedRetriesIsStructuredError(t *testing.T) {
	backend := &fakeBackend{failNext: 10}
	store, slept := noSleepStore(backend, testPolicy)

	_, err := store.PersistState(context.Background(), "s1", sampleData())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStatePersistence)
	assert.Equal(t, domain.CodePersistence, domain.ErrorCodeOf(err))
	assert.Equal(t, 3, backend.insertCount())
	assert.Len(t, *slept, 2)
}

func TestStateStoreBackoffIsCapped(t *testing.T) {
	store, _ := noSleepStore(&fakeBackend{}, RetryPolicy{
		MaxAttempts: 8, BaseDelay: time.Second, MaxDelay: 4 * time.Second,
	})

	// 1<<6 seconds would far exceed the cap; jitter adds at most 25%.
	d := store.backoff(6)
	assert.LessOrEqual(t, d, 5*time.Second)
}

func TestStateStoreCheckpointRoundTrip(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := noSleepStore(backend, testPolicy)
	data := sampleData()

	cp, err := store.CreateCheckpoint(context.Background(), "s1", "before-refund", data)
	require.NoError(t, err)
	assert.True(t, cp.IsCheckpoint)
	assert.Equal(t, "before-refund", cp.CheckpointName)

	// Later state diverges.
	diverged := data.Clone()
	diverged.Messages = append(diverged.Messages, domain.Message{Role: domain.RoleUser, Content: "cancel everything"})
	_, err = store.PersistState(context.Background(), "s1", diverged)
	require.NoError(t, err)

	restored, err := store.RollbackToCheckpoint(context.Background(), "s1", "before-refund")
	require.NoError(t, err)
	// Byte-for-byte restoration of the checkpoint-time state.
	assert.Equal(t, data, restored.Data)

	// The restored data became the current state again.
	current, err := store.MostRecentState(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, data, current.Data)
}

func TestStateStoreRecreatedCheckpointLatestWins(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := noSleepStore(backend, testPolicy)

	first := sampleData()
	_, err := store.CreateCheckpoint(context.Background(), "s1", "mark", first)
	require.NoError(t, err)

	second := first.Clone()
	second.Counters["turns"] = 5
	_, err = store.CreateCheckpoint(context.Background(), "s1", "mark", second)
	require.NoError(t, err)

	restored, err := store.RollbackToCheckpoint(context.Background(), "s1", "mark")
	require.NoError(t, err)
	assert.Equal(t, 5, restored.Data.Counters["turns"])
}

func TestStateStoreRollbackMissingCheckpoint(t *testing.T) {
	store, _ := noSleepStore(&fakeBackend{}, testPolicy)

	_, err := store.RollbackToCheckpoint(context.Background(), "s1", "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	assert.Equal(t, domain.CodeCheckpointNotFnd, domain.ErrorCodeOf(err))
}

func TestStateStoreRollbackEmptyNameUsesLatestCheckpoint(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := noSleepStore(backend, testPolicy)

	a := sampleData()
	_, err := store.CreateCheckpoint(context.Background(), "s1", "first", a)
	require.NoError(t, err)
	b := a.Clone()
	b.LastAgentID = "tech"
	_, err = store.CreateCheckpoint(context.Background(), "s1", "second", b)
	require.NoError(t, err)

	restored, err := store.RollbackToCheckpoint(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, "second", restored.CheckpointName)
	assert.Equal(t, "tech", restored.Data.LastAgentID)
}

func TestStateStoreCheckpointPreflightFailure(t *testing.T) {
	backend := &fakeBackend{pingErr: assert.AnError}
	store, _ := noSleepStore(backend, testPolicy)

	_, err := store.CreateCheckpoint(context.Background(), "s1", "mark", sampleData())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStatePersistence)
	assert.Zero(t, backend.insertCount())
}

func TestStateStoreListCheckpointsAndCounts(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := noSleepStore(backend, testPolicy)
	ctx := context.Background()

	_, err := store.PersistState(ctx, "s1", sampleData())
	require.NoError(t, err)
	_, err = store.CreateCheckpoint(ctx, "s1", "mark", sampleData())
	require.NoError(t, err)

	cps, err := store.ListCheckpoints(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Equal(t, "mark", cps[0].Name)

	counts, err := store.SessionInfo(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.States)
	assert.Equal(t, 1, counts.Checkpoints)
}

func TestStateStoreProcessPendingOperations(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := noSleepStore(backend, testPolicy)

	data := sampleData()
	data.PendingOps = []domain.PendingOperation{
		{Kind: "increment_counter", Payload: []byte(`{"name": "turns", "by": 2}`)},
		{Kind: "append_trace", Payload: []byte(`{"step": "recovered"}`)},
		{Kind: "unknown_kind", Payload: []byte(`{}`)},
	}

	updated, err := store.ProcessPendingOperations(context.Background(), "s1", data)
	require.NoError(t, err)
	assert.Empty(t, updated.PendingOps)
	assert.Equal(t, 3, updated.Counters["turns"])
	require.NotEmpty(t, updated.Trace)
	assert.Equal(t, "recovered", updated.Trace[len(updated.Trace)-1].Step)
	// The drained state was persisted.
	assert.Equal(t, 1, backend.insertCount())
}
