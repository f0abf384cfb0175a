package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge/internal/domain"
)

func testBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := New(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func rec(id, sessionID, name string, isCheckpoint bool, at time.Time) domain.StateRecord {
	return domain.StateRecord{
		ID:             id,
		SessionID:      sessionID,
		StateData:      []byte(`{"messages":null,"last_agent_id":"billing"}`),
		CheckpointName: name,
		IsCheckpoint:   isCheckpoint,
		CreatedAt:      at,
	}
}

func TestSQLiteInsertAndLatestState(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	t0 := time.Now().UTC()

	require.NoError(t, b.Insert(ctx, rec("a", "s1", "", false, t0)))
	require.NoError(t, b.Insert(ctx, rec("b", "s1", "", false, t0.Add(time.Second))))
	require.NoError(t, b.Insert(ctx, rec("c", "s2", "", false, t0.Add(2*time.Second))))

	got, err := b.LatestState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "b", got.ID)
	assert.False(t, got.IsCheckpoint)
	assert.JSONEq(t, `{"messages":null,"last_agent_id":"billing"}`, string(got.StateData))
}

func TestSQLiteLatestStateIgnoresCheckpoints(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	t0 := time.Now().UTC()

	require.NoError(t, b.Insert(ctx, rec("a", "s1", "", false, t0)))
	require.NoError(t, b.Insert(ctx, rec("cp", "s1", "mark", true, t0.Add(time.Second))))

	got, err := b.LatestState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func TestSQLiteMissingRowsAreNotFound(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()

	_, err := b.LatestState(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = b.LatestCheckpoint(ctx, "nope", "mark")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteLatestCheckpointByNameLatestWins(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	t0 := time.Now().UTC()

	require.NoError(t, b.Insert(ctx, rec("cp1", "s1", "mark", true, t0)))
	require.NoError(t, b.Insert(ctx, rec("cp2", "s1", "mark", true, t0.Add(time.Second))))
	require.NoError(t, b.Insert(ctx, rec("cp3", "s1", "other", true, t0.Add(2*time.Second))))

	got, err := b.LatestCheckpoint(ctx, "s1", "mark")
	require.NoError(t, err)
	assert.Equal(t, "cp2", got.ID)

	// Empty name: most recent checkpoint of any name.
	got, err = b.LatestCheckpoint(ctx, "s1", "")
	require.NoError(t, err)
	assert.Equal(t, "cp3", got.ID)
}

func TestSQLiteSameTimestampUsesInsertionOrder(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	t0 := time.Now().UTC()

	require.NoError(t, b.Insert(ctx, rec("first", "s1", "", false, t0)))
	require.NoError(t, b.Insert(ctx, rec("second", "s1", "", false, t0)))

	got, err := b.LatestState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.ID)
}

func TestSQLiteListCheckpoints(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	t0 := time.Now().UTC()

	require.NoError(t, b.Insert(ctx, rec("cp1", "s1", "early", true, t0)))
	require.NoError(t, b.Insert(ctx, rec("cp2", "s1", "late", true, t0.Add(time.Second))))
	require.NoError(t, b.Insert(ctx, rec("st", "s1", "", false, t0)))

	cps, err := b.ListCheckpoints(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, "late", cps[0].Name)
	assert.Equal(t, "early", cps[1].Name)
}

func TestSQLiteCounts(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, b.Insert(ctx, rec("a", "s1", "", false, t0)))
	require.NoError(t, b.Insert(ctx, rec("b", "s1", "", false, t0.Add(time.Second))))
	require.NoError(t, b.Insert(ctx, rec("cp", "s1", "mark", true, t0.Add(2*time.Second))))

	counts, err := b.Counts(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.States)
	assert.Equal(t, 1, counts.Checkpoints)
	assert.Equal(t, t0.Add(2*time.Second), counts.LastUpdate)
}

func TestSQLitePing(t *testing.T) {
	b := testBackend(t)
	assert.NoError(t, b.Ping(context.Background()))
}
