// Package state provides the SQLite implementation of domain.StateBackend.
// One row per orchestration snapshot; checkpoints are ordinary rows flagged
// is_checkpoint, so rollback stays auditable (nothing is deleted).
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"concierge/internal/domain"
)

// SQLiteBackend implements domain.StateBackend using SQLite.
type SQLiteBackend struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at dbPath, runs migrations, and
// returns a ready backend.
func New(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Close closes the underlying database connection.
func (b *SQLiteBackend) Close() error { return b.db.Close() }

// Ping verifies the database connection.
func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Insert implements domain.StateBackend.
func (b *SQLiteBackend) Insert(ctx context.Context, rec domain.StateRecord) error {
	const q = `
		INSERT INTO orchestration_states
			(id, session_id, state_data, checkpoint_name, is_checkpoint, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	var name any
	if rec.CheckpointName != "" {
		name = rec.CheckpointName
	}
	_, err := b.db.ExecContext(ctx, q,
		rec.ID,
		rec.SessionID,
		string(rec.StateData),
		name,
		boolToInt(rec.IsCheckpoint),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert state: %w", err)
	}
	return nil
}

// LatestState implements domain.StateBackend.
func (b *SQLiteBackend) LatestState(ctx context.Context, sessionID string) (*domain.StateRecord, error) {
	const q = `
		SELECT id, session_id, state_data, checkpoint_name, is_checkpoint, created_at
		FROM orchestration_states
		WHERE session_id = ? AND is_checkpoint = 0
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`
	return b.scanOne(b.db.QueryRowContext(ctx, q, sessionID))
}

// LatestCheckpoint implements domain.StateBackend. An empty name matches
// the most recent checkpoint of any name; last write for a name wins.
func (b *SQLiteBackend) LatestCheckpoint(ctx context.Context, sessionID, name string) (*domain.StateRecord, error) {
	var row *sql.Row
	if name == "" {
		const q = `
			SELECT id, session_id, state_data, checkpoint_name, is_checkpoint, created_at
			FROM orchestration_states
			WHERE session_id = ? AND is_checkpoint = 1
			ORDER BY created_at DESC, rowid DESC
			LIMIT 1
		`
		row = b.db.QueryRowContext(ctx, q, sessionID)
	} else {
		const q = `
			SELECT id, session_id, state_data, checkpoint_name, is_checkpoint, created_at
			FROM orchestration_states
			WHERE session_id = ? AND is_checkpoint = 1 AND checkpoint_name = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT 1
		`
		row = b.db.QueryRowContext(ctx, q, sessionID, name)
	}
	return b.scanOne(row)
}

// ListCheckpoints implements domain.StateBackend.
func (b *SQLiteBackend) ListCheckpoints(ctx context.Context, sessionID string) ([]domain.CheckpointInfo, error) {
	const q = `
		SELECT id, checkpoint_name, created_at
		FROM orchestration_states
		WHERE session_id = ? AND is_checkpoint = 1
		ORDER BY created_at DESC, rowid DESC
	`
	rows, err := b.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckpointInfo
	for rows.Next() {
		var (
			info      domain.CheckpointInfo
			name      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&info.ID, &name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		info.Name = name.String
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Counts implements domain.StateBackend.
func (b *SQLiteBackend) Counts(ctx context.Context, sessionID string) (domain.SessionCounts, error) {
	const q = `
		SELECT
			COALESCE(SUM(is_checkpoint = 0), 0),
			COALESCE(SUM(is_checkpoint), 0),
			COALESCE(MAX(created_at), '')
		FROM orchestration_states
		WHERE session_id = ?
	`
	var (
		counts domain.SessionCounts
		last   string
	)
	if err := b.db.QueryRowContext(ctx, q, sessionID).Scan(&counts.States, &counts.Checkpoints, &last); err != nil {
		return domain.SessionCounts{}, fmt.Errorf("count states: %w", err)
	}
	if last != "" {
		counts.LastUpdate, _ = time.Parse(time.RFC3339Nano, last)
	}
	return counts, nil
}

func (b *SQLiteBackend) scanOne(row *sql.Row) (*domain.StateRecord, error) {
	var (
		rec       domain.StateRecord
		data      string
		name      sql.NullString
		isCkpt    int
		createdAt string
	)
	err := row.Scan(&rec.ID, &rec.SessionID, &data, &name, &isCkpt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan state: %w", err)
	}
	rec.StateData = []byte(data)
	rec.CheckpointName = name.String
	rec.IsCheckpoint = isCkpt != 0
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time interface check.
var _ domain.StateBackend = (*SQLiteBackend)(nil)
