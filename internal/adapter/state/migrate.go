package state

import "database/sql"

// migrate creates the schema if it doesn't exist.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS orchestration_states (
			id              TEXT PRIMARY KEY,
			session_id      TEXT NOT NULL,
			state_data      TEXT NOT NULL DEFAULT '{}',
			checkpoint_name TEXT,
			is_checkpoint   INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_states_session_created
			ON orchestration_states (session_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_states_session_checkpoint
			ON orchestration_states (session_id, is_checkpoint);
	`
	_, err := db.Exec(schema)
	return err
}
