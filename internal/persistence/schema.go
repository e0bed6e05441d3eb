package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
//
// seq is the rowid: a monotonic admission counter assigned on insert and
// used as the final tie-break when ordering the queue.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		owner TEXT NOT NULL,
		tier INTEGER NOT NULL,
		payload_ref TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		submitted_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
