package history

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  library TEXT NOT NULL,
  started_utc TEXT NOT NULL,
  finished_utc TEXT NOT NULL,
  metric_schema INTEGER NOT NULL,
  requested_count INTEGER NOT NULL,
  analyzed_count INTEGER NOT NULL,
  created_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
CREATE INDEX IF NOT EXISTS idx_runs_library ON runs(library, started_utc);

CREATE TABLE IF NOT EXISTS version_rows (
  run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
  version TEXT NOT NULL,
  published_utc TEXT NOT NULL,
  position INTEGER NOT NULL,
  metric TEXT NOT NULL,
  kind INTEGER NOT NULL,
  value REAL,
  PRIMARY KEY (run_id, version, metric)
);
CREATE INDEX IF NOT EXISTS idx_version_rows_metric ON version_rows(metric);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE runs ADD COLUMN dropped_count INTEGER NOT NULL DEFAULT 0;
ALTER TABLE runs ADD COLUMN results_path TEXT NOT NULL DEFAULT '';
`,
	},
}

func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_migrations version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
