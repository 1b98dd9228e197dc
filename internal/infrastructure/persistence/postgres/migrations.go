package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PROGRESS KV
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create progress key-value table
-- Version: 001

-- One JSON document per key: streak, badges, counters, histories and
-- per-group scheduled sessions.
CREATE TABLE IF NOT EXISTS progress_kv (
    key TEXT PRIMARY KEY,
    value JSONB NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

COMMENT ON TABLE progress_kv IS 'StudyBuddy progression state, one JSON value per key';
COMMENT ON COLUMN progress_kv.key IS 'Namespaced key, e.g. studybuddy:user:<id>:streak';
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: PREFIX INDEX
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Index for prefix scans (LIKE 'prefix%')
-- Version: 002

CREATE INDEX IF NOT EXISTS idx_progress_kv_key_prefix
    ON progress_kv (key text_pattern_ops);
`

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_progress_kv",
			UpSQL:   migration001Up,
		},
		{
			Version: 2,
			Name:    "progress_kv_prefix_index",
			UpSQL:   migration002Up,
		},
	}
}
