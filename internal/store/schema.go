package store

// schemaVersion is the current schema version. Increment when adding migrations.
const schemaVersion = 2

// migrations maps version numbers to SQL statements that bring the schema
// from (version-1) to (version). Version 1 is the initial schema.
var migrations = map[int]string{
	1: `
-- Keyword records served by lookup.
CREATE TABLE IF NOT EXISTS records (
	keyword    TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);

-- Key-value store for daemon metadata (schema version, start time, etc).
CREATE TABLE IF NOT EXISTS daemon_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
`,

	2: `
-- One row per split of a source file.
CREATE TABLE IF NOT EXISTS split_runs (
	id          TEXT    PRIMARY KEY,
	source      TEXT    NOT NULL,
	days        INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	locked      INTEGER NOT NULL DEFAULT 0,
	error       TEXT    NOT NULL DEFAULT '',
	started_at  TEXT    NOT NULL,
	finished_at TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_split_runs_source ON split_runs(source);
CREATE INDEX IF NOT EXISTS idx_split_runs_started ON split_runs(started_at);
`,
}
