package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// runMigrations brings the schema up to schemaVersion, one transaction per
// step, recording each applied version in daemon_state.
func runMigrations(db *sql.DB) error {
	// daemon_state must exist before the version can be read.
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS daemon_state (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create daemon_state: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", current, schemaVersion)
	}

	for v := current + 1; v <= schemaVersion; v++ {
		stmt, ok := migrations[v]
		if !ok {
			return fmt.Errorf("missing migration for version %d", v)
		}
		if err := applyMigration(db, v, stmt); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(db *sql.DB, v int, stmt string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", v, err)
	}

	if _, err := tx.Exec(stmt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d: %w", v, err)
	}

	if err := setState(tx, "schema_version", strconv.Itoa(v), time.Now()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update schema version to %d: %w", v, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", v, err)
	}
	return nil
}

// currentVersion reads the schema version from daemon_state.
// Returns 0 if no version is recorded yet.
func currentVersion(db *sql.DB) (int, error) {
	var val string
	err := db.QueryRow(`SELECT value FROM daemon_state WHERE key = 'schema_version'`).Scan(&val)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}
