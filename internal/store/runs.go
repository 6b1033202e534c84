package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SplitRun is the ledger entry for one split of a source file.
type SplitRun struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Days       int       `json:"days"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Locked     bool      `json:"locked"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// InsertSplitRun records run, assigning an ID if it has none.
func (s *Store) InsertSplitRun(run SplitRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	locked := 0
	if run.Locked {
		locked = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO split_runs (id, source, days, failed, skipped, locked, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Days, run.Failed, run.Skipped, locked, run.Error,
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert split run for %s: %w", run.Source, err)
	}
	return nil
}

// SplitRunsCount returns the number of recorded split runs.
func (s *Store) SplitRunsCount() (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM split_runs").Scan(&count)
	return count, err
}

// RecentSplitRuns returns up to limit runs, newest first.
func (s *Store) RecentSplitRuns(limit int) ([]SplitRun, error) {
	rows, err := s.db.Query(
		`SELECT id, source, days, failed, skipped, locked, error, started_at, finished_at
		 FROM split_runs
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSplitRuns(rows)
}

// LastSplitRun returns the newest run for source, or nil if there is none.
func (s *Store) LastSplitRun(source string) (*SplitRun, error) {
	rows, err := s.db.Query(
		`SELECT id, source, days, failed, skipped, locked, error, started_at, finished_at
		 FROM split_runs
		 WHERE source = ?
		 ORDER BY started_at DESC
		 LIMIT 1`,
		source,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs, err := scanSplitRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func scanSplitRuns(rows *sql.Rows) ([]SplitRun, error) {
	var runs []SplitRun
	for rows.Next() {
		var r SplitRun
		var locked int
		var started, finished string
		if err := rows.Scan(
			&r.ID, &r.Source, &r.Days, &r.Failed, &r.Skipped,
			&locked, &r.Error, &started, &finished,
		); err != nil {
			return nil, err
		}
		var err error
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", started, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at %q: %w", finished, err)
		}
		r.Locked = locked != 0
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}
