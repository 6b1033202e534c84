package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Lookup for an unknown keyword.
var ErrNotFound = errors.New("record not found")

// Record is a keyword and the value stored for it.
type Record struct {
	Keyword   string    `json:"keyword"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lookup returns the record stored under keyword.
func (s *Store) Lookup(keyword string) (*Record, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, ErrNotFound
	}

	var r Record
	var ts string
	err := s.db.QueryRow(
		`SELECT keyword, value, updated_at FROM records WHERE keyword = ?`, keyword,
	).Scan(&r.Keyword, &r.Value, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", keyword, err)
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse record timestamp %q: %w", ts, err)
	}
	r.UpdatedAt = t
	return &r, nil
}

// PutRecord inserts or replaces the record for keyword.
func (s *Store) PutRecord(keyword, value string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return errors.New("put record: empty keyword")
	}
	_, err := s.db.Exec(
		`INSERT INTO records (keyword, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(keyword) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		keyword, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// RecordsCount returns the number of stored records.
func (s *Store) RecordsCount() (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&count)
	return count, err
}
