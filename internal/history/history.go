// Package history keeps a record of switch outcomes in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

const DefaultLimit = 50

type Entry struct {
	RunID     string    `json:"run_id"`
	Hostname  string    `json:"hostname"`
	PublicKey string    `json:"public_key"`
	IPv4      string    `json:"ipv4"`
	Port      int       `json:"port"`
	Outcome   Outcome   `json:"outcome"`
	Stage     string    `json:"stage,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS switches (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	hostname TEXT NOT NULL,
	public_key TEXT NOT NULL,
	ipv4 TEXT NOT NULL,
	port INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	stage TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT '',
	at_unix INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_switches_at ON switches(at_unix);
`

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("history path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases shared and writes ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO switches (run_id, hostname, public_key, ipv4, port, outcome, stage, detail, at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Hostname, e.PublicKey, e.IPv4, e.Port, string(e.Outcome), e.Stage, e.Detail, e.At.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record switch: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, hostname, public_key, ipv4, port, outcome, stage, detail, at_unix
		 FROM switches ORDER BY at_unix DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query switches: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var outcome string
		var at int64
		if err := rows.Scan(&e.RunID, &e.Hostname, &e.PublicKey, &e.IPv4, &e.Port, &outcome, &e.Stage, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan switch: %w", err)
		}
		e.Outcome = Outcome(outcome)
		e.At = time.Unix(at, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
