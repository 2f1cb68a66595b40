// Package history persists a log of call attempts so past sessions can be
// inspected after the process exits.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one call attempt.
type Record struct {
	ID      int64
	Topic   string
	Role    string // "caller" or "callee"
	Started time.Time
	Ended   time.Time // zero while the call is live
	Outcome string    // "", "connected", "terminated", "error"
}

// Store wraps a SQLite database holding call records.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the history database in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "calls.db"))
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure history database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS calls (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			topic   TEXT NOT NULL,
			role    TEXT NOT NULL,
			started INTEGER NOT NULL,
			ended   INTEGER NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL DEFAULT ''
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create calls table: %w", err)
	}

	return &Store{db: db}, nil
}

// Begin inserts a new live call record and returns its ID.
func (s *Store) Begin(topic, role string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`INSERT INTO calls (topic, role, started) VALUES (?, ?, ?)`,
		topic, role, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert call record: %w", err)
	}
	return res.LastInsertId()
}

// SetOutcome updates a live record's outcome without ending it. Used to
// mark "connected" the moment remote media arrives.
func (s *Store) SetOutcome(id int64, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE calls SET outcome = ? WHERE id = ?`, outcome, id)
	return err
}

// End closes a record with its final outcome.
func (s *Store) End(id int64, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`UPDATE calls SET ended = ?, outcome = ? WHERE id = ?`,
		time.Now().UnixMilli(), outcome, id,
	)
	return err
}

// Recent returns the most recent records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT id, topic, role, started, ended, outcome FROM calls ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var started, ended int64
		if err := rows.Scan(&r.ID, &r.Topic, &r.Role, &started, &ended, &r.Outcome); err != nil {
			return nil, err
		}
		r.Started = time.UnixMilli(started)
		if ended > 0 {
			r.Ended = time.UnixMilli(ended)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
