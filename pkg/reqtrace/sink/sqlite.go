package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
)

// SQLiteArchive persists completed requests to SQLite. Rows are
// stamped with the capture session so several runs can append to the
// same database file. It is suitable for single-process production
// use.
type SQLiteArchive struct {
	db      *sql.DB
	put     *sql.Stmt
	session string
	mu      sync.RWMutex
	closed  bool
}

// OpenSQLiteArchive opens (creating if needed) an archive database.
// The path should be a file path (e.g., "./requests.db") or ":memory:"
// for testing.
func OpenSQLiteArchive(path, session string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS requests (
			session TEXT NOT NULL,
			ts INTEGER NOT NULL,
			queue INTEGER NOT NULL,
			id INTEGER NOT NULL,
			op TEXT NOT NULL,
			comm TEXT NOT NULL,
			pid INTEGER NOT NULL,
			result INTEGER NOT NULL,
			deltas TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_requests_session_ts
		ON requests(session, ts)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	put, err := db.Prepare(`
		INSERT INTO requests (session, ts, queue, id, op, comm, pid, result, deltas)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}

	return &SQLiteArchive{db: db, put: put, session: session}, nil
}

// Put implements Archive.
func (s *SQLiteArchive) Put(rec *breakdown.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrArchiveClosed
	}

	e := entryFromRecord(s.session, rec)
	deltas, err := json.Marshal(e.Deltas)
	if err != nil {
		return fmt.Errorf("encode deltas: %w", err)
	}

	_, err = s.put.Exec(e.Session, int64(e.TS), e.Key.Queue, int64(e.Key.ID),
		e.Op, e.Comm, e.PID, e.Result, string(deltas))
	if err != nil {
		return fmt.Errorf("archive record: %w", err)
	}
	return nil
}

// Count implements Archive.
func (s *SQLiteArchive) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrArchiveClosed
	}

	var n int64
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM requests WHERE session = ?
	`, s.session).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Recent implements Archive.
func (s *SQLiteArchive) Recent(n int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrArchiveClosed
	}

	rows, err := s.db.Query(`
		SELECT ts, queue, id, op, comm, pid, result, deltas
		FROM requests
		WHERE session = ?
		ORDER BY ts DESC, rowid DESC
		LIMIT ?
	`, s.session, n)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, n)
	for rows.Next() {
		var (
			e      Entry
			ts, id int64
			deltas string
		)
		if err := rows.Scan(&ts, &e.Key.Queue, &id, &e.Op, &e.Comm, &e.PID, &e.Result, &deltas); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		e.Session = s.session
		e.TS = uint64(ts)
		e.Key.ID = uint64(id)
		if err := json.Unmarshal([]byte(deltas), &e.Deltas); err != nil {
			return nil, fmt.Errorf("decode deltas: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return entries, nil
}

// Close implements Archive.
func (s *SQLiteArchive) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.put.Close()
	return s.db.Close()
}
