// Package sqlite provides a SQLite-backed implementation of the
// storage.Log interface using Go's standard database/sql package.
//
// Records live in an append-only "students" table. The AUTOINCREMENT
// primary key records admission order, which Replay follows. Rows are
// never updated or deleted.
//
// The blank import below registers the sqlite3 driver with database/sql.
package sqlite

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/aanand-mishra/pace-registry/internal/storage"
	"github.com/aanand-mishra/pace-registry/internal/types"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a storage.Log stored in a single SQLite database file.
type SQLite struct {
	Db *sql.DB

	mu     sync.Mutex
	closed bool
}

var _ storage.Log = (*SQLite)(nil)

// New opens the database at path and creates the students table if it
// does not exist yet.
func New(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	// One connection keeps the pragma below in effect for every statement.
	db.SetMaxOpenConns(1)

	// A commit is only reported once it reached the disk.
	if _, err := db.Exec("PRAGMA synchronous = FULL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.New: set synchronous: %w", err)
	}

	// seq orders replay; usn and email carry UNIQUE as a second line of
	// defence behind the in-memory checks.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS students (
			seq    INTEGER PRIMARY KEY AUTOINCREMENT,
			usn    TEXT    NOT NULL UNIQUE,
			name   TEXT    NOT NULL,
			email  TEXT    NOT NULL UNIQUE,
			skills TEXT    NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.New: create table: %w", err)
	}

	return &SQLite{Db: db}, nil
}

// Append inserts s as a new row. The insert runs in autocommit mode, so
// the row is durable once Exec returns.
func (s *SQLite) Append(st types.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	stmt, err := s.Db.Prepare(
		"INSERT INTO students (usn, name, email, skills) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("sqlite.Append: prepare: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(st.USN, st.Name, st.Email, st.Skills); err != nil {
		return fmt.Errorf("sqlite.Append: exec: %w", err)
	}

	return nil
}

// Replay returns all rows in insertion order.
func (s *SQLite) Replay() ([]types.Student, error) {
	stmt, err := s.Db.Prepare(
		"SELECT usn, name, email, skills FROM students ORDER BY seq",
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Replay: prepare: %w", err)
	}
	defer stmt.Close()

	rows, err := stmt.Query()
	if err != nil {
		return nil, fmt.Errorf("sqlite.Replay: query: %w", err)
	}
	defer rows.Close()

	students := make([]types.Student, 0)

	for rows.Next() {
		var st types.Student
		if err := rows.Scan(
			&st.USN,
			&st.Name,
			&st.Email,
			&st.Skills,
		); err != nil {
			return nil, fmt.Errorf("sqlite.Replay: scan row: %w", err)
		}
		students = append(students, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite.Replay: rows iteration: %w", err)
	}

	return students, nil
}

// Close closes the database. Close is idempotent.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.Db.Close()
}
