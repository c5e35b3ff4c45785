// Package storage defines the Log interface — the contract any durable
// backend must satisfy to hold the registration history.
//
// The log is append-only: records are written once, in admission order,
// and read back in the same order at startup to rebuild the in-memory
// store. Nothing is ever rewritten or deleted.
package storage

import (
	"errors"

	"github.com/aanand-mishra/pace-registry/internal/types"
)

// Log is the durable mirror of the record store.
type Log interface {
	// Append durably records s. When it returns nil the record survives
	// a process crash.
	Append(s types.Student) error

	// Replay returns every record in the order it was appended. A log
	// that does not exist yet replays as empty.
	Replay() ([]types.Student, error)

	// Close releases the underlying file or database handle.
	Close() error
}

var (
	// ErrDuplicateUSN is returned when a student with the same USN
	// (case-insensitive) is already registered.
	ErrDuplicateUSN = errors.New("usn already registered")

	// ErrDuplicateEmail is returned when a student with the same email
	// (case-insensitive) is already registered.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrPersist wraps any failure to durably append a record.
	ErrPersist = errors.New("persist record")

	// ErrClosed is returned by Append on a closed log.
	ErrClosed = errors.New("log is closed")
)
