// Package store holds the authoritative in-memory collection of
// registered students and decides who gets into it.
//
// WHY ONE LOCK?
// ─────────────
// Registration is check-then-act: "is this USN free?" followed by "add
// it". If two requests for the same USN both pass the check before
// either adds, both would be admitted. So the whole sequence runs as one
// critical section under a single sync.Mutex:
//
//   - Check the USN and email indexes (case-insensitive).
//   - Append the record to the storage.Log and wait for it to be durable.
//   - Append the record to memory.
//
// Because the log write happens inside the lock, the order of lines in
// the log is exactly the order of records in memory, and replaying the
// log after a restart rebuilds the same store.
//
// HOW READERS AVOID THE LOCK:
// ───────────────────────────
// Searches never take the mutex. Every admission publishes a new slice
// header through an atomic.Pointer, capped at its own length. A reader
// loads the pointer and ranges over a prefix of the backing array that
// no writer touches again; a later append either writes past that
// prefix or reallocates.
package store

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aanand-mishra/pace-registry/internal/storage"
	"github.com/aanand-mishra/pace-registry/internal/types"
)

// Store is the record store. The zero value is not usable; call Open.
type Store struct {
	log storage.Log

	mu     sync.Mutex // serializes admissions
	usns   map[string]struct{}
	emails map[string]struct{}
	all    []types.Student

	snap atomic.Pointer[[]types.Student]
}

// Open replays log into a new Store. Replayed records that collide with
// an earlier one are skipped. Replay never writes to log.
func Open(log storage.Log) (*Store, error) {
	replayed, err := log.Replay()
	if err != nil {
		return nil, fmt.Errorf("store.Open: replay: %w", err)
	}

	s := &Store{
		log:    log,
		usns:   make(map[string]struct{}, len(replayed)),
		emails: make(map[string]struct{}, len(replayed)),
		all:    make([]types.Student, 0, len(replayed)),
	}

	for _, st := range replayed {
		if err := s.check(st); err != nil {
			slog.Warn("skipping replayed record",
				slog.String("usn", st.USN),
				slog.String("error", err.Error()))
			continue
		}
		s.add(st)
	}

	slog.Debug("record store loaded", slog.Int("records", len(s.all)))
	return s, nil
}

func usnKey(usn string) string     { return strings.ToUpper(usn) }
func emailKey(email string) string { return strings.ToLower(email) }

// ContainsUSN reports whether usn is registered, ignoring case.
func (s *Store) ContainsUSN(usn string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.usns[usnKey(usn)]
	return ok
}

// ContainsEmail reports whether email is registered, ignoring case.
func (s *Store) ContainsEmail(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.emails[emailKey(email)]
	return ok
}

// ─────────────────────────────────────────────────────────────────────────────
// Admit registers st. It returns storage.ErrDuplicateUSN or
// storage.ErrDuplicateEmail when either key is taken, and an error
// wrapping storage.ErrPersist when the durable append fails. On any
// error neither memory nor the log is changed.
//
// Steps (all under mu):
//  1. Reject duplicates
//  2. Append to the log; a failure here leaves memory untouched
//  3. Add to the indexes and publish the new snapshot
//
// ─────────────────────────────────────────────────────────────────────────────
func (s *Store) Admit(st types.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(st); err != nil {
		return err
	}

	if err := s.log.Append(st); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrPersist, err)
	}

	s.add(st)
	return nil
}

// Snapshot returns the records admitted so far in admission order. The
// returned slice must not be modified.
func (s *Store) Snapshot() []types.Student {
	if p := s.snap.Load(); p != nil {
		return *p
	}
	return []types.Student{}
}

// Len returns the number of admitted records.
func (s *Store) Len() int {
	return len(s.Snapshot())
}

// check must be called with mu held (or before s is shared).
func (s *Store) check(st types.Student) error {
	if _, ok := s.usns[usnKey(st.USN)]; ok {
		return storage.ErrDuplicateUSN
	}
	if _, ok := s.emails[emailKey(st.Email)]; ok {
		return storage.ErrDuplicateEmail
	}
	return nil
}

// add must be called with mu held (or before s is shared).
func (s *Store) add(st types.Student) {
	s.usns[usnKey(st.USN)] = struct{}{}
	s.emails[emailKey(st.Email)] = struct{}{}
	s.all = append(s.all, st)

	view := s.all[:len(s.all):len(s.all)]
	s.snap.Store(&view)
}

