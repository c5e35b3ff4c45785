// Package search answers substring queries over the record store.
//
// HOW A SEARCH RUNS:
// ──────────────────
// A search takes one snapshot of the store and scans it in registration
// order, keeping every record whose skills or name contains the term,
// ignoring case. Skills are tested first; a record that matches on both
// appears once.
//
// The snapshot is taken without any lock, so a search never waits for a
// registration in progress. It sees exactly the records admitted before
// the snapshot was taken, never a half-written one.
package search

import (
	"context"
	"strings"

	"github.com/aanand-mishra/pace-registry/internal/metrics"
	"github.com/aanand-mishra/pace-registry/internal/types"
)

// Snapshotter is the read side of the record store.
type Snapshotter interface {
	Snapshot() []types.Student
}

// Service runs searches. It holds no state of its own and is safe for
// concurrent use.
type Service struct {
	store   Snapshotter
	metrics metrics.Recorder
}

// NewService returns a Service reading from store. A nil recorder
// disables metrics.
func NewService(store Snapshotter, rec metrics.Recorder) *Service {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Service{store: store, metrics: rec}
}

// Search returns every record whose skills or name contains term,
// ignoring case, in registration order. An empty term matches all
// records. The result is never nil.
func (s *Service) Search(ctx context.Context, term string) []types.Student {
	term = strings.ToLower(term)

	results := make([]types.Student, 0)
	for _, st := range s.store.Snapshot() {
		if strings.Contains(strings.ToLower(st.Skills), term) ||
			strings.Contains(strings.ToLower(st.Name), term) {
			results = append(results, st)
		}
	}

	s.metrics.RecordSearch(ctx, len(results))
	return results
}
