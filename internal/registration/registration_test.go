package registration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/pace-registry/internal/storage"
	"github.com/aanand-mishra/pace-registry/internal/types"
)

// fakeStore records admissions and enforces usn uniqueness only.
type fakeStore struct {
	admitted []types.Student
	err      error
}

func (f *fakeStore) Admit(s types.Student) error {
	if f.err != nil {
		return f.err
	}
	for _, a := range f.admitted {
		if a.USN == s.USN {
			return storage.ErrDuplicateUSN
		}
	}
	f.admitted = append(f.admitted, s)
	return nil
}

// countingRecorder tallies outcomes.
type countingRecorder struct {
	outcomes map[string]int
}

func (c *countingRecorder) RecordAdmission(_ context.Context, outcome string) {
	if c.outcomes == nil {
		c.outcomes = make(map[string]int)
	}
	c.outcomes[outcome]++
}

func (c *countingRecorder) RecordSearch(context.Context, int) {}

func TestRegister_NormalizesFields(t *testing.T) {
	fs := &fakeStore{}
	svc := NewService(fs, nil)

	got, err := svc.Register(context.Background(), Request{
		USN:    "  4pa21cs001 ",
		Name:   " Asha ",
		Email:  " 4PA21CS001@Pace.Edu.In ",
		Skills: "  go,rust  ",
	})
	require.NoError(t, err)

	want := types.Student{
		USN:    "4PA21CS001",
		Name:   "Asha",
		Email:  "4pa21cs001@pace.edu.in",
		Skills: "go,rust",
	}
	assert.Equal(t, want, got)
	assert.Equal(t, []types.Student{want}, fs.admitted)
}

func TestRegister_ValidationOrder(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{
			name: "all blank",
			req:  Request{},
			want: ErrMissingFields,
		},
		{
			name: "whitespace only",
			req:  Request{USN: "  ", Name: "\t", Email: " "},
			want: ErrMissingFields,
		},
		{
			name: "missing name wins over bad domain",
			req:  Request{USN: "4PA21CS001", Email: "someone@gmail.com"},
			want: ErrMissingFields,
		},
		{
			name: "skills may be empty",
			req:  Request{USN: "4PA21CS001", Name: "Asha", Email: "4pa21cs001@pace.edu.in"},
			want: nil,
		},
		{
			name: "wrong prefix",
			req:  Request{USN: "4PA21CS001", Name: "Asha", Email: "5pa21cs001@pace.edu.in"},
			want: ErrInvalidEmailDomain,
		},
		{
			name: "wrong suffix",
			req:  Request{USN: "4PA21CS001", Name: "Asha", Email: "4pa21cs001@gmail.com"},
			want: ErrInvalidEmailDomain,
		},
		{
			name: "uppercase input normalized before the domain check",
			req:  Request{USN: "4PA21CS001", Name: "Asha", Email: "4PA21CS001@PACE.EDU.IN"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeStore{}
			_, err := NewService(fs, nil).Register(context.Background(), tt.req)
			if tt.want == nil {
				assert.NoError(t, err)
				assert.Len(t, fs.admitted, 1)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, fs.admitted)
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	fs := &fakeStore{}
	rec := &countingRecorder{}
	svc := NewService(fs, rec)
	ctx := context.Background()

	_, err := svc.Register(ctx, Request{USN: "4PA21CS001", Name: "Asha", Email: "4pa21cs001@pace.edu.in"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, Request{USN: "4pa21cs001", Name: "Asha", Email: "4pa21cs002@pace.edu.in"})
	assert.ErrorIs(t, err, storage.ErrDuplicateUSN)

	assert.Equal(t, map[string]int{"admitted": 1, "duplicate_usn": 1}, rec.outcomes)
}

func TestRegister_StoreFailure(t *testing.T) {
	persistErr := errors.Join(storage.ErrPersist, errors.New("disk full"))
	rec := &countingRecorder{}
	svc := NewService(&fakeStore{err: persistErr}, rec)

	_, err := svc.Register(context.Background(),
		Request{USN: "4PA21CS001", Name: "Asha", Email: "4pa21cs001@pace.edu.in"})
	assert.ErrorIs(t, err, storage.ErrPersist)
	assert.Equal(t, map[string]int{"internal_error": 1}, rec.outcomes)
}

func TestRegister_MetricsOutcomes(t *testing.T) {
	rec := &countingRecorder{}
	svc := NewService(&fakeStore{}, rec)
	ctx := context.Background()

	_, _ = svc.Register(ctx, Request{})
	_, _ = svc.Register(ctx, Request{USN: "X", Name: "Y", Email: "z@example.com"})

	assert.Equal(t, map[string]int{"missing_fields": 1, "invalid_email_domain": 1}, rec.outcomes)
}
