package store_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/pace-registry/internal/storage"
	"github.com/aanand-mishra/pace-registry/internal/storage/flatfile"
	"github.com/aanand-mishra/pace-registry/internal/storage/sqlite"
	"github.com/aanand-mishra/pace-registry/internal/store"
	"github.com/aanand-mishra/pace-registry/internal/types"
)

// memLog is an in-memory storage.Log that can be told to fail appends.
type memLog struct {
	mu        sync.Mutex
	records   []types.Student
	failNext  error
	appends   int
	replayErr error
}

func (m *memLog) Append(s types.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.records = append(m.records, s)
	return nil
}

func (m *memLog) Replay() ([]types.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replayErr != nil {
		return nil, m.replayErr
	}
	return append([]types.Student(nil), m.records...), nil
}

func (m *memLog) Close() error { return nil }

func student(usn, name, email, skills string) types.Student {
	return types.Student{USN: usn, Name: name, Email: email, Skills: skills}
}

var asha = student("4PA21CS001", "Asha", "4pa21cs001@pace.edu.in", "go,rust")

func openEmpty(t *testing.T) (*store.Store, *memLog) {
	t.Helper()
	l := &memLog{}
	s, err := store.Open(l)
	require.NoError(t, err)
	return s, l
}

func TestAdmit_DuplicateUSN(t *testing.T) {
	s, l := openEmpty(t)

	require.NoError(t, s.Admit(asha))

	err := s.Admit(student("4pa21cs001", "Other", "4pa21cs999@pace.edu.in", ""))
	assert.ErrorIs(t, err, storage.ErrDuplicateUSN)
	assert.Equal(t, 1, s.Len())
	assert.Len(t, l.records, 1)
}

func TestAdmit_DuplicateEmail(t *testing.T) {
	s, l := openEmpty(t)

	require.NoError(t, s.Admit(asha))

	err := s.Admit(student("4PA21CS002", "Other", "4PA21CS001@PACE.EDU.IN", ""))
	assert.ErrorIs(t, err, storage.ErrDuplicateEmail)
	assert.Equal(t, 1, s.Len())
	assert.Len(t, l.records, 1)
}

func TestAdmit_USNCheckedBeforeEmail(t *testing.T) {
	s, _ := openEmpty(t)
	require.NoError(t, s.Admit(asha))

	assert.ErrorIs(t, s.Admit(asha), storage.ErrDuplicateUSN)
}

func TestContains_IgnoresCase(t *testing.T) {
	s, _ := openEmpty(t)
	require.NoError(t, s.Admit(asha))

	assert.True(t, s.ContainsUSN("4pa21cs001"))
	assert.True(t, s.ContainsEmail("4PA21CS001@Pace.Edu.In"))
	assert.False(t, s.ContainsUSN("4PA21CS002"))
	assert.False(t, s.ContainsEmail("4pa21cs002@pace.edu.in"))
}

// A failed durable append fails the admission and leaves memory as it
// was, so a retry with the same identity can still succeed.
func TestAdmit_PersistFailureHasNoEffect(t *testing.T) {
	s, l := openEmpty(t)
	l.failNext = errors.New("disk full")

	err := s.Admit(asha)
	require.ErrorIs(t, err, storage.ErrPersist)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.ContainsUSN(asha.USN))

	require.NoError(t, s.Admit(asha))
	assert.Equal(t, 1, s.Len())
}

func TestAdmit_DuplicateDoesNotTouchLog(t *testing.T) {
	s, l := openEmpty(t)
	require.NoError(t, s.Admit(asha))
	require.Error(t, s.Admit(asha))

	assert.Equal(t, 1, l.appends)
}

func TestAdmit_ConcurrentSameIdentity(t *testing.T) {
	s, l := openEmpty(t)

	const n = 64
	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			// Alternate between a shared usn and a shared email so both
			// conflict paths race.
			var st types.Student
			if i%2 == 0 {
				st = student("4PA21CS001", "Asha", fmt.Sprintf("4pa21cs%03d@pace.edu.in", i+100), "")
			} else {
				st = student(fmt.Sprintf("4PA21CS%03d", i+100), "Asha", "4pa21cs001@pace.edu.in", "")
			}
			errs[i] = s.Admit(st)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t,
			errors.Is(err, storage.ErrDuplicateUSN) || errors.Is(err, storage.ErrDuplicateEmail),
			"unexpected error: %v", err)
	}

	// The shared-usn group and the shared-email group never collide with
	// each other, so each has exactly one winner.
	assert.Equal(t, 2, ok)
	assert.Equal(t, ok, s.Len())
	assert.Len(t, l.records, ok)
}

func TestAdmit_ConcurrentExactlyOneWinner(t *testing.T) {
	s, _ := openEmpty(t)

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, dups := 0, 0
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			usn := "4pa21cs001"
			if i%2 == 0 {
				usn = "4PA21CS001"
			}
			err := s.Admit(student(usn, "Asha", fmt.Sprintf("4pa21cs%03d@pace.edu.in", i), ""))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, storage.ErrDuplicateUSN):
				dups++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, dups)
}

func TestSnapshot_InsertionOrderAndIsolation(t *testing.T) {
	s, _ := openEmpty(t)
	assert.NotNil(t, s.Snapshot())
	assert.Empty(t, s.Snapshot())

	require.NoError(t, s.Admit(asha))
	before := s.Snapshot()

	second := student("4PA21CS002", "Ravi", "4pa21cs002@pace.edu.in", "java")
	require.NoError(t, s.Admit(second))

	assert.Equal(t, []types.Student{asha}, before)
	assert.Equal(t, []types.Student{asha, second}, s.Snapshot())
}

func TestSnapshot_ConcurrentWithAdmissions(t *testing.T) {
	s, _ := openEmpty(t)

	const n = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = s.Admit(student(fmt.Sprintf("U%d", i), "N", fmt.Sprintf("e%d", i), ""))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			snap := s.Snapshot()
			for j, st := range snap {
				// Records are complete and in admission order.
				assert.Equal(t, fmt.Sprintf("U%d", j), st.USN)
				assert.Equal(t, fmt.Sprintf("e%d", j), st.Email)
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, n, s.Len())
}

func TestOpen_ReplayError(t *testing.T) {
	_, err := store.Open(&memLog{replayErr: errors.New("io")})
	assert.Error(t, err)
}

func TestOpen_SkipsReplayedDuplicates(t *testing.T) {
	l := &memLog{records: []types.Student{
		asha,
		student("4pa21cs001", "Dup", "4pa21cs777@pace.edu.in", ""),
		student("4PA21CS002", "Ravi", "4pa21cs002@pace.edu.in", ""),
	}}

	s, err := store.Open(l)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 0, l.appends)
}

func TestDurability_FlatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.txt")

	l1 := flatfile.New(path)
	s1, err := store.Open(l1)
	require.NoError(t, err)
	require.NoError(t, s1.Admit(asha))
	require.NoError(t, l1.Close())

	// Replaying twice without writes gives the same store.
	for i := 0; i < 2; i++ {
		l := flatfile.New(path)
		s, err := store.Open(l)
		require.NoError(t, err)
		assert.Equal(t, []types.Student{asha}, s.Snapshot())
		assert.ErrorIs(t, s.Admit(asha), storage.ErrDuplicateUSN)
		require.NoError(t, l.Close())
	}
}

func TestDurability_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")

	l1, err := sqlite.New(path)
	require.NoError(t, err)
	s1, err := store.Open(l1)
	require.NoError(t, err)
	require.NoError(t, s1.Admit(asha))
	require.NoError(t, l1.Close())

	l2, err := sqlite.New(path)
	require.NoError(t, err)
	defer l2.Close()
	s2, err := store.Open(l2)
	require.NoError(t, err)
	assert.Equal(t, []types.Student{asha}, s2.Snapshot())
}
