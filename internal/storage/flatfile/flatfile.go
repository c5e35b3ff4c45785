// Package flatfile provides the default storage.Log: a plain text file
// holding one record per line, fields joined by '|'.
//
// HOW THE FILE STAYS CONSISTENT:
// ───────────────────────────────
// The file is only ever appended to, and a record counts only once its
// terminating newline is on disk:
//
//   - Append fsyncs before it returns, so a record reported as saved
//     survives a crash.
//
//   - If the write or the fsync fails, Append truncates the file back to
//     the size it had before the attempt. A failed admission therefore
//     leaves no partial line that the next record would be glued onto.
//
//   - Replay ignores a final line without a newline (a crash in the
//     middle of a write), and the first Append after startup cuts that
//     tail off before writing.
//
// If even the truncate fails, the log refuses every further Append until
// the process restarts; the restart then repairs the tail.
package flatfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aanand-mishra/pace-registry/internal/storage"
	"github.com/aanand-mishra/pace-registry/internal/types"
)

// maxLineSize bounds a single log line during replay.
const maxLineSize = 1 << 20

// File is a storage.Log backed by an append-only text file.
type File struct {
	path string

	mu     sync.Mutex
	f      *os.File
	closed bool
	broken error // set when a failed append could not be rolled back

	// write and sync are the file operations Append uses; tests replace
	// them to simulate a full disk.
	write func(f *os.File, p []byte) (int, error)
	sync  func(f *os.File) error
}

var _ storage.Log = (*File)(nil)

// New returns a log for path. The file and its parent directory are
// created lazily on the first Append, so a fresh deployment replays as
// empty without touching the disk.
func New(path string) *File {
	return &File{
		path:  path,
		write: (*os.File).Write,
		sync:  (*os.File).Sync,
	}
}

// Path returns the file the log writes to.
func (l *File) Path() string { return l.path }

// ─────────────────────────────────────────────────────────────────────────────
// Append writes s as one line and syncs it to disk.
//
// On failure the file is truncated back to its previous size, so the log
// holds exactly the records whose Append returned nil.
// ─────────────────────────────────────────────────────────────────────────────
func (l *File) Append(s types.Student) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return storage.ErrClosed
	}
	if l.broken != nil {
		return l.broken
	}

	if l.f == nil {
		if err := l.open(); err != nil {
			return err
		}
	}

	info, err := l.f.Stat()
	if err != nil {
		return fmt.Errorf("flatfile.Append: stat: %w", err)
	}
	offset := info.Size()

	if _, err := l.write(l.f, []byte(encodeLine(s))); err != nil {
		return l.rollback(offset, fmt.Errorf("flatfile.Append: write: %w", err))
	}
	if err := l.sync(l.f); err != nil {
		return l.rollback(offset, fmt.Errorf("flatfile.Append: sync: %w", err))
	}
	return nil
}

// rollback cuts the file back to offset after a failed append and
// returns cause. Must be called with mu held.
func (l *File) rollback(offset int64, cause error) error {
	if err := l.f.Truncate(offset); err != nil {
		l.broken = fmt.Errorf("flatfile: log left inconsistent by %v: truncate: %w", cause, err)
		slog.Error("failed to roll back partial append",
			slog.String("path", l.path),
			slog.String("error", l.broken.Error()))
		return l.broken
	}
	return cause
}

// open opens the file for appending and drops an unterminated last line
// left by an interrupted write. Must be called with mu held.
func (l *File) open() error {
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("flatfile.Append: create dir: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("flatfile.Append: open: %w", err)
	}

	if err := trimTail(f); err != nil {
		f.Close()
		return fmt.Errorf("flatfile.Append: repair tail: %w", err)
	}

	l.f = f
	return nil
}

// trimTail truncates f just after its last newline.
func trimTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	end, err := endOfLastLine(f, size)
	if err != nil {
		return err
	}
	if end == size {
		return nil
	}

	slog.Warn("dropping unterminated last line",
		slog.String("path", f.Name()),
		slog.Int64("bytes", size-end))
	return f.Truncate(end)
}

// endOfLastLine returns the offset just past the last '\n' in the first
// size bytes of f, or 0 if there is none.
func endOfLastLine(f *os.File, size int64) (int64, error) {
	buf := make([]byte, 4096)
	for end := size; end > 0; {
		start := max(end-int64(len(buf)), 0)
		chunk := buf[:end-start]
		if _, err := f.ReadAt(chunk, start); err != nil {
			return 0, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Replay reads the file from the start.
//
// Lines that do not split into exactly four fields are skipped, and so is
// a final line with no newline. A missing file yields no records.
// ─────────────────────────────────────────────────────────────────────────────
func (l *File) Replay() ([]types.Student, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return []types.Student{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("flatfile.Replay: open: %w", err)
	}
	defer f.Close()

	students := make([]types.Student, 0)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	sc.Split(scanTerminatedLines)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		s, ok := decodeLine(sc.Text())
		if !ok {
			slog.Debug("skipping malformed log line",
				slog.String("path", l.path),
				slog.Int("line", lineNo))
			continue
		}
		students = append(students, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("flatfile.Replay: scan: %w", err)
	}

	return students, nil
}

// scanTerminatedLines is bufio.ScanLines without the final unterminated
// line.
func scanTerminatedLines(data []byte, atEOF bool) (int, []byte, error) {
	if bytes.IndexByte(data, '\n') >= 0 {
		return bufio.ScanLines(data, atEOF)
	}
	if atEOF && len(data) > 0 {
		return len(data), nil, nil
	}
	return 0, nil, nil
}

// Close closes the file handle. Further appends fail with
// storage.ErrClosed. Close is idempotent.
func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
