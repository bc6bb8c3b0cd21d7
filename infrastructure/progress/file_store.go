// Package progress provides durable and in-memory implementations of the
// progress store that records which pipeline steps of a project completed.
package progress

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-sqm/internal/ctxlog"
	"github.com/ahrav/go-sqm/internal/domain"
	"github.com/ahrav/go-sqm/internal/ports"
)

const (
	// LogFile is the progress log inside the project directory.
	LogFile = "progress"

	// LockFile serializes runs of one project.
	LockFile = ".sqm.lock"

	// invalidateMarker leads a log line that drops the records of its step
	// and every later step.
	invalidateMarker = "invalidate"
)

// Option configures a FileStore.
type Option func(*FileStore)

// WithStepNames sets how step numbers are labelled in the log. The name is
// informational; only the number is read back.
func WithStepNames(name func(step int) string) Option {
	return func(s *FileStore) { s.stepName = name }
}

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) { s.now = now }
}

// FileStore is a ProgressStore backed by an append-only text log, one line
// per commit:
//
//	<step>\t<name>\t<RFC3339Nano UTC timestamp>
//
// Invalidate appends a line that drops the step it names and every later
// step from the entries above it:
//
//	invalidate\t<step>\t<RFC3339Nano UTC timestamp>
//
// Every line is fsynced together with its directory before it is reported.
// The store holds an exclusive lock on the project for its lifetime.
type FileStore struct {
	dir      string
	path     string
	stepName func(int) string
	now      func() time.Time
	lock     *projectLock

	mu     sync.RWMutex
	record domain.ProgressRecord
}

var _ ports.ProgressStore = (*FileStore)(nil)

// Open creates the project directory if needed, takes the project lock and
// returns a store over its progress log. A project already locked by
// another process yields ErrProjectLocked. Call Load before querying.
func Open(projectDir string, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return nil, ports.NewProgressError(projectDir, "open", err)
	}
	lock, err := acquireLock(filepath.Join(projectDir, LockFile))
	if err != nil {
		return nil, ports.NewProgressError(projectDir, "lock", err)
	}

	s := &FileStore{
		dir:      projectDir,
		path:     filepath.Join(projectDir, LogFile),
		stepName: func(n int) string { return "step" + strconv.Itoa(n) },
		now:      time.Now,
		lock:     lock,
		record:   domain.NewProgressRecord(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the progress log location.
func (s *FileStore) Path() string { return s.path }

// Load reads the progress log. An absent log is an empty record. A final
// line without a newline is a commit torn by a crash: it was never
// acknowledged, so it is dropped and truncated away.
func (s *FileStore) Load(ctx context.Context) (domain.ProgressRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.mu.Lock()
			s.record = domain.NewProgressRecord()
			s.mu.Unlock()
			return domain.NewProgressRecord(), nil
		}
		return domain.ProgressRecord{}, ports.NewProgressError(s.path, "load", err)
	}

	if n := len(data); n > 0 && data[n-1] != '\n' {
		keep := bytes.LastIndexByte(data, '\n') + 1
		ctxlog.FromContext(ctx).Warn("discarding torn progress entry",
			"path", s.path, "entry", string(data[keep:]))
		if err := os.Truncate(s.path, int64(keep)); err != nil {
			return domain.ProgressRecord{}, ports.NewProgressError(s.path, "repair", err)
		}
		data = data[:keep]
	}

	record, err := parseLog(data)
	if err != nil {
		return domain.ProgressRecord{}, ports.NewProgressError(s.path, "load", err)
	}

	s.mu.Lock()
	s.record = record
	s.mu.Unlock()
	return record.Clone(), nil
}

func parseLog(data []byte) (domain.ProgressRecord, error) {
	record := domain.NewProgressRecord()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return record, fmt.Errorf("line %d: expected 3 tab-separated fields, got %d", lineNo, len(fields))
		}
		at, err := time.Parse(time.RFC3339Nano, fields[2])
		if err != nil {
			return record, fmt.Errorf("line %d: invalid timestamp %q: %w", lineNo, fields[2], err)
		}
		if fields[0] == invalidateMarker {
			from, err := strconv.Atoi(fields[1])
			if err != nil || from < 1 {
				return record, fmt.Errorf("line %d: invalid step number %q", lineNo, fields[1])
			}
			record.Invalidate(from)
			continue
		}
		step, err := strconv.Atoi(fields[0])
		if err != nil || step < 1 {
			return record, fmt.Errorf("line %d: invalid step number %q", lineNo, fields[0])
		}
		if prev, ok := record.Completed[step]; !ok || at.After(prev) {
			record.Completed[step] = at
		}
	}
	if err := scanner.Err(); err != nil {
		return record, err
	}
	return record, nil
}

// IsComplete reports whether step is recorded as complete.
func (s *FileStore) IsComplete(step int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.IsComplete(step)
}

// Commit appends step to the log and makes it durable.
func (s *FileStore) Commit(ctx context.Context, step int) error {
	if step < 1 {
		return ports.NewProgressError(s.path, "commit", fmt.Errorf("invalid step number %d", step))
	}
	if err := ctx.Err(); err != nil {
		return ports.NewProgressError(s.path, "commit", err)
	}

	at := s.now().UTC()
	line := fmt.Sprintf("%d\t%s\t%s\n", step, s.stepName(step), at.Format(time.RFC3339Nano))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendLine(line); err != nil {
		return ports.NewProgressError(s.path, "commit", err)
	}
	s.record.Completed[step] = at
	return nil
}

// Invalidate appends an invalidation line for from and makes it durable.
// Nothing is written when no recorded step is at or after from.
func (s *FileStore) Invalidate(ctx context.Context, from int) error {
	if from < 1 {
		return ports.NewProgressError(s.path, "invalidate", fmt.Errorf("invalid step number %d", from))
	}
	if err := ctx.Err(); err != nil {
		return ports.NewProgressError(s.path, "invalidate", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record.Highest() < from {
		return nil
	}
	line := fmt.Sprintf("%s\t%d\t%s\n", invalidateMarker, from, s.now().UTC().Format(time.RFC3339Nano))
	if err := s.appendLine(line); err != nil {
		return ports.NewProgressError(s.path, "invalidate", err)
	}
	dropped := s.record.Invalidate(from)
	ctxlog.FromContext(ctx).Info("invalidated progress entries", "path", s.path, "from", from, "steps", dropped)
	return nil
}

// appendLine appends line to the log and syncs it and the directory. The
// caller holds s.mu.
func (s *FileStore) appendLine(line string) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return syncDir(s.dir)
}

// ResumePoint returns requested if non-nil, otherwise one past the highest
// completed step.
func (s *FileStore) ResumePoint(requested *int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return resumePoint(s.record, requested)
}

// Record returns a snapshot of the current record.
func (s *FileStore) Record() domain.ProgressRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.Clone()
}

// Close releases the project lock.
func (s *FileStore) Close() error {
	if s.lock == nil {
		return nil
	}
	err := s.lock.release()
	s.lock = nil
	return err
}

// ReadLog returns the raw entries of a project's progress log without
// taking the project lock, for read-only inspection.
func ReadLog(projectDir string) (domain.ProgressRecord, error) {
	path := filepath.Join(projectDir, LogFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.NewProgressRecord(), nil
		}
		return domain.ProgressRecord{}, ports.NewProgressError(path, "read", err)
	}
	if n := len(data); n > 0 && data[n-1] != '\n' {
		data = data[:bytes.LastIndexByte(data, '\n')+1]
	}
	record, err := parseLog(data)
	if err != nil {
		return domain.ProgressRecord{}, ports.NewProgressError(path, "read", err)
	}
	return record, nil
}

func resumePoint(record domain.ProgressRecord, requested *int) int {
	if requested != nil {
		if *requested < 1 {
			return 1
		}
		return *requested
	}
	return record.Highest() + 1
}

// syncDir flushes directory metadata so a newly created log survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}
