package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-sqm/internal/domain"
	"github.com/ahrav/go-sqm/internal/ports"
)

// MemoryStore is a ProgressStore that keeps the record in memory. It is
// used by dry runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	record  domain.ProgressRecord
	commits []int
	now     func() time.Time
}

var _ ports.ProgressStore = (*MemoryStore)(nil)

// NewMemoryStore returns a store whose record already holds completed.
func NewMemoryStore(completed ...int) *MemoryStore {
	s := &MemoryStore{record: domain.NewProgressRecord(), now: time.Now}
	at := s.now().UTC()
	for _, n := range completed {
		s.record.Completed[n] = at
	}
	return s
}

// Load returns the current record.
func (s *MemoryStore) Load(context.Context) (domain.ProgressRecord, error) {
	return s.Record(), nil
}

// IsComplete reports whether step is recorded as complete.
func (s *MemoryStore) IsComplete(step int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.IsComplete(step)
}

// Commit records step as complete.
func (s *MemoryStore) Commit(ctx context.Context, step int) error {
	if step < 1 {
		return ports.NewProgressError("memory", "commit", fmt.Errorf("invalid step number %d", step))
	}
	if err := ctx.Err(); err != nil {
		return ports.NewProgressError("memory", "commit", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Completed[step] = s.now().UTC()
	s.commits = append(s.commits, step)
	return nil
}

// Invalidate drops step from and every later step from the record.
func (s *MemoryStore) Invalidate(ctx context.Context, from int) error {
	if from < 1 {
		return ports.NewProgressError("memory", "invalidate", fmt.Errorf("invalid step number %d", from))
	}
	if err := ctx.Err(); err != nil {
		return ports.NewProgressError("memory", "invalidate", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Invalidate(from)
	return nil
}

// ResumePoint returns requested if non-nil, otherwise one past the highest
// completed step.
func (s *MemoryStore) ResumePoint(requested *int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return resumePoint(s.record, requested)
}

// Record returns a snapshot of the current record.
func (s *MemoryStore) Record() domain.ProgressRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.Clone()
}

// Commits returns every committed step in commit order, including
// re-commits.
func (s *MemoryStore) Commits() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.commits...)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
