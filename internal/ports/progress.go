package ports

import (
	"context"

	"github.com/ahrav/go-sqm/internal/domain"
)

// ProgressStore is the durable, append-only record of completed steps for
// one project. Only the execution controller mutates it.
type ProgressStore interface {
	// Load reads persisted completion state. An absent store yields an
	// empty record, not an error.
	Load(ctx context.Context) (domain.ProgressRecord, error)

	// IsComplete reports whether step is recorded as complete.
	IsComplete(step int) bool

	// Commit durably records step as complete. It must not return before
	// the record survives a crash. Re-committing a step is idempotent.
	Commit(ctx context.Context, step int) error

	// Invalidate durably drops the records of step from and every later
	// step. Dropping nothing is not an error.
	Invalidate(ctx context.Context, from int) error

	// ResumePoint returns requested if non-nil, otherwise one past the
	// highest completed step. The result is never below 1.
	ResumePoint(requested *int) int

	// Record returns a snapshot of the current record.
	Record() domain.ProgressRecord

	// Close releases any per-project lock held by the store.
	Close() error
}
