// Package queue implements the priority job queue: four FIFOs drained in
// strict priority order plus a time-indexed scheduled set.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/innosystem/dispatch-platform-backend/internal/data"
)

const (
	// pendingKeyFormat is the FIFO key per priority, e.g. innosystem:jobs:p3:pending.
	pendingKeyFormat = "innosystem:jobs:p%d:pending"
	scheduledKey     = "innosystem:jobs:scheduled"
)

// PendingKey returns the FIFO key for the given priority.
func PendingKey(priority data.JobPriority) string {
	return fmt.Sprintf(pendingKeyFormat, int(priority))
}

// PendingKeysByPriority returns all FIFO keys ordered highest priority first,
// which is the order a pop probes them in.
func PendingKeysByPriority() []string {
	keys := make([]string, 0, len(data.JobPriorities()))
	for _, p := range data.JobPriorities() {
		keys = append(keys, PendingKey(p))
	}
	return keys
}

// Broker hands job ids between the API and the workers. Entries are bare job
// id strings; the scheduled set scores members with the due time in ms epoch.
type Broker interface {
	// Push appends the job id at the tail of the FIFO for the priority.
	Push(ctx context.Context, jobID string, priority data.JobPriority) error
	// Pop blocks up to timeout and returns the head of the highest-priority
	// non-empty FIFO. It returns "" with a nil error on timeout.
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	// Length returns the total depth across all four FIFOs.
	Length(ctx context.Context) (int64, error)
	// LengthByPriority returns the depth of one FIFO.
	LengthByPriority(ctx context.Context, priority data.JobPriority) (int64, error)
	// PeekNext returns the id a Pop would hand out, without removing it.
	// It returns "" when all FIFOs are empty.
	PeekNext(ctx context.Context) (string, error)
	// Schedule places the job id in the scheduled set at the due time.
	Schedule(ctx context.Context, jobID string, dueTime time.Time) error
	// DrainDue removes and returns all scheduled entries whose due time has
	// passed.
	DrainDue(ctx context.Context) ([]string, error)
	Close() error
}
