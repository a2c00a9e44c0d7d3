package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/innosystem/dispatch-platform-backend/internal/data"
)

// MemoryBroker is an in-process Broker used by tests and local development.
// It mirrors the Redis semantics: strict priority order, FIFO within a level,
// blocking pop with timeout, scheduled drain in due-time order.
type MemoryBroker struct {
	mu        sync.Mutex
	cond      *sync.Cond
	fifos     map[data.JobPriority][]string
	scheduled []scheduledEntry
	closed    bool
}

type scheduledEntry struct {
	jobID string
	due   time.Time
}

var _ Broker = (*MemoryBroker)(nil)

func NewMemoryBroker() *MemoryBroker {
	b := &MemoryBroker{
		fifos: make(map[data.JobPriority][]string),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *MemoryBroker) Push(ctx context.Context, jobID string, priority data.JobPriority) error {
	if err := priority.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	b.fifos[priority] = append(b.fifos[priority], jobID)
	b.mu.Unlock()

	// Broadcast so every waiter re-checks; a single wake can be swallowed by
	// a waiter that another push already satisfied.
	b.cond.Broadcast()
	return nil
}

func (b *MemoryBroker) popLocked() (string, bool) {
	for _, priority := range data.JobPriorities() {
		fifo := b.fifos[priority]
		if len(fifo) > 0 {
			jobID := fifo[0]
			b.fifos[priority] = fifo[1:]
			return jobID, true
		}
	}
	return "", false
}

func (b *MemoryBroker) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	wakeup := time.AfterFunc(timeout, b.cond.Broadcast)
	defer wakeup.Stop()
	stopCtxWatch := context.AfterFunc(ctx, b.cond.Broadcast)
	defer stopCtxWatch()

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if jobID, ok := b.popLocked(); ok {
			return jobID, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !time.Now().Before(deadline) {
			return "", nil
		}
		b.cond.Wait()
	}
}

func (b *MemoryBroker) Length(ctx context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total int64
	for _, fifo := range b.fifos {
		total += int64(len(fifo))
	}
	return total, nil
}

func (b *MemoryBroker) LengthByPriority(ctx context.Context, priority data.JobPriority) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.fifos[priority])), nil
}

func (b *MemoryBroker) PeekNext(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, priority := range data.JobPriorities() {
		fifo := b.fifos[priority]
		if len(fifo) > 0 {
			return fifo[0], nil
		}
	}
	return "", nil
}

func (b *MemoryBroker) Schedule(ctx context.Context, jobID string, dueTime time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.scheduled = append(b.scheduled, scheduledEntry{jobID: jobID, due: dueTime})
	return nil
}

// DrainDue removes and returns the jobs whose due time has passed, earliest
// due first.
func (b *MemoryBroker) DrainDue(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	var due []scheduledEntry
	var remaining []scheduledEntry
	for _, entry := range b.scheduled {
		if !entry.due.After(now) {
			due = append(due, entry)
		} else {
			remaining = append(remaining, entry)
		}
	}
	b.scheduled = remaining

	sort.SliceStable(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })
	dueJobIDs := make([]string, 0, len(due))
	for _, entry := range due {
		dueJobIDs = append(dueJobIDs, entry.jobID)
	}
	return dueJobIDs, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.cond.Broadcast()
	return nil
}
