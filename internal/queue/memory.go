package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueues is an in-process Queues implementation used by standalone mode
// and tests. A single mutex guards all queues and the deferred set, making
// each operation atomic per job.
type MemoryQueues struct {
	mu       sync.Mutex
	lists    map[string][]string
	deferred map[string]time.Time
}

// NewMemoryQueues creates an empty in-memory queue set.
func NewMemoryQueues() *MemoryQueues {
	return &MemoryQueues{
		lists:    make(map[string][]string),
		deferred: make(map[string]time.Time),
	}
}

// Push appends a job id to the tail of a queue.
func (q *MemoryQueues) Push(ctx context.Context, queue, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lists[queue] = append(q.lists[queue], jobID)
	return nil
}

// PushFront returns a job id to the head of a queue.
func (q *MemoryQueues) PushFront(ctx context.Context, queue, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lists[queue] = append([]string{jobID}, q.lists[queue]...)
	return nil
}

// Pop removes and returns the head of a queue, or "" when empty.
func (q *MemoryQueues) Pop(ctx context.Context, queue string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	l := q.lists[queue]
	if len(l) == 0 {
		return "", nil
	}
	id := l[0]
	q.lists[queue] = l[1:]
	return id, nil
}

// DeferredInsert adds or rescores a job in the deferred set.
func (q *MemoryQueues) DeferredInsert(ctx context.Context, jobID string, deadline time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deferred[jobID] = deadline
	return nil
}

// DeferredRemove removes a job from the deferred set.
func (q *MemoryQueues) DeferredRemove(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.deferred, jobID)
	return nil
}

// DeferredBefore returns jobs with deadlines at or before t, in deadline order.
func (q *MemoryQueues) DeferredBefore(ctx context.Context, t time.Time) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []string
	for id, deadline := range q.deferred {
		if !deadline.After(t) {
			due = append(due, id)
		}
	}
	q.sortByDeadline(due)
	return due, nil
}

// DeferredAll returns the whole deferred set in deadline order.
func (q *MemoryQueues) DeferredAll(ctx context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	all := make([]string, 0, len(q.deferred))
	for id := range q.deferred {
		all = append(all, id)
	}
	q.sortByDeadline(all)
	return all, nil
}

// sortByDeadline orders ids by deadline, then id for a stable order.
// Caller must hold the mutex.
func (q *MemoryQueues) sortByDeadline(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		di, dj := q.deferred[ids[i]], q.deferred[ids[j]]
		if di.Equal(dj) {
			return ids[i] < ids[j]
		}
		return di.Before(dj)
	})
}

// Close is a no-op for the in-memory implementation.
func (q *MemoryQueues) Close() error {
	return nil
}
