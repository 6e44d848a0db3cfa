package queue

import (
	"context"
	"time"
)

// Queue names. PENDING is the intake queue; FAST and ECO are the execution
// queues workers consume from.
const (
	Pending = "pending"
	Fast    = "fast"
	Eco     = "eco"
)

// Queues is the queue set the scheduler and workers share: three FIFO queues
// plus the time-ordered deferred set keyed by deadline. Every operation is
// atomic at the granularity of a single job id, so concurrent workers popping
// the same queue never receive the same job twice.
type Queues interface {
	// Push appends a job id to the tail of a queue.
	Push(ctx context.Context, queue, jobID string) error

	// PushFront returns a job id to the head of a queue, preserving FIFO
	// order when a popped job has to be put back after a failed tick.
	PushFront(ctx context.Context, queue, jobID string) error

	// Pop removes and returns the head of a queue, or "" when the queue is
	// empty. Non-blocking.
	Pop(ctx context.Context, queue string) (string, error)

	// DeferredInsert adds a job to the deferred set keyed by deadline,
	// replacing any previous deadline for the same job.
	DeferredInsert(ctx context.Context, jobID string, deadline time.Time) error

	// DeferredRemove removes a job from the deferred set. Removing an absent
	// job is not an error.
	DeferredRemove(ctx context.Context, jobID string) error

	// DeferredBefore returns the ids of jobs whose deadline is at or before t,
	// in deadline order.
	DeferredBefore(ctx context.Context, t time.Time) ([]string, error)

	// DeferredAll returns every id in the deferred set, in deadline order.
	DeferredAll(ctx context.Context) ([]string, error)

	// Close releases underlying resources.
	Close() error
}
