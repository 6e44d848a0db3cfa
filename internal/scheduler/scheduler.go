package scheduler

import "context"

// Scheduler samples the carbon signal, applies the policy rule set and
// guardrails to pending and deferred jobs, and routes them into execution
// queues or the deferred set.
type Scheduler interface {
	// Start begins the scheduling loop. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the scheduler, letting the in-flight tick
	// finish.
	Stop() error

	// Tick runs a single scheduling iteration. Used for testing.
	Tick(ctx context.Context) error
}
