package store

import (
	"context"
	"time"

	"github.com/me/gridshift/pkg/model"
)

// Store defines the job record persistence layer.
//
// The scheduler is the only writer of decision fields (UpdateDecision) and
// workers are the only writers of execution fields (MarkRunning, MarkDone),
// so the two write paths never conflict on the same fields.
type Store interface {
	// CreateJob persists a new job record.
	CreateJob(ctx context.Context, job *model.Job) error

	// GetJob returns a job by id, or (nil, nil) when not found.
	GetJob(ctx context.Context, id string) (*model.Job, error)

	// ListJobs returns a page of jobs plus the total match count.
	ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error)

	// UpdateDecision writes one scheduling decision atomically: status, mode,
	// decision timestamp, carbon reading, rule id, reason and defer deadline
	// land in a single write so a reader never observes a mode without its
	// explanation.
	UpdateDecision(ctx context.Context, id string, d model.Decision) error

	// MarkRunning transitions a SCHEDULED job to RUNNING.
	MarkRunning(ctx context.Context, id string, at time.Time) error

	// MarkDone transitions a RUNNING job to DONE with its execution result.
	MarkDone(ctx context.Context, id string, res model.Result) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
