package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/gridshift/internal/carbon"
	"github.com/me/gridshift/internal/policy"
	"github.com/me/gridshift/internal/queue"
	"github.com/me/gridshift/internal/store"
	"github.com/me/gridshift/pkg/model"
)

// Config holds scheduler configuration.
type Config struct {
	// TickInterval is the cadence of the loop. A tunable, not a correctness
	// property.
	TickInterval time.Duration

	// RetryBackoff is the fixed delay before a failed tick is retried.
	RetryBackoff time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval: 2 * time.Second,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// origin says where a job under evaluation came from, which decides where it
// goes back if the tick fails mid-flight.
type origin int

const (
	originIntake origin = iota
	originDeferred
)

// Loop implements Scheduler with a polling-based decision loop. It is
// designed to run as the single active scheduler instance: it is the sole
// writer of pre-RUNNING job state.
type Loop struct {
	store  store.Store
	queues queue.Queues
	rules  *policy.RuleSet
	carbon carbon.Source
	config Config
	logger *slog.Logger
	now    func() time.Time
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewLoop creates a new scheduler loop.
func NewLoop(st store.Store, q queue.Queues, rules *policy.RuleSet, src carbon.Source, cfg Config, logger *slog.Logger) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}
	return &Loop{
		store:  st,
		queues: q,
		rules:  rules,
		carbon: src,
		config: cfg,
		logger: logger.With("component", "scheduler"),
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the scheduling loop. Blocks until ctx is cancelled or Stop is
// called. Transient tick failures are logged and retried after RetryBackoff;
// the loop never exits on a recoverable error.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("scheduler started",
		"tick_interval", l.config.TickInterval,
		"low_threshold", l.rules.Low(),
		"high_threshold", l.rules.High(),
		"max_deferral", l.rules.MaxDeferral(),
	)
	ticker := time.NewTicker(l.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopping (context cancelled)")
			close(l.doneCh)
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("scheduler stopping (stop called)")
			close(l.doneCh)
			return nil
		case <-ticker.C:
			l.runTick(ctx)
		}
	}
}

// Stop gracefully shuts down the scheduler and waits for the current tick to
// finish.
func (l *Loop) Stop() error {
	close(l.stopCh)
	<-l.doneCh
	return nil
}

// runTick runs Tick and retries it with a fixed backoff until it succeeds or
// the loop is asked to stop.
func (l *Loop) runTick(ctx context.Context) {
	for {
		err := l.Tick(ctx)
		if err == nil {
			return
		}
		l.logger.Error("tick failed, retrying", "error", err, "backoff", l.config.RetryBackoff)

		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-time.After(l.config.RetryBackoff):
		}
	}
}

// Tick runs a single scheduling iteration. The carbon signal is sampled
// exactly once; every decision in this tick is explainable by that one
// reading.
func (l *Loop) Tick(ctx context.Context) error {
	now := l.now().UTC()

	ci, err := l.carbon.Read(ctx)
	if err != nil {
		return fmt.Errorf("carbon read: %w", err)
	}

	// Phase 1: Deferred-set reconciliation. A green window releases the
	// whole backlog and supersedes the deadline scan for this tick, so no
	// job can be released twice in one tick.
	var released []string
	if ci < l.rules.Low() {
		released, err = l.queues.DeferredAll(ctx)
		if err != nil {
			return fmt.Errorf("phase 1 (green window): %w", err)
		}
		if len(released) > 0 {
			l.logger.Info("green window: releasing deferred backlog", "carbon", ci, "jobs", len(released))
		}
	} else {
		released, err = l.queues.DeferredBefore(ctx, now)
		if err != nil {
			return fmt.Errorf("phase 1 (deadline scan): %w", err)
		}
	}

	for _, id := range released {
		if err := l.decide(ctx, id, ci, now, originDeferred); err != nil {
			return fmt.Errorf("phase 1 (release %s): %w", id, err)
		}
	}

	// Phase 2: Intake. At most one pending job per tick; an empty queue is
	// simply no intake this tick.
	id, err := l.queues.Pop(ctx, queue.Pending)
	if err != nil {
		return fmt.Errorf("phase 2 (intake pop): %w", err)
	}
	if id != "" {
		if err := l.decide(ctx, id, ci, now, originIntake); err != nil {
			// The pop removed the job from PENDING; put it back at the head
			// so the retried tick sees it again and nothing is dropped.
			if pushErr := l.queues.PushFront(ctx, queue.Pending, id); pushErr != nil {
				l.logger.Error("requeue pending job failed", "job_id", id, "error", pushErr)
			}
			return fmt.Errorf("phase 2 (intake %s): %w", id, err)
		}
	}

	return nil
}

// decide loads a job, evaluates policy and guardrails under this tick's
// carbon reading, persists the decision, and routes the job so it lands on
// exactly one of {FAST, ECO, deferred set}.
func (l *Loop) decide(ctx context.Context, id string, ci int, now time.Time, from origin) error {
	job, err := l.store.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job %s: %w", id, err)
	}

	if job == nil || !job.Urgency.Valid() {
		// Malformed or missing record: skip it, leave it where it is for a
		// future tick rather than destroying it.
		l.logger.Warn("skipping unreadable job record", "job_id", id, "found", job != nil)
		if from == originIntake {
			if err := l.queues.Push(ctx, queue.Pending, id); err != nil {
				return fmt.Errorf("requeue unreadable job %s: %w", id, err)
			}
		}
		return nil
	}

	out := l.rules.Decide(ci, job.Urgency, job.DeferDeadline, now)

	d := model.Decision{
		DecisionAt:       now,
		CarbonAtDecision: ci,
		RuleID:           out.RuleID,
		Reason:           out.Reason,
	}
	if out.Mode == model.ModeDefer {
		d.Status = model.StatusDeferred
		d.DeferDeadline = out.DeferDeadline
	} else {
		d.Status = model.StatusScheduled
		d.Mode = out.Mode
	}

	// Persist before routing: if this fails the job stays in its prior
	// queue/set and the tick is retried.
	if err := l.store.UpdateDecision(ctx, id, d); err != nil {
		return fmt.Errorf("persist decision for %s: %w", id, err)
	}

	if out.Mode == model.ModeDefer {
		// Insert (or rescore, when re-deferring a released job) keyed by the
		// deadline the guardrail settled on.
		if err := l.queues.DeferredInsert(ctx, id, *out.DeferDeadline); err != nil {
			return fmt.Errorf("defer %s: %w", id, err)
		}
		l.logger.Info("job deferred",
			"job_id", id, "rule", out.RuleID, "carbon", ci,
			"deadline", out.DeferDeadline.UTC().Format(time.RFC3339))
		return nil
	}

	if from == originDeferred {
		if err := l.queues.DeferredRemove(ctx, id); err != nil {
			return fmt.Errorf("remove released %s: %w", id, err)
		}
	}

	target := queue.Fast
	if out.Mode == model.ModeEco {
		target = queue.Eco
	}
	if err := l.queues.Push(ctx, target, id); err != nil {
		// Try to restore placement so the job is not stranded outside every
		// queue; the retried tick will release it again.
		if from == originDeferred && job.DeferDeadline != nil {
			if insErr := l.queues.DeferredInsert(ctx, id, *job.DeferDeadline); insErr != nil {
				l.logger.Error("restore deferred placement failed", "job_id", id, "error", insErr)
			}
		}
		return fmt.Errorf("route %s to %s: %w", id, target, err)
	}

	l.logger.Info("job scheduled",
		"job_id", id, "mode", out.Mode, "rule", out.RuleID, "carbon", ci)
	return nil
}
