package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/me/gridshift/internal/queue"
	"github.com/me/gridshift/internal/store"
	"github.com/me/gridshift/pkg/model"
)

// Worker consumes one execution queue (FAST or ECO), simulates the compute,
// and reports duration and emissions back to the job store. Workers are the
// sole writers of RUNNING/DONE state; their only contact with the scheduler
// is the queue handoff.
type Worker struct {
	store  store.Store
	queues queue.Queues
	config Config
	logger *slog.Logger
	rng    *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) error
}

// Config holds worker configuration.
type Config struct {
	// Mode selects the queue this worker drains: FAST or ECO.
	Mode model.Mode

	// Poll is the queue polling interval.
	Poll time.Duration

	// MinWork and MaxWork bound the simulated busy time per job.
	MinWork time.Duration
	MaxWork time.Duration

	// PowerKW is the simulated draw used for the emissions estimate.
	PowerKW float64
}

// DefaultConfig returns the simulation profile for a mode: FAST burns more
// power for a shorter time, ECO the reverse.
func DefaultConfig(mode model.Mode) Config {
	cfg := Config{Mode: mode, Poll: 3 * time.Second}
	switch mode {
	case model.ModeEco:
		cfg.MinWork = 1200 * time.Millisecond
		cfg.MaxWork = 3 * time.Second
		cfg.PowerKW = 0.12
	default:
		cfg.MinWork = 300 * time.Millisecond
		cfg.MaxWork = 900 * time.Millisecond
		cfg.PowerKW = 0.35
	}
	return cfg
}

// New creates a Worker.
func New(st store.Store, q queue.Queues, cfg Config, logger *slog.Logger) (*Worker, error) {
	if cfg.Mode != model.ModeFast && cfg.Mode != model.ModeEco {
		return nil, fmt.Errorf("worker mode must be FAST or ECO, got %q", cfg.Mode)
	}
	def := DefaultConfig(cfg.Mode)
	if cfg.Poll <= 0 {
		cfg.Poll = def.Poll
	}
	if cfg.MinWork <= 0 {
		cfg.MinWork = def.MinWork
	}
	if cfg.MaxWork < cfg.MinWork {
		cfg.MaxWork = def.MaxWork
	}
	if cfg.PowerKW <= 0 {
		cfg.PowerKW = def.PowerKW
	}

	return &Worker{
		store:  st,
		queues: q,
		config: cfg,
		logger: logger.With("component", "worker", "mode", cfg.Mode),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}, nil
}

// Run starts the polling loop until ctx is cancelled. An in-flight job is
// finished before returning.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "poll", w.config.Poll)
	ticker := time.NewTicker(w.config.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		case <-ticker.C:
			if err := w.PollOnce(ctx); err != nil {
				w.logger.Error("poll error", "error", err)
			}
		}
	}
}

// PollOnce pops at most one job from this worker's queue and executes it.
// An empty queue is not an error.
func (w *Worker) PollOnce(ctx context.Context) error {
	queueName := queue.Fast
	if w.config.Mode == model.ModeEco {
		queueName = queue.Eco
	}

	id, err := w.queues.Pop(ctx, queueName)
	if err != nil {
		return fmt.Errorf("pop %s: %w", queueName, err)
	}
	if id == "" {
		return nil
	}
	return w.execute(ctx, id)
}

// execute runs one job: RUNNING, simulated busy time, then DONE with
// duration and an emissions estimate from the carbon reading recorded at
// decision time.
func (w *Worker) execute(ctx context.Context, id string) error {
	start := time.Now().UTC()
	if err := w.store.MarkRunning(ctx, id, start); err != nil {
		var tErr *model.InvalidTransitionError
		if errors.As(err, &tErr) {
			// Stale or duplicate queue entry; drop it.
			w.logger.Warn("skipping job not in SCHEDULED state", "job_id", id, "status", tErr.From)
			return nil
		}
		return fmt.Errorf("mark running %s: %w", id, err)
	}

	job, err := w.store.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job %s: %w", id, err)
	}

	workTime := w.workDuration()
	w.logger.Info("job running", "job_id", id, "work", workTime)
	if err := w.sleep(ctx, workTime); err != nil {
		w.logger.Warn("work interrupted, finishing job", "job_id", id)
	}

	duration := time.Since(start)
	ci := 0
	if job != nil && job.CarbonAtDecision != nil {
		ci = *job.CarbonAtDecision
	}

	res := model.Result{
		DurationMS:  duration.Milliseconds(),
		EmissionsKG: emissionsKG(ci, w.config.PowerKW, duration),
		Result:      "ok",
		CompletedAt: time.Now().UTC(),
	}
	if err := w.store.MarkDone(ctx, id, res); err != nil {
		return fmt.Errorf("mark done %s: %w", id, err)
	}

	w.logger.Info("job done",
		"job_id", id,
		"duration_ms", res.DurationMS,
		"emissions_kg", res.EmissionsKG,
	)
	return nil
}

// workDuration picks a simulated busy time in [MinWork, MaxWork].
func (w *Worker) workDuration() time.Duration {
	span := w.config.MaxWork - w.config.MinWork
	if span <= 0 {
		return w.config.MinWork
	}
	return w.config.MinWork + time.Duration(w.rng.Int63n(int64(span)))
}

// emissionsKG estimates emitted CO2: intensity (gCO2/kWh) times energy used
// (kW times hours), converted to kilograms.
func emissionsKG(ci int, powerKW float64, d time.Duration) float64 {
	return float64(ci) * powerKW * d.Hours() / 1000
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
