package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/me/gridshift/pkg/model"
	"github.com/redis/go-redis/v9"
)

// Backoff configures the bounded reconnect strategy for Redis dialing.
// A zero Delay or MaxAttempts falls back to defaults.
type Backoff struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultBackoff returns the default dial backoff: 5 attempts, 2s apart.
func DefaultBackoff() Backoff {
	return Backoff{MaxAttempts: 5, Delay: 2 * time.Second}
}

// DialRedis connects to Redis with a bounded fixed-delay retry, pinging on
// each attempt. The returned client is shared between the job store and the
// queue set; the caller owns and closes it.
func DialRedis(ctx context.Context, addr string, bo Backoff, logger *slog.Logger) (*redis.Client, error) {
	if bo.MaxAttempts <= 0 {
		bo.MaxAttempts = 5
	}
	if bo.Delay <= 0 {
		bo.Delay = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	var lastErr error
	for attempt := 1; attempt <= bo.MaxAttempts; attempt++ {
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		logger.Warn("redis not reachable", "addr", addr, "attempt", attempt, "error", lastErr)
		if attempt == bo.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			client.Close()
			return nil, ctx.Err()
		case <-time.After(bo.Delay):
		}
	}

	client.Close()
	return nil, fmt.Errorf("connect redis %s after %d attempts: %w", addr, bo.MaxAttempts, lastErr)
}

// RedisStore implements Store on Redis: one hash per job plus a creation-time
// index for listing. A single HSET carries every field of a decision, which
// gives the atomic partial-field update the scheduler requires.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger.With("component", "store"),
	}
}

const jobIndexKey = "jobs:index"

func jobKey(id string) string {
	return "job:" + id
}

// Migrate is a no-op; Redis needs no schema.
func (s *RedisStore) Migrate(ctx context.Context) error {
	return nil
}

// Close is a no-op: the shared client is owned by the caller that dialed it.
func (s *RedisStore) Close() error {
	return nil
}

// CreateJob writes the job hash and indexes it by creation time.
func (s *RedisStore) CreateJob(ctx context.Context, job *model.Job) error {
	s.logger.Debug("redis", "op", "create", "id", job.ID)

	fields := map[string]any{
		"type":              job.Type,
		"urgency":           string(job.Urgency),
		"status":            string(job.Status),
		"mode":              string(job.Mode),
		"decision_ts":       formatTimePtr(job.DecisionAt),
		"carbon":            formatIntPtr(job.CarbonAtDecision),
		"rule_id":           job.RuleID,
		"reason":            job.Reason,
		"defer_deadline_ts": formatTimePtr(job.DeferDeadline),
		"duration_ms":       strconv.FormatInt(job.DurationMS, 10),
		"emissions_kg":      strconv.FormatFloat(job.EmissionsKG, 'f', -1, 64),
		"result":            job.Result,
		"created_at":        job.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":        job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID), fields)
	pipe.ZAdd(ctx, jobIndexKey, redis.Z{Score: float64(job.CreatedAt.UnixNano()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob returns a job by id, or (nil, nil) when the hash does not exist.
func (s *RedisStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	fields, err := s.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return jobFromFields(id, fields), nil
}

// ListJobs pages through the creation-time index, newest first.
func (s *RedisStore) ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error) {
	opts.Clamp()

	ids, err := s.client.ZRevRange(ctx, jobIndexKey, 0, -1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}

	var matched []*model.Job
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if job == nil {
			continue
		}
		if opts.Status != "" && string(job.Status) != opts.Status {
			continue
		}
		matched = append(matched, job)
	}

	total := len(matched)
	if opts.Offset >= total {
		return nil, total, nil
	}
	end := opts.Offset + opts.Limit
	if end > total {
		end = total
	}
	return matched[opts.Offset:end], total, nil
}

// UpdateDecision writes every decision field in one HSET. An empty string
// clears decision_ts-style optional fields, so clearing a deadline and
// setting the new mode stay in the same atomic write.
func (s *RedisStore) UpdateDecision(ctx context.Context, id string, d model.Decision) error {
	s.logger.Debug("redis", "op", "update_decision", "id", id, "status", d.Status, "rule", d.RuleID)

	exists, err := s.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return fmt.Errorf("update decision %s: %w", id, err)
	}
	if exists == 0 {
		return fmt.Errorf("job %s not found", id)
	}

	ts := d.DecisionAt.UTC().Format(time.RFC3339Nano)
	fields := map[string]any{
		"status":            string(d.Status),
		"mode":              string(d.Mode),
		"decision_ts":       ts,
		"carbon":            strconv.Itoa(d.CarbonAtDecision),
		"rule_id":           d.RuleID,
		"reason":            d.Reason,
		"defer_deadline_ts": formatTimePtr(d.DeferDeadline),
		"updated_at":        ts,
	}
	if err := s.client.HSet(ctx, jobKey(id), fields).Err(); err != nil {
		return fmt.Errorf("update decision %s: %w", id, err)
	}
	return nil
}

// MarkRunning transitions a SCHEDULED job to RUNNING.
func (s *RedisStore) MarkRunning(ctx context.Context, id string, at time.Time) error {
	return s.transition(ctx, id, model.StatusScheduled, map[string]any{
		"status":     string(model.StatusRunning),
		"updated_at": at.UTC().Format(time.RFC3339Nano),
	}, model.StatusRunning)
}

// MarkDone transitions a RUNNING job to DONE with its execution result.
func (s *RedisStore) MarkDone(ctx context.Context, id string, res model.Result) error {
	return s.transition(ctx, id, model.StatusRunning, map[string]any{
		"status":       string(model.StatusDone),
		"duration_ms":  strconv.FormatInt(res.DurationMS, 10),
		"emissions_kg": strconv.FormatFloat(res.EmissionsKG, 'f', -1, 64),
		"result":       res.Result,
		"updated_at":   res.CompletedAt.UTC().Format(time.RFC3339Nano),
	}, model.StatusDone)
}

// transition checks the current status before writing. Workers are the sole
// writers of these fields for a popped job, so check-then-set is safe.
func (s *RedisStore) transition(ctx context.Context, id string, from model.JobStatus, fields map[string]any, to model.JobStatus) error {
	s.logger.Debug("redis", "op", "transition", "id", id, "to", to)

	current, err := s.client.HGet(ctx, jobKey(id), "status").Result()
	if err == redis.Nil {
		return fmt.Errorf("job %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("transition %s: %w", id, err)
	}
	if model.JobStatus(current) != from {
		return &model.InvalidTransitionError{ID: id, From: model.JobStatus(current), To: to}
	}
	if err := s.client.HSet(ctx, jobKey(id), fields).Err(); err != nil {
		return fmt.Errorf("transition %s: %w", id, err)
	}
	return nil
}

// jobFromFields rebuilds a Job from its hash representation. Unparseable
// optional fields degrade to nil rather than failing the read.
func jobFromFields(id string, f map[string]string) *model.Job {
	job := &model.Job{
		ID:      id,
		Type:    f["type"],
		Urgency: model.Urgency(f["urgency"]),
		Status:  model.JobStatus(f["status"]),
		Mode:    model.Mode(f["mode"]),
		RuleID:  f["rule_id"],
		Reason:  f["reason"],
		Result:  f["result"],
	}
	job.DecisionAt = parseTimeField(f["decision_ts"])
	job.DeferDeadline = parseTimeField(f["defer_deadline_ts"])
	if v := f["carbon"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			job.CarbonAtDecision = &n
		}
	}
	if v := f["duration_ms"]; v != "" {
		job.DurationMS, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := f["emissions_kg"]; v != "" {
		job.EmissionsKG, _ = strconv.ParseFloat(v, 64)
	}
	if t := parseTimeField(f["created_at"]); t != nil {
		job.CreatedAt = *t
	}
	if t := parseTimeField(f["updated_at"]); t != nil {
		job.UpdatedAt = *t
	}
	return job
}

// formatTimePtr renders an optional timestamp; nil maps to "".
func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// formatIntPtr renders an optional int; nil maps to "".
func formatIntPtr(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

// parseTimeField parses an optional stored timestamp.
func parseTimeField(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
