package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueues implements Queues on Redis: one list per FIFO queue and a
// sorted set for the deferred set, scored by deadline (unix milliseconds, so
// the score never rounds a deadline below the value the store recorded). List
// and sorted-set commands are atomic per call, which gives the per-job
// atomicity the scheduler and workers rely on.
type RedisQueues struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisQueues wraps an already-connected client.
func NewRedisQueues(client *redis.Client, logger *slog.Logger) *RedisQueues {
	return &RedisQueues{
		client: client,
		logger: logger.With("component", "queues"),
	}
}

const deferredKey = "jobs:deferred"

func listKey(queue string) string {
	return "queue:" + queue
}

// Push appends a job id to the tail of a queue.
func (q *RedisQueues) Push(ctx context.Context, queue, jobID string) error {
	if err := q.client.RPush(ctx, listKey(queue), jobID).Err(); err != nil {
		return fmt.Errorf("push %s to %s: %w", jobID, queue, err)
	}
	return nil
}

// PushFront returns a job id to the head of a queue.
func (q *RedisQueues) PushFront(ctx context.Context, queue, jobID string) error {
	if err := q.client.LPush(ctx, listKey(queue), jobID).Err(); err != nil {
		return fmt.Errorf("push front %s to %s: %w", jobID, queue, err)
	}
	return nil
}

// Pop removes and returns the head of a queue, or "" when empty.
func (q *RedisQueues) Pop(ctx context.Context, queue string) (string, error) {
	id, err := q.client.LPop(ctx, listKey(queue)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("pop %s: %w", queue, err)
	}
	return id, nil
}

// DeferredInsert adds or rescores a job in the deferred set.
func (q *RedisQueues) DeferredInsert(ctx context.Context, jobID string, deadline time.Time) error {
	err := q.client.ZAdd(ctx, deferredKey, redis.Z{
		Score:  float64(deadline.UnixMilli()),
		Member: jobID,
	}).Err()
	if err != nil {
		return fmt.Errorf("deferred insert %s: %w", jobID, err)
	}
	return nil
}

// DeferredRemove removes a job from the deferred set.
func (q *RedisQueues) DeferredRemove(ctx context.Context, jobID string) error {
	if err := q.client.ZRem(ctx, deferredKey, jobID).Err(); err != nil {
		return fmt.Errorf("deferred remove %s: %w", jobID, err)
	}
	return nil
}

// DeferredBefore returns jobs whose deadline is at or before t, in deadline order.
func (q *RedisQueues) DeferredBefore(ctx context.Context, t time.Time) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, deferredKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(t.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("deferred range: %w", err)
	}
	return ids, nil
}

// DeferredAll returns the whole deferred set in deadline order.
func (q *RedisQueues) DeferredAll(ctx context.Context) ([]string, error) {
	ids, err := q.client.ZRange(ctx, deferredKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("deferred all: %w", err)
	}
	return ids, nil
}

// Close is a no-op: the Redis client is shared with the job store and owned
// by the caller that dialed it.
func (q *RedisQueues) Close() error {
	return nil
}
