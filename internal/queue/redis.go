package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueueConfig names the three lists the queue lives on.
type RedisQueueConfig struct {
	PendingKey    string
	ProcessingKey string
	FailedKey     string
}

// RedisQueue implements Queue on redis lists. BRPopLPush moves a task
// from pending to processing in one step, so a worker crash between
// claim and resolve leaves the entry visible to the recovery loop.
type RedisQueue struct {
	client *redis.Client
	cfg    RedisQueueConfig
	logger *slog.Logger
}

// NewRedisQueue creates a queue on the given redis client.
func NewRedisQueue(client *redis.Client, cfg RedisQueueConfig, logger *slog.Logger) *RedisQueue {
	return &RedisQueue{client: client, cfg: cfg, logger: logger}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	if err := q.client.LPush(ctx, q.cfg.PendingKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.JobID, err)
	}
	return nil
}

func (q *RedisQueue) Claim(ctx context.Context, timeout time.Duration) (*Claimed, error) {
	raw, err := q.client.BRPopLPush(ctx, q.cfg.PendingKey, q.cfg.ProcessingKey, timeout).Result()
	if err == redis.Nil {
		return nil, nil // timeout, no work
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}

	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		// Malformed payload: drop it from processing so it doesn't get
		// recovered forever.
		q.client.LRem(ctx, q.cfg.ProcessingKey, 1, raw)
		return nil, fmt.Errorf("parse task payload: %w", err)
	}

	return &Claimed{Task: task, raw: raw}, nil
}

func (q *RedisQueue) Complete(ctx context.Context, c *Claimed) error {
	if err := q.client.LRem(ctx, q.cfg.ProcessingKey, 1, c.raw).Err(); err != nil {
		return fmt.Errorf("complete task %s: %w", c.JobID, err)
	}
	return nil
}

func (q *RedisQueue) Abandon(ctx context.Context, c *Claimed) error {
	if err := q.client.LPush(ctx, q.cfg.FailedKey, c.raw).Err(); err != nil {
		return fmt.Errorf("abandon task %s: %w", c.JobID, err)
	}
	return q.Complete(ctx, c)
}

func (q *RedisQueue) Processing(ctx context.Context) ([]*Claimed, error) {
	raws, err := q.client.LRange(ctx, q.cfg.ProcessingKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list processing: %w", err)
	}

	claims := make([]*Claimed, 0, len(raws))
	for _, raw := range raws {
		var task Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			q.logger.Warn("dropping malformed processing entry", "error", err)
			q.client.LRem(ctx, q.cfg.ProcessingKey, 1, raw)
			continue
		}
		claims = append(claims, &Claimed{Task: task, raw: raw})
	}
	return claims, nil
}

func (q *RedisQueue) Requeue(ctx context.Context, c *Claimed) error {
	if err := q.client.LPush(ctx, q.cfg.PendingKey, c.raw).Err(); err != nil {
		return fmt.Errorf("requeue task %s: %w", c.JobID, err)
	}
	return q.Complete(ctx, c)
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	var err error

	if stats.Pending, err = q.client.LLen(ctx, q.cfg.PendingKey).Result(); err != nil {
		return stats, fmt.Errorf("queue stats: %w", err)
	}
	if stats.Processing, err = q.client.LLen(ctx, q.cfg.ProcessingKey).Result(); err != nil {
		return stats, fmt.Errorf("queue stats: %w", err)
	}
	if stats.Failed, err = q.client.LLen(ctx, q.cfg.FailedKey).Result(); err != nil {
		return stats, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}
