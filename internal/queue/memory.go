package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue used in tests.
type MemoryQueue struct {
	mu         sync.Mutex
	pending    []string
	processing []string
	failed     []string
	notify     chan struct{}

	// FailEnqueue makes Enqueue return an error, for exercising the
	// enqueue-failure path of the dispatcher.
	FailEnqueue bool
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 64)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task *Task) error {
	if q.FailEnqueue {
		return fmt.Errorf("enqueue task %s: broker unavailable", task.JobID)
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	q.mu.Lock()
	q.pending = append(q.pending, string(payload))
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Claim(ctx context.Context, timeout time.Duration) (*Claimed, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			raw := q.pending[0]
			q.pending = q.pending[1:]
			q.processing = append(q.processing, raw)
			q.mu.Unlock()

			var task Task
			if err := json.Unmarshal([]byte(raw), &task); err != nil {
				return nil, err
			}
			return &Claimed{Task: task, raw: raw}, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) Complete(ctx context.Context, c *Claimed) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processing = remove(q.processing, c.raw)
	return nil
}

func (q *MemoryQueue) Abandon(ctx context.Context, c *Claimed) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processing = remove(q.processing, c.raw)
	q.failed = append(q.failed, c.raw)
	return nil
}

func (q *MemoryQueue) Processing(ctx context.Context) ([]*Claimed, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	claims := make([]*Claimed, 0, len(q.processing))
	for _, raw := range q.processing {
		var task Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			continue
		}
		claims = append(claims, &Claimed{Task: task, raw: raw})
	}
	return claims, nil
}

func (q *MemoryQueue) Requeue(ctx context.Context, c *Claimed) error {
	q.mu.Lock()
	q.processing = remove(q.processing, c.raw)
	q.pending = append(q.pending, c.raw)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Stats(ctx context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:    int64(len(q.pending)),
		Processing: int64(len(q.processing)),
		Failed:     int64(len(q.failed)),
	}, nil
}

func remove(list []string, raw string) []string {
	for i, v := range list {
		if v == raw {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
