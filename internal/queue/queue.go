package queue

import (
	"context"
	"time"

	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
)

// Task is the message the dispatcher hands to the worker. It references
// the stored upload; the bytes themselves never travel through the queue.
type Task struct {
	JobID      string      `json:"job_id"`
	ObjectKey  string      `json:"object_key"`
	Filename   string      `json:"filename"`
	Tier       models.Tier `json:"tier"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// Claimed is a task a worker has taken off the pending queue. The raw
// payload is kept so the processing entry can be removed verbatim when
// the task resolves.
type Claimed struct {
	Task
	raw string
}

// Stats reports queue depths for health endpoints.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Failed     int64 `json:"failed"`
}

// Queue is the task transport between the API and the worker pool.
// Claim moves a task from pending to processing atomically so a crashed
// worker leaves a visible processing entry for the recovery loop.
type Queue interface {
	// Enqueue appends a task to the pending queue.
	Enqueue(ctx context.Context, task *Task) error

	// Claim blocks up to timeout for the next task and moves it to the
	// processing queue. Returns (nil, nil) when the timeout elapses.
	Claim(ctx context.Context, timeout time.Duration) (*Claimed, error)

	// Complete removes a resolved task from the processing queue. Called
	// for both completed and failed jobs; job outcome lives in the
	// database, not the queue.
	Complete(ctx context.Context, c *Claimed) error

	// Abandon moves a task to the failed queue for operator inspection
	// and removes it from processing.
	Abandon(ctx context.Context, c *Claimed) error

	// Processing lists current processing entries, oldest first.
	Processing(ctx context.Context) ([]*Claimed, error)

	// Requeue puts a stale processing entry back on the pending queue.
	Requeue(ctx context.Context, c *Claimed) error

	// Stats reports current queue depths.
	Stats(ctx context.Context) (Stats, error)
}
