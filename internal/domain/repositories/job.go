package repositories

import (
	"context"

	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
)

// JobResult is what the worker records when a job reaches a terminal
// state.
type JobResult struct {
	Markdown       string
	ErrorMessage   string
	ProcessingTime float64 // seconds
}

// JobRepository persists conversion jobs. Status transitions are
// monotonic: updates carry a status guard so a terminal row is never
// moved back to a non-terminal state.
type JobRepository interface {
	// Create inserts a new job with status pending.
	Create(ctx context.Context, job *models.ConversionJob) error

	// GetByID returns the job or domain.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.ConversionJob, error)

	// MarkProcessing transitions pending -> processing. Returns
	// domain.ErrNotFound if the job does not exist or is not pending.
	MarkProcessing(ctx context.Context, id string) error

	// MarkCompleted transitions a non-terminal job to completed with the
	// stored markdown.
	MarkCompleted(ctx context.Context, id string, result JobResult) error

	// MarkFailed transitions a non-terminal job to failed with the
	// recorded error message.
	MarkFailed(ctx context.Context, id string, result JobResult) error

	// ListByUser returns the user's most recent jobs, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.ConversionJob, error)

	// CountByUser returns (total, completed, today) conversion counts.
	CountByUser(ctx context.Context, userID string) (total, completed, today int, err error)
}
