// Package memory provides in-process repository implementations used in
// tests and local development without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmobrien1/document-markdown-converter/internal/domain"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/repositories"
)

// JobRepository is an in-memory repositories.JobRepository.
type JobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*models.ConversionJob

	// FailCreate makes Create return an error, for exercising the
	// persistence-failure path.
	FailCreate bool
}

// NewJobRepository creates an empty in-memory job store.
func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[string]*models.ConversionJob)}
}

func (r *JobRepository) Create(ctx context.Context, job *models.ConversionJob) error {
	if r.FailCreate {
		return &domain.StorageError{Message: "job store unavailable"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *job
	r.jobs[job.ID] = &clone
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.ConversionJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "job not found"}
	}
	clone := *job
	return &clone, nil
}

func (r *JobRepository) MarkProcessing(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status != models.StatusPending {
		return &domain.NotFoundError{Message: "job not pending"}
	}
	now := time.Now().UTC()
	job.Status = models.StatusProcessing
	job.StartedAt = &now
	return nil
}

func (r *JobRepository) MarkCompleted(ctx context.Context, id string, result repositories.JobResult) error {
	return r.finish(id, models.StatusCompleted, result)
}

func (r *JobRepository) MarkFailed(ctx context.Context, id string, result repositories.JobResult) error {
	return r.finish(id, models.StatusFailed, result)
}

func (r *JobRepository) finish(id string, status models.JobStatus, result repositories.JobResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status.Terminal() {
		return &domain.NotFoundError{Message: "job not found or already terminal"}
	}
	now := time.Now().UTC()
	job.Status = status
	job.CompletedAt = &now
	job.ProcessingTime = result.ProcessingTime
	if status == models.StatusCompleted {
		job.Markdown = result.Markdown
		job.MarkdownLength = len(result.Markdown)
	} else {
		job.ErrorMessage = result.ErrorMessage
	}
	return nil
}

func (r *JobRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.ConversionJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.ConversionJob
	for _, job := range r.jobs {
		if job.UserID != nil && *job.UserID == userID {
			clone := *job
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *JobRepository) CountByUser(ctx context.Context, userID string) (total, completed, today int, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	y, m, d := time.Now().UTC().Date()
	for _, job := range r.jobs {
		if job.UserID == nil || *job.UserID != userID {
			continue
		}
		total++
		if job.Status == models.StatusCompleted {
			completed++
		}
		jy, jm, jd := job.CreatedAt.UTC().Date()
		if jy == y && jm == m && jd == d {
			today++
		}
	}
	return total, completed, today, nil
}
