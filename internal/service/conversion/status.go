package conversion

import (
	"context"
	"fmt"

	"github.com/jmobrien1/document-markdown-converter/internal/domain"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/repositories"
)

// Wire states reported to polling clients. These are the public contract
// and are deliberately decoupled from the storage states so the schema
// can evolve without breaking pollers.
const (
	WirePending    = "PENDING"
	WireProcessing = "PROCESSING"
	WireSuccess    = "SUCCESS"
	WireFailure    = "FAILURE"
)

// WireState maps a storage status to the public polling vocabulary.
func WireState(s models.JobStatus) string {
	switch s {
	case models.StatusProcessing:
		return WireProcessing
	case models.StatusCompleted:
		return WireSuccess
	case models.StatusFailed:
		return WireFailure
	default:
		return WirePending
	}
}

// JobView is the status-poll response body.
type JobView struct {
	JobID          string  `json:"job_id"`
	Status         string  `json:"status"`
	Filename       string  `json:"filename"`
	Tier           string  `json:"conversion_type"`
	CreatedAt      string  `json:"created_at"`
	Markdown       string  `json:"markdown,omitempty"`
	MarkdownLength int     `json:"markdown_length,omitempty"`
	Error          string  `json:"error,omitempty"`
	ProcessingTime float64 `json:"processing_time,omitempty"`
}

// Poller answers status polls.
type Poller struct {
	jobs repositories.JobRepository
}

// NewPoller creates a status poller over the job store.
func NewPoller(jobs repositories.JobRepository) *Poller {
	return &Poller{jobs: jobs}
}

// Poll returns the job's current state. Unknown ids return
// domain.ErrNotFound; the handler must not distinguish "never existed"
// from "not yours" to avoid leaking job ids as an oracle.
func (p *Poller) Poll(ctx context.Context, jobID string, id models.Identity) (*JobView, error) {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ownedBy(job, id) {
		return nil, &domain.NotFoundError{Message: "job not found"}
	}

	view := &JobView{
		JobID:     job.ID,
		Status:    WireState(job.Status),
		Filename:  job.OriginalFilename,
		Tier:      string(job.Tier),
		CreatedAt: job.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}

	switch job.Status {
	case models.StatusCompleted:
		view.Markdown = job.Markdown
		view.MarkdownLength = job.MarkdownLength
		view.ProcessingTime = job.ProcessingTime
	case models.StatusFailed:
		view.Error = job.ErrorMessage
	}
	return view, nil
}

// Result returns the completed job's markdown for download. Non-terminal
// jobs are a conflict, failed jobs propagate their recorded error.
func (p *Poller) Result(ctx context.Context, jobID string, id models.Identity) (*models.ConversionJob, error) {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ownedBy(job, id) {
		return nil, &domain.NotFoundError{Message: "job not found"}
	}
	if job.Status != models.StatusCompleted {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("job is %s, result is only available for completed jobs", WireState(job.Status)),
		}
	}
	return job, nil
}

// History returns the account's recent jobs, newest first.
func (p *Poller) History(ctx context.Context, id models.Identity, limit int) ([]*models.ConversionJob, error) {
	if !id.Authenticated() {
		return nil, &domain.UnauthorizedError{Message: "history requires an account"}
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return p.jobs.ListByUser(ctx, id.UserID, limit)
}

// AccountStats summarizes an account's conversion activity.
type AccountStats struct {
	Total     int `json:"total_conversions"`
	Completed int `json:"completed_conversions"`
	Today     int `json:"conversions_today"`
}

// Stats returns the account's conversion counters.
func (p *Poller) Stats(ctx context.Context, id models.Identity) (*AccountStats, error) {
	if !id.Authenticated() {
		return nil, &domain.UnauthorizedError{Message: "stats require an account"}
	}
	total, completed, today, err := p.jobs.CountByUser(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("count conversions: %w", err)
	}
	return &AccountStats{Total: total, Completed: completed, Today: today}, nil
}

func ownedBy(job *models.ConversionJob, id models.Identity) bool {
	if id.Authenticated() {
		return job.UserID != nil && *job.UserID == id.UserID
	}
	return job.SessionID != nil && id.SessionID != "" && *job.SessionID == id.SessionID
}
