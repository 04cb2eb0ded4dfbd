// Package conversion orchestrates the submission pipeline (validate,
// reserve quota, store, persist, enqueue) and answers status polls.
package conversion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jmobrien1/document-markdown-converter/internal/domain"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/repositories"
	"github.com/jmobrien1/document-markdown-converter/internal/queue"
	"github.com/jmobrien1/document-markdown-converter/internal/service/upload"
	"github.com/jmobrien1/document-markdown-converter/internal/service/usage"
	"github.com/jmobrien1/document-markdown-converter/internal/storage"
)

// DefaultMaxUploadBytes caps a single upload unless overridden by
// configuration. Enforced again at the HTTP layer via MaxBytesReader;
// the dispatcher's limit is the authoritative one.
const DefaultMaxUploadBytes = 16 << 20 // 16 MiB

// Submission is a validated-enough upload ready for the pipeline.
type Submission struct {
	Filename string
	Size     int64
	Content  io.ReadSeeker
	Tier     models.Tier
	Identity models.Identity
}

// Dispatcher admits uploads into the conversion pipeline.
type Dispatcher struct {
	validator *upload.Validator
	limiter   *usage.Limiter
	jobs      repositories.JobRepository
	store     storage.ObjectStore
	queue     queue.Queue
	maxUpload int64
	logger    *slog.Logger
}

// Option tunes a Dispatcher.
type Option func(*Dispatcher)

// WithMaxUploadBytes overrides the upload size cap. Non-positive values
// keep the default.
func WithMaxUploadBytes(n int64) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxUpload = n
		}
	}
}

// NewDispatcher wires the submission pipeline.
func NewDispatcher(
	validator *upload.Validator,
	limiter *usage.Limiter,
	jobs repositories.JobRepository,
	store storage.ObjectStore,
	q queue.Queue,
	logger *slog.Logger,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		validator: validator,
		limiter:   limiter,
		jobs:      jobs,
		store:     store,
		queue:     q,
		maxUpload: DefaultMaxUploadBytes,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxUploadBytes reports the effective upload size cap, for the HTTP
// layer's body limit and error messages.
func (d *Dispatcher) MaxUploadBytes() int64 { return d.maxUpload }

// Submit runs the full admission pipeline and returns the created job.
//
// Ordering matters: quota is reserved before the storage write so an
// over-limit client costs nothing, and the job row is created before the
// enqueue so a queue outage leaves a failed row rather than a stored
// object nobody will ever look at.
func (d *Dispatcher) Submit(ctx context.Context, sub Submission) (*models.ConversionJob, error) {
	if sub.Filename == "" {
		return nil, &domain.ValidationError{Message: "no file provided"}
	}
	if sub.Size > d.maxUpload {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("file exceeds the %d MB size limit", d.maxUpload>>20),
		}
	}
	if sub.Tier == "" {
		sub.Tier = models.TierStandard
	}

	res, err := d.validator.Validate(sub.Content, sub.Filename)
	if err != nil {
		return nil, err
	}
	if !upload.AllowedForTier(res.Extension, sub.Tier) {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("file type %s is not supported for %s conversion", res.Extension, sub.Tier),
		}
	}

	if err := d.limiter.Reserve(ctx, sub.Identity, sub.Tier); err != nil {
		return nil, err
	}

	job := &models.ConversionJob{
		ID:               uuid.NewString(),
		OriginalFilename: sub.Filename,
		FileSize:         sub.Size,
		FileType:         res.Extension,
		Tier:             sub.Tier,
		Status:           models.StatusPending,
		CreatedAt:        time.Now().UTC(),
	}
	if sub.Identity.Authenticated() {
		uid := sub.Identity.UserID
		job.UserID = &uid
	} else {
		sid := sub.Identity.SessionID
		job.SessionID = &sid
	}
	job.ObjectKey = objectKey(job.ID, sub.Filename)

	contentType := mime.TypeByExtension(res.Extension)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := d.store.Put(ctx, job.ObjectKey, sub.Content, contentType); err != nil {
		// The reservation was spent on a submission that never became a
		// job; give it back.
		d.limiter.Release(ctx, sub.Identity)
		d.logger.Error("store upload",
			"object_key", job.ObjectKey,
			"error", err)
		return nil, &domain.StorageError{Message: "could not store upload, please retry"}
	}

	if err := d.jobs.Create(ctx, job); err != nil {
		d.limiter.Release(ctx, sub.Identity)
		if derr := d.store.Delete(ctx, job.ObjectKey); derr != nil {
			d.logger.Error("delete orphaned upload", "object_key", job.ObjectKey, "error", derr)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	task := &queue.Task{
		JobID:      job.ID,
		ObjectKey:  job.ObjectKey,
		Filename:   sub.Filename,
		Tier:       sub.Tier,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := d.queue.Enqueue(ctx, task); err != nil {
		// The row exists and quota is spent; record the failure so the
		// client's poll sees a terminal state instead of pending forever.
		d.logger.Error("enqueue task", "job_id", job.ID, "error", err)
		result := repositories.JobResult{ErrorMessage: "conversion queue unavailable"}
		if merr := d.jobs.MarkFailed(ctx, job.ID, result); merr != nil {
			d.logger.Error("mark job failed after enqueue error", "job_id", job.ID, "error", merr)
		}
		job.Status = models.StatusFailed
		job.ErrorMessage = result.ErrorMessage
		return job, nil
	}

	d.logger.Info("job submitted",
		"job_id", job.ID,
		"filename", sub.Filename,
		"tier", sub.Tier,
		"size", sub.Size,
		"owner", job.Owner())
	return job, nil
}

// objectKey namespaces uploads and keeps the original name readable in
// the bucket console while the uuid guarantees uniqueness.
func objectKey(jobID, filename string) string {
	return "uploads/" + jobID + "_" + filepath.Base(filename)
}
