// Package worker runs the conversion pool: claim a task, fetch the
// stored upload, scan it, convert it, record the outcome. Workers are
// stateless; all coordination happens through the queue and the job
// store.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmobrien1/document-markdown-converter/internal/converter"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/repositories"
	"github.com/jmobrien1/document-markdown-converter/internal/queue"
	"github.com/jmobrien1/document-markdown-converter/internal/scanner"
	"github.com/jmobrien1/document-markdown-converter/internal/storage"
)

// Options tune the pool. Zero values fall back to the defaults.
type Options struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int
	// ClaimTimeout is how long a worker blocks on an empty queue before
	// re-checking for shutdown.
	ClaimTimeout time.Duration
	// ConvertTimeout bounds one conversion end to end (download, scan,
	// convert).
	ConvertTimeout time.Duration
	// StaleAfter is how long a processing entry may sit before the
	// recovery loop requeues it.
	StaleAfter time.Duration
	// RecoveryInterval is how often the recovery loop runs.
	RecoveryInterval time.Duration
}

func (o *Options) withDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.ClaimTimeout <= 0 {
		o.ClaimTimeout = 5 * time.Second
	}
	if o.ConvertTimeout <= 0 {
		o.ConvertTimeout = 5 * time.Minute
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 10 * time.Minute
	}
	if o.RecoveryInterval <= 0 {
		o.RecoveryInterval = time.Minute
	}
}

// Pool consumes conversion tasks.
type Pool struct {
	queue    queue.Queue
	store    storage.ObjectStore
	jobs     repositories.JobRepository
	users    repositories.UserRepository
	tx       repositories.TransactionManager
	standard *converter.Registry
	pro      converter.Engine
	scanner  *scanner.Scanner
	logger   *slog.Logger
	opts     Options
}

// NewPool wires a conversion pool. The pro engine may be nil when the
// document-AI service is not configured; pro tasks then fail with a
// clear message instead of hanging.
func NewPool(
	q queue.Queue,
	store storage.ObjectStore,
	jobs repositories.JobRepository,
	users repositories.UserRepository,
	tx repositories.TransactionManager,
	standard *converter.Registry,
	pro converter.Engine,
	sc *scanner.Scanner,
	logger *slog.Logger,
	opts Options,
) *Pool {
	opts.withDefaults()
	return &Pool{
		queue:    q,
		store:    store,
		jobs:     jobs,
		users:    users,
		tx:       tx,
		standard: standard,
		pro:      pro,
		scanner:  sc,
		logger:   logger,
		opts:     opts,
	}
}

// Run starts the workers and the recovery loop and blocks until ctx is
// cancelled and all workers have drained.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for i := 0; i < p.opts.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.workerLoop(ctx, id)
		}(i + 1)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.recoveryLoop(ctx)
	}()

	p.logger.Info("worker pool started", "concurrency", p.opts.Concurrency)
	wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) workerLoop(ctx context.Context, id int) {
	logger := p.logger.With("worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := p.queue.Claim(ctx, p.opts.ClaimTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim task", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		if claimed == nil {
			continue
		}

		p.process(ctx, logger, claimed)
	}
}

// process resolves one claimed task. The task always leaves the
// processing queue: Complete for resolved jobs, Abandon for tasks the
// worker could not resolve either way.
func (p *Pool) process(ctx context.Context, logger *slog.Logger, claimed *queue.Claimed) {
	logger = logger.With("job_id", claimed.JobID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing", "panic", r)
			p.fail(ctx, logger, claimed, "internal error during conversion")
		}
	}()

	job, err := p.jobs.GetByID(ctx, claimed.JobID)
	if err != nil {
		// A task without a row is unresolvable; park it for inspection.
		logger.Error("load job for task", "error", err)
		if aerr := p.queue.Abandon(ctx, claimed); aerr != nil {
			logger.Error("abandon task", "error", aerr)
		}
		return
	}
	if job.Status.Terminal() {
		logger.Info("task for terminal job dropped", "status", job.Status)
		p.complete(ctx, logger, claimed)
		return
	}

	if err := p.jobs.MarkProcessing(ctx, claimed.JobID); err != nil {
		// Requeued tasks arrive with the job already in processing;
		// anything else non-pending was handled above.
		if job.Status != models.StatusProcessing {
			logger.Error("mark processing", "error", err)
			p.complete(ctx, logger, claimed)
			return
		}
	}

	start := time.Now()
	ctx2, cancel := context.WithTimeout(ctx, p.opts.ConvertTimeout)
	defer cancel()

	content, err := p.store.Get(ctx2, claimed.ObjectKey)
	if err != nil {
		logger.Error("fetch upload", "object_key", claimed.ObjectKey, "error", err)
		p.fail(ctx, logger, claimed, "uploaded file could not be retrieved")
		return
	}

	scan := p.scanner.ScanBytes(ctx2, content, claimed.Filename)
	switch scan.Verdict {
	case scanner.VerdictInfected:
		p.deleteArtifact(ctx, logger, claimed.ObjectKey)
		p.fail(ctx, logger, claimed, fmt.Sprintf("infected file detected: %s", scan.Signature))
		return
	case scanner.VerdictError:
		p.fail(ctx, logger, claimed, scan.Detail)
		return
	}

	result, err := p.convert(ctx2, claimed, content)
	if err != nil {
		logger.Warn("conversion failed",
			"filename", claimed.Filename,
			"tier", claimed.Tier,
			"error", err)
		p.deleteArtifact(ctx, logger, claimed.ObjectKey)
		p.fail(ctx, logger, claimed, err.Error())
		return
	}

	elapsed := time.Since(start)
	jobResult := repositories.JobResult{
		Markdown:       result.Markdown,
		ProcessingTime: elapsed.Seconds(),
	}
	if err := p.finalize(ctx, logger, job, claimed.JobID, jobResult, result.Pages); err != nil {
		logger.Error("mark completed", "error", err)
		if aerr := p.queue.Abandon(ctx, claimed); aerr != nil {
			logger.Error("abandon task", "error", aerr)
		}
		return
	}

	p.deleteArtifact(ctx, logger, claimed.ObjectKey)
	p.complete(ctx, logger, claimed)

	logger.Info("conversion completed",
		"filename", claimed.Filename,
		"tier", claimed.Tier,
		"markdown_length", len(result.Markdown),
		"duration", elapsed.Round(time.Millisecond))
}

func (p *Pool) convert(ctx context.Context, claimed *queue.Claimed, content []byte) (*converter.Result, error) {
	if claimed.Tier == models.TierPro {
		if p.pro == nil {
			return nil, fmt.Errorf("pro conversion is not configured")
		}
		return p.pro.Convert(ctx, claimed.Filename, content)
	}
	return p.standard.Convert(ctx, claimed.Filename, content)
}

// finalize records the success and settles the pro page charge in one
// transaction, so a crash between the two leaves neither half applied.
func (p *Pool) finalize(ctx context.Context, logger *slog.Logger, job *models.ConversionJob, jobID string, result repositories.JobResult, pages int) error {
	commit := func(txCtx context.Context) error {
		if err := p.jobs.MarkCompleted(txCtx, jobID, result); err != nil {
			return err
		}
		p.settleProPages(txCtx, logger, job, pages)
		return nil
	}
	if p.tx != nil {
		return p.tx.ExecTx(ctx, commit)
	}
	return commit(ctx)
}

// settleProPages charges the pages beyond the one reserved at submit
// time. Best effort: a settle failure is logged, never blocks the job.
func (p *Pool) settleProPages(ctx context.Context, logger *slog.Logger, job *models.ConversionJob, pages int) {
	if job.Tier != models.TierPro || job.UserID == nil || pages <= 1 {
		return
	}
	if _, err := p.users.ReserveProPages(ctx, *job.UserID, pages-1); err != nil {
		logger.Error("settle pro pages", "pages", pages, "error", err)
	}
}

func (p *Pool) fail(ctx context.Context, logger *slog.Logger, claimed *queue.Claimed, msg string) {
	result := repositories.JobResult{ErrorMessage: msg}
	if err := p.jobs.MarkFailed(ctx, claimed.JobID, result); err != nil {
		logger.Error("mark failed", "error", err)
	}
	p.complete(ctx, logger, claimed)
}

func (p *Pool) complete(ctx context.Context, logger *slog.Logger, claimed *queue.Claimed) {
	if err := p.queue.Complete(ctx, claimed); err != nil {
		logger.Error("complete task", "error", err)
	}
}

func (p *Pool) deleteArtifact(ctx context.Context, logger *slog.Logger, key string) {
	if err := p.store.Delete(ctx, key); err != nil {
		logger.Error("delete artifact", "object_key", key, "error", err)
	}
}

// recoveryLoop requeues processing entries left behind by crashed
// workers and clears entries whose jobs already resolved.
func (p *Pool) recoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(p.opts.RecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.recoverStale(ctx)
		}
	}
}

func (p *Pool) recoverStale(ctx context.Context) {
	entries, err := p.queue.Processing(ctx)
	if err != nil {
		p.logger.Error("list processing entries", "error", err)
		return
	}

	cutoff := time.Now().Add(-p.opts.StaleAfter)
	for _, entry := range entries {
		job, err := p.jobs.GetByID(ctx, entry.JobID)
		if err != nil || job.Status.Terminal() {
			// Resolved or vanished; the entry is garbage.
			if cerr := p.queue.Complete(ctx, entry); cerr != nil {
				p.logger.Error("clear resolved entry", "job_id", entry.JobID, "error", cerr)
			}
			continue
		}
		if entry.EnqueuedAt.After(cutoff) {
			continue
		}

		p.logger.Warn("requeueing stale task",
			"job_id", entry.JobID,
			"enqueued_at", entry.EnqueuedAt)
		if err := p.queue.Requeue(ctx, entry); err != nil {
			p.logger.Error("requeue stale task", "job_id", entry.JobID, "error", err)
		}
	}
}
