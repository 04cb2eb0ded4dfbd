package worker

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jmobrien1/document-markdown-converter/internal/converter"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/repositories"
	"github.com/jmobrien1/document-markdown-converter/internal/queue"
	"github.com/jmobrien1/document-markdown-converter/internal/repository/memory"
	"github.com/jmobrien1/document-markdown-converter/internal/scanner"
	"github.com/jmobrien1/document-markdown-converter/internal/storage"
)

type poolFixture struct {
	pool  *Pool
	queue *queue.MemoryQueue
	store *storage.MemoryStore
	jobs  *memory.JobRepository
	users *memory.UserRepository
}

// proStub is a deterministic pro engine for tests.
type proStub struct {
	markdown string
	pages    int
	err      error
}

func (p *proStub) Name() string                  { return "pro-stub" }
func (p *proStub) SupportedExtensions() []string { return []string{".pdf", ".png"} }
func (p *proStub) Convert(ctx context.Context, filename string, content []byte) (*converter.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &converter.Result{Markdown: p.markdown, Pages: p.pages}, nil
}

func newPoolFixture(t *testing.T, pro converter.Engine) *poolFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := queue.NewMemoryQueue()
	store := storage.NewMemoryStore()
	jobs := memory.NewJobRepository()
	users := memory.NewUserRepository()
	sc := scanner.New(logger, scanner.WithBinary("clamscan-not-installed"))

	pool := NewPool(q, store, jobs, users, memory.NewTxManager(), converter.NewStandardRegistry(), pro, sc, logger, Options{
		Concurrency:  1,
		ClaimTimeout: 20 * time.Millisecond,
	})

	return &poolFixture{pool: pool, queue: q, store: store, jobs: jobs, users: users}
}

// seedJob creates a pending job, stores its upload and enqueues a task.
func (f *poolFixture) seedJob(t *testing.T, id, filename string, content []byte, tier models.Tier) *models.ConversionJob {
	t.Helper()
	ctx := context.Background()

	session := "sess-1"
	job := &models.ConversionJob{
		ID:               id,
		SessionID:        &session,
		OriginalFilename: filename,
		FileSize:         int64(len(content)),
		ObjectKey:        "uploads/" + id + "_" + filename,
		Tier:             tier,
		Status:           models.StatusPending,
		CreatedAt:        time.Now().UTC(),
	}
	if tier == models.TierPro {
		uid := "u1"
		job.SessionID = nil
		job.UserID = &uid
	}
	if err := f.jobs.Create(ctx, job); err != nil {
		t.Fatalf("Create job: %v", err)
	}
	if err := f.store.Put(ctx, job.ObjectKey, strings.NewReader(string(content)), "application/octet-stream"); err != nil {
		t.Fatalf("Put upload: %v", err)
	}
	err := f.queue.Enqueue(ctx, &queue.Task{
		JobID:      id,
		ObjectKey:  job.ObjectKey,
		Filename:   filename,
		Tier:       tier,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return job
}

// drainOne claims and processes a single task synchronously.
func (f *poolFixture) drainOne(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	claimed, err := f.queue.Claim(ctx, 200*time.Millisecond)
	if err != nil || claimed == nil {
		t.Fatalf("Claim = %v, %v", claimed, err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.pool.process(ctx, logger, claimed)
}

func TestProcessCompletesStandardJob(t *testing.T) {
	f := newPoolFixture(t, nil)
	f.seedJob(t, "job-1", "doc.md", []byte("# Hello\n"), models.TierStandard)

	f.drainOne(t)

	job, err := f.jobs.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != models.StatusCompleted {
		t.Fatalf("Status = %q, want completed (%s)", job.Status, job.ErrorMessage)
	}
	if job.Markdown != "# Hello\n" {
		t.Errorf("Markdown = %q", job.Markdown)
	}
	if job.ProcessingTime <= 0 {
		t.Errorf("ProcessingTime = %v, want > 0", job.ProcessingTime)
	}

	// Artifact removed, processing queue drained.
	if f.store.Len() != 0 {
		t.Error("artifact not deleted after completion")
	}
	stats, _ := f.queue.Stats(context.Background())
	if stats.Processing != 0 {
		t.Errorf("processing depth = %d, want 0", stats.Processing)
	}
}

func TestProcessFailsOnMissingArtifact(t *testing.T) {
	f := newPoolFixture(t, nil)
	job := f.seedJob(t, "job-1", "doc.md", []byte("# Hello\n"), models.TierStandard)

	if err := f.store.Delete(context.Background(), job.ObjectKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	f.drainOne(t)

	got, _ := f.jobs.GetByID(context.Background(), "job-1")
	if got.Status != models.StatusFailed {
		t.Fatalf("Status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "could not be retrieved") {
		t.Errorf("ErrorMessage = %q", got.ErrorMessage)
	}
}

func TestProcessFailsOnConversionError(t *testing.T) {
	f := newPoolFixture(t, nil)
	// .xyz has no engine registered, forcing a conversion failure.
	f.seedJob(t, "job-1", "doc.xyz", []byte("data"), models.TierStandard)

	f.drainOne(t)

	got, _ := f.jobs.GetByID(context.Background(), "job-1")
	if got.Status != models.StatusFailed {
		t.Fatalf("Status = %q, want failed", got.Status)
	}
	if f.store.Len() != 0 {
		t.Error("artifact not deleted after failure")
	}
}

func TestProcessProJobSettlesPages(t *testing.T) {
	f := newPoolFixture(t, &proStub{markdown: "# OCR output", pages: 5})
	f.users.Add(&models.User{ID: "u1", IsPro: true, ProPagesLimit: 100, ProPagesUsed: 1, UsageMonth: currentMonth()})
	f.seedJob(t, "job-1", "scan.pdf", []byte("%PDF-1.7"), models.TierPro)

	f.drainOne(t)

	job, _ := f.jobs.GetByID(context.Background(), "job-1")
	if job.Status != models.StatusCompleted {
		t.Fatalf("Status = %q, want completed (%s)", job.Status, job.ErrorMessage)
	}

	// One page was reserved at submit; the worker charges the other 4.
	user, err := f.users.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetByID user: %v", err)
	}
	if user.ProPagesUsed != 5 {
		t.Errorf("ProPagesUsed = %d, want 5", user.ProPagesUsed)
	}
}

// panicEngine blows up mid-conversion.
type panicEngine struct{}

func (panicEngine) Name() string                  { return "panic-engine" }
func (panicEngine) SupportedExtensions() []string { return []string{".pdf"} }
func (panicEngine) Convert(ctx context.Context, filename string, content []byte) (*converter.Result, error) {
	panic("engine crashed")
}

func TestProcessRecoversFromEnginePanic(t *testing.T) {
	f := newPoolFixture(t, panicEngine{})
	f.users.Add(&models.User{ID: "u1", IsPro: true, ProPagesLimit: 100})
	f.seedJob(t, "job-1", "scan.pdf", []byte("%PDF-1.7"), models.TierPro)

	f.drainOne(t)

	got, err := f.jobs.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != models.StatusFailed {
		t.Fatalf("Status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "internal error during conversion") {
		t.Errorf("ErrorMessage = %q", got.ErrorMessage)
	}

	// The panicking task must not stay stuck on the processing queue.
	stats, _ := f.queue.Stats(context.Background())
	if stats.Processing != 0 {
		t.Errorf("processing depth = %d, want 0", stats.Processing)
	}
}

func TestProcessProJobWithoutEngine(t *testing.T) {
	f := newPoolFixture(t, nil)
	f.users.Add(&models.User{ID: "u1", IsPro: true, ProPagesLimit: 100})
	f.seedJob(t, "job-1", "scan.pdf", []byte("%PDF-1.7"), models.TierPro)

	f.drainOne(t)

	got, _ := f.jobs.GetByID(context.Background(), "job-1")
	if got.Status != models.StatusFailed {
		t.Fatalf("Status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "not configured") {
		t.Errorf("ErrorMessage = %q", got.ErrorMessage)
	}
}

func TestProcessDropsTaskForTerminalJob(t *testing.T) {
	f := newPoolFixture(t, nil)
	job := f.seedJob(t, "job-1", "doc.md", []byte("# Hello\n"), models.TierStandard)

	// Another worker already resolved the job.
	if err := f.jobs.MarkProcessing(context.Background(), job.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	err := f.jobs.MarkCompleted(context.Background(), job.ID, jobResult("done"))
	if err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	f.drainOne(t)

	got, _ := f.jobs.GetByID(context.Background(), "job-1")
	if got.Markdown != "done" {
		t.Errorf("terminal job was overwritten: %q", got.Markdown)
	}
	stats, _ := f.queue.Stats(context.Background())
	if stats.Processing != 0 {
		t.Errorf("processing depth = %d, want 0", stats.Processing)
	}
}

func TestRecoverStaleRequeues(t *testing.T) {
	f := newPoolFixture(t, nil)
	f.pool.opts.StaleAfter = 10 * time.Millisecond
	ctx := context.Background()

	job := f.seedJob(t, "job-1", "doc.md", []byte("# Hello\n"), models.TierStandard)

	// Simulate a crash: task claimed, job marked processing, worker gone.
	claimed, err := f.queue.Claim(ctx, 100*time.Millisecond)
	if err != nil || claimed == nil {
		t.Fatalf("Claim = %v, %v", claimed, err)
	}
	if err := f.jobs.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	f.pool.recoverStale(ctx)

	stats, _ := f.queue.Stats(ctx)
	if stats.Pending != 1 || stats.Processing != 0 {
		t.Fatalf("stats = %+v, want task back on pending", stats)
	}

	// The requeued task converts even though the job is already in
	// processing state.
	f.drainOne(t)
	got, _ := f.jobs.GetByID(ctx, "job-1")
	if got.Status != models.StatusCompleted {
		t.Errorf("Status = %q, want completed (%s)", got.Status, got.ErrorMessage)
	}
}

func TestRecoverClearsResolvedEntries(t *testing.T) {
	f := newPoolFixture(t, nil)
	f.pool.opts.StaleAfter = time.Nanosecond
	ctx := context.Background()

	job := f.seedJob(t, "job-1", "doc.md", []byte("# Hello\n"), models.TierStandard)

	if _, err := f.queue.Claim(ctx, 100*time.Millisecond); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := f.jobs.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := f.jobs.MarkFailed(ctx, job.ID, jobResultErr("cancelled")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	f.pool.recoverStale(ctx)

	stats, _ := f.queue.Stats(ctx)
	if stats.Pending != 0 || stats.Processing != 0 {
		t.Errorf("stats = %+v, want empty queues", stats)
	}
}

func TestRunDrainsOnShutdown(t *testing.T) {
	f := newPoolFixture(t, nil)
	f.seedJob(t, "job-1", "doc.md", []byte("# Hello\n"), models.TierStandard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.pool.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		job, err := f.jobs.GetByID(context.Background(), "job-1")
		if err == nil && job.Status.Terminal() {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job never resolved")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}
}

func currentMonth() time.Time {
	y, m, _ := time.Now().UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func jobResult(markdown string) repositories.JobResult {
	return repositories.JobResult{Markdown: markdown}
}

func jobResultErr(msg string) repositories.JobResult {
	return repositories.JobResult{ErrorMessage: msg}
}
