package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/jmobrien1/document-markdown-converter/internal/domain/repositories"
	"github.com/jmobrien1/document-markdown-converter/internal/service/conversion"
)

// submitJob uploads a file under the given session and returns the job id.
func submitJob(t *testing.T, f *serverFixture, sessionID, filename string, content []byte) string {
	t.Helper()

	rec := f.do(withSession(uploadRequest(t, "/convert", filename, content, false), sessionID))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload %s: status = %d, body %s", filename, rec.Code, rec.Body.String())
	}
	var resp struct {
		JobID string `json:"job_id"`
	}
	decodeBody(t, rec, &resp)
	return resp.JobID
}

func pollView(t *testing.T, f *serverFixture, sessionID, jobID string) (int, map[string]interface{}) {
	t.Helper()

	rec := f.do(withSession(httptest.NewRequest(http.MethodGet, "/status/"+jobID, nil), sessionID))
	view := map[string]interface{}{}
	if rec.Code == http.StatusOK || strings.HasPrefix(rec.Header().Get("Content-Type"), "application/") {
		decodeBody(t, rec, &view)
	}
	return rec.Code, view
}

func TestStatusLifecycle(t *testing.T) {
	f := newServer(t, 5)
	ctx := context.Background()
	sessionID := uuid.NewString()
	jobID := submitJob(t, f, sessionID, "doc.md", []byte("# Doc\n"))

	code, view := pollView(t, f, sessionID, jobID)
	if code != http.StatusOK || view["status"] != conversion.WirePending {
		t.Fatalf("pending poll: code = %d, status = %v", code, view["status"])
	}

	if err := f.jobs.MarkProcessing(ctx, jobID); err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}
	if _, view = pollView(t, f, sessionID, jobID); view["status"] != conversion.WireProcessing {
		t.Fatalf("processing poll: status = %v", view["status"])
	}

	err := f.jobs.MarkCompleted(ctx, jobID, repositories.JobResult{
		Markdown:       "# Doc\n",
		ProcessingTime: 0.5,
	})
	if err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	_, view = pollView(t, f, sessionID, jobID)
	if view["status"] != conversion.WireSuccess {
		t.Fatalf("completed poll: status = %v", view["status"])
	}
	if view["markdown"] != "# Doc\n" {
		t.Errorf("markdown = %v", view["markdown"])
	}
	if view["markdown_length"] != float64(len("# Doc\n")) {
		t.Errorf("markdown_length = %v", view["markdown_length"])
	}
	if view["processing_time"] != 0.5 {
		t.Errorf("processing_time = %v", view["processing_time"])
	}
}

func TestStatusFailedJobCarriesError(t *testing.T) {
	f := newServer(t, 5)
	sessionID := uuid.NewString()
	jobID := submitJob(t, f, sessionID, "doc.md", []byte("# Doc\n"))

	err := f.jobs.MarkFailed(context.Background(), jobID, repositories.JobResult{
		ErrorMessage: "conversion backend crashed",
	})
	if err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	_, view := pollView(t, f, sessionID, jobID)
	if view["status"] != conversion.WireFailure {
		t.Fatalf("status = %v, want FAILURE", view["status"])
	}
	if view["error"] != "conversion backend crashed" {
		t.Errorf("error = %v", view["error"])
	}
}

func TestStatusHidesForeignJobs(t *testing.T) {
	f := newServer(t, 5)
	owner := uuid.NewString()
	jobID := submitJob(t, f, owner, "doc.md", []byte("# Doc\n"))

	// Unknown id and someone else's id must be indistinguishable.
	if code, _ := pollView(t, f, owner, "no-such-job"); code != http.StatusNotFound {
		t.Errorf("unknown job: code = %d, want 404", code)
	}
	if code, _ := pollView(t, f, uuid.NewString(), jobID); code != http.StatusNotFound {
		t.Errorf("foreign session: code = %d, want 404", code)
	}
}

func TestResultDownload(t *testing.T) {
	f := newServer(t, 5)
	sessionID := uuid.NewString()
	jobID := submitJob(t, f, sessionID, "report.docx", append([]byte("PK\x03\x04"), []byte("rest")...))

	// Not finished yet.
	rec := f.do(withSession(httptest.NewRequest(http.MethodGet, "/result/"+jobID, nil), sessionID))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("pending result: status = %d, want 400", rec.Code)
	}

	err := f.jobs.MarkCompleted(context.Background(), jobID, repositories.JobResult{Markdown: "# Report\n\nbody\n"})
	if err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	rec = f.do(withSession(httptest.NewRequest(http.MethodGet, "/result/"+jobID, nil), sessionID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `report.docx.md`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Body.String() != "# Report\n\nbody\n" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestPreviewSanitizesHTML(t *testing.T) {
	f := newServer(t, 5)
	sessionID := uuid.NewString()
	jobID := submitJob(t, f, sessionID, "doc.md", []byte("# Doc\n"))

	markdown := "# Title\n\n<script>alert(1)</script>\n\n| a | b |\n| --- | --- |\n| 1 | 2 |\n"
	if err := f.jobs.MarkCompleted(context.Background(), jobID, repositories.JobResult{Markdown: markdown}); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	rec := f.do(withSession(httptest.NewRequest(http.MethodGet, "/result/"+jobID+"/preview", nil), sessionID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}

	html := rec.Body.String()
	if !strings.Contains(html, "<h1") {
		t.Errorf("no heading in preview: %q", html)
	}
	if !strings.Contains(html, "<table") {
		t.Errorf("GFM table not rendered: %q", html)
	}
	if strings.Contains(html, "<script") || strings.Contains(html, "alert(1)") {
		t.Errorf("script survived sanitization: %q", html)
	}
}
