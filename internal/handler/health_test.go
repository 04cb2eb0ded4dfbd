package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestHealthLiveness(t *testing.T) {
	f := newServer(t, 5)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "healthy" {
		t.Errorf("status = %q", body["status"])
	}
}

func TestHealthWebWithoutDatabase(t *testing.T) {
	f := newServer(t, 5)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health/web", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["database"] != "skipped" {
		t.Errorf("database = %q, want skipped with no pool", body["database"])
	}
}

func TestHealthWorkerReportsQueueDepths(t *testing.T) {
	f := newServer(t, 5)
	submitJob(t, f, uuid.NewString(), "doc.md", []byte("# Doc\n"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health/worker", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Status string `json:"status"`
		Queue  struct {
			Pending    int64 `json:"pending"`
			Processing int64 `json:"processing"`
		} `json:"queue"`
	}
	decodeBody(t, rec, &body)

	if body.Status != "healthy" {
		t.Errorf("status = %q", body.Status)
	}
	if body.Queue.Pending != 1 || body.Queue.Processing != 0 {
		t.Errorf("queue = %+v, want 1 pending", body.Queue)
	}
}
