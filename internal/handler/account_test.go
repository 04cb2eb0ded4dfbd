package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/jmobrien1/document-markdown-converter/internal/domain/repositories"
)

func authedRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer token-u1")
	return req
}

func TestUserStatusAnonymous(t *testing.T) {
	f := newServer(t, 5)
	sessionID := uuid.NewString()

	submitJob(t, f, sessionID, "a.md", []byte("# a\n"))
	submitJob(t, f, sessionID, "b.md", []byte("# b\n"))

	rec := f.do(withSession(httptest.NewRequest(http.MethodGet, "/user-status", nil), sessionID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var st struct {
		Authenticated    bool   `json:"authenticated"`
		Tier             string `json:"tier"`
		DailyLimit       int    `json:"daily_limit"`
		ConversionsToday int    `json:"conversions_today"`
		RemainingToday   int    `json:"remaining_today"`
	}
	decodeBody(t, rec, &st)

	if st.Authenticated {
		t.Error("anonymous session reported as authenticated")
	}
	if st.Tier != "anonymous" {
		t.Errorf("tier = %q", st.Tier)
	}
	if st.DailyLimit != 5 || st.ConversionsToday != 2 || st.RemainingToday != 3 {
		t.Errorf("quota = %d/%d remaining %d, want 2/5 remaining 3",
			st.ConversionsToday, st.DailyLimit, st.RemainingToday)
	}
}

func TestStatsAnonymous(t *testing.T) {
	f := newServer(t, 2)
	sessionID := uuid.NewString()
	submitJob(t, f, sessionID, "a.md", []byte("# a\n"))

	rec := f.do(withSession(httptest.NewRequest(http.MethodGet, "/stats", nil), sessionID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var stats struct {
		Authenticated    bool `json:"authenticated"`
		DailyLimit       int  `json:"daily_limit"`
		ConversionsToday int  `json:"conversions_today"`
		RemainingToday   int  `json:"remaining_today"`
		CanConvert       bool `json:"can_convert"`
	}
	decodeBody(t, rec, &stats)

	if stats.Authenticated {
		t.Error("authenticated = true for anonymous caller")
	}
	if stats.ConversionsToday != 1 || stats.RemainingToday != 1 {
		t.Errorf("counters = %d used / %d left, want 1/1", stats.ConversionsToday, stats.RemainingToday)
	}
	if !stats.CanConvert {
		t.Error("can_convert = false with quota left")
	}
}

func TestStatsAuthenticated(t *testing.T) {
	f := newServer(t, 5)
	ctx := context.Background()

	var jobIDs []string
	for _, name := range []string{"a.md", "b.md"} {
		req := uploadRequest(t, "/convert", name, []byte("# doc\n"), false)
		req.Header.Set("Authorization", "Bearer token-u1")
		rec := f.do(req)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("upload %s: status = %d", name, rec.Code)
		}
		var resp struct {
			JobID string `json:"job_id"`
		}
		decodeBody(t, rec, &resp)
		jobIDs = append(jobIDs, resp.JobID)
	}

	if err := f.jobs.MarkCompleted(ctx, jobIDs[0], repositories.JobResult{Markdown: "# doc\n"}); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if err := f.jobs.MarkFailed(ctx, jobIDs[1], repositories.JobResult{ErrorMessage: "boom"}); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	rec := f.do(authedRequest(http.MethodGet, "/stats"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var stats struct {
		Authenticated bool    `json:"authenticated"`
		Total         int     `json:"total_conversions"`
		Daily         int     `json:"daily_conversions"`
		Successful    int     `json:"successful_conversions"`
		SuccessRate   float64 `json:"success_rate"`
		CanConvert    bool    `json:"can_convert"`
	}
	decodeBody(t, rec, &stats)

	if !stats.Authenticated {
		t.Error("authenticated = false")
	}
	if stats.Total != 2 || stats.Successful != 1 || stats.Daily != 2 {
		t.Errorf("counters = total %d, successful %d, daily %d", stats.Total, stats.Successful, stats.Daily)
	}
	if stats.SuccessRate != 50 {
		t.Errorf("success_rate = %v, want 50", stats.SuccessRate)
	}
	if !stats.CanConvert {
		t.Error("can_convert = false for account")
	}
}

func TestHistoryRequiresAuth(t *testing.T) {
	f := newServer(t, 5)

	rec := f.do(withSession(httptest.NewRequest(http.MethodGet, "/history", nil), uuid.NewString()))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	f := newServer(t, 5)

	for _, name := range []string{"first.md", "second.md", "third.md"} {
		req := uploadRequest(t, "/convert", name, []byte("# doc\n"), false)
		req.Header.Set("Authorization", "Bearer token-u1")
		if rec := f.do(req); rec.Code != http.StatusAccepted {
			t.Fatalf("upload %s: status = %d", name, rec.Code)
		}
	}

	rec := f.do(authedRequest(http.MethodGet, "/history?limit=2"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Conversions []struct {
			Filename string `json:"original_filename"`
		} `json:"conversions"`
		Count int `json:"count"`
	}
	decodeBody(t, rec, &resp)

	if resp.Count != 2 || len(resp.Conversions) != 2 {
		t.Fatalf("count = %d, len = %d, want 2", resp.Count, len(resp.Conversions))
	}
	if resp.Conversions[0].Filename != "third.md" {
		t.Errorf("first entry = %q, want third.md (newest first)", resp.Conversions[0].Filename)
	}
}
