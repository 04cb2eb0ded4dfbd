package handler

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jmobrien1/document-markdown-converter/internal/httputil"
	"github.com/jmobrien1/document-markdown-converter/internal/service/conversion"
)

// StatusHandler serves job polling, result download and preview.
type StatusHandler struct {
	poller   *conversion.Poller
	renderer goldmark.Markdown
	policy   *bluemonday.Policy
	logger   *slog.Logger
}

// NewStatusHandler creates the polling handler. The preview renderer
// uses GitHub-flavored tables and strikethrough since converted
// documents lean heavily on tables.
func NewStatusHandler(poller *conversion.Poller, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		poller: poller,
		renderer: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
		policy: bluemonday.UGCPolicy(),
		logger: logger,
	}
}

// Status handles GET /status/{id}. The body always carries the wire
// state; completed jobs include the markdown, failed jobs the error.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	view, err := h.poller.Poll(r.Context(), r.PathValue("id"), httputil.GetIdentity(r))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, view)
}

// Result handles GET /result/{id}: the converted markdown as a file
// download.
func (h *StatusHandler) Result(w http.ResponseWriter, r *http.Request) {
	job, err := h.poller.Result(r.Context(), r.PathValue("id"), httputil.GetIdentity(r))
	if err != nil {
		handleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+job.OriginalFilename+`.md"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(job.Markdown))
}

// Preview handles GET /result/{id}/preview: the markdown rendered to
// sanitized HTML for in-browser display.
func (h *StatusHandler) Preview(w http.ResponseWriter, r *http.Request) {
	job, err := h.poller.Result(r.Context(), r.PathValue("id"), httputil.GetIdentity(r))
	if err != nil {
		handleError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := h.renderer.Convert([]byte(job.Markdown), &buf); err != nil {
		h.logger.Error("render preview", "job_id", job.ID, "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "could not render preview")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(h.policy.SanitizeBytes(buf.Bytes()))
}
