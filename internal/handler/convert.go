package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/jmobrien1/document-markdown-converter/internal/config"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
	"github.com/jmobrien1/document-markdown-converter/internal/httputil"
	"github.com/jmobrien1/document-markdown-converter/internal/service/conversion"
)

// largeFileThreshold is roughly 25 pages of scanned PDF; above it the
// client is warned that pro processing may take a while.
const largeFileThreshold = 1_750_000

// ConvertHandler accepts document uploads.
type ConvertHandler struct {
	dispatcher *conversion.Dispatcher
	logger     *slog.Logger
}

// NewConvertHandler creates the upload handler.
func NewConvertHandler(dispatcher *conversion.Dispatcher, logger *slog.Logger) *ConvertHandler {
	return &ConvertHandler{dispatcher: dispatcher, logger: logger}
}

type convertResponse struct {
	JobID       string `json:"job_id"`
	StatusURL   string `json:"status_url"`
	IsLargeFile bool   `json:"is_large_file"`
	Message     string `json:"message,omitempty"`
}

// Convert handles POST /convert: a multipart form with a "file" part
// and an optional "pro_conversion" flag. Responds 202 with a status URL
// to poll.
func (h *ConvertHandler) Convert(w http.ResponseWriter, r *http.Request) {
	maxUpload := h.dispatcher.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+(1<<20))

	if err := r.ParseMultipartForm(4 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.RespondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds the %d MB limit", maxUpload>>20))
			return
		}
		httputil.RespondError(w, http.StatusBadRequest, "request is not a valid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "no file part in the request")
		return
	}
	defer file.Close()

	if header.Size > maxUpload {
		httputil.RespondError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload exceeds the %d MB limit", maxUpload>>20))
		return
	}

	if err := validation.Validate(header.Filename,
		validation.Required,
		validation.Length(1, config.MaxFilenameLength),
	); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid filename: "+err.Error())
		return
	}

	tier := models.TierStandard
	if r.FormValue("pro_conversion") == "on" || r.FormValue("pro_conversion") == "true" {
		tier = models.TierPro
	}

	sub := conversion.Submission{
		Filename: header.Filename,
		Size:     header.Size,
		Content:  file,
		Tier:     tier,
		Identity: httputil.GetIdentity(r),
	}

	job, err := h.dispatcher.Submit(r.Context(), sub)
	if err != nil {
		handleError(w, err)
		return
	}

	resp := convertResponse{
		JobID:       job.ID,
		StatusURL:   statusURL(r, job.ID),
		IsLargeFile: job.FileSize > largeFileThreshold,
	}
	if resp.IsLargeFile && job.Tier == models.TierPro {
		resp.Message = "Large document detected. This may take several minutes to process."
	}

	httputil.RespondJSON(w, http.StatusAccepted, resp)
}

// statusURL keeps the poll URL on the surface the upload came in on, so
// an X-API-Key client is not pointed at the cookie-authenticated route.
func statusURL(r *http.Request, jobID string) string {
	if strings.HasPrefix(r.URL.Path, "/api/v1/") {
		return "/api/v1/status/" + jobID
	}
	return "/status/" + jobID
}
