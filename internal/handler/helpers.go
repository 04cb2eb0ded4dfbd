package handler

import (
	"errors"
	"net/http"

	"github.com/jmobrien1/document-markdown-converter/internal/domain"
	"github.com/jmobrien1/document-markdown-converter/internal/httputil"
)

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	// Quota errors carry their limit so clients can render it.
	var quotaErr *domain.QuotaExceededError
	if errors.As(err, &quotaErr) {
		httputil.RespondQuotaError(w, quotaErr.StatusCode(), quotaErr.Error(), quotaErr.Limit)
		return
	}

	// Any error that knows its status code maps directly.
	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
