package httputil

import (
	"context"
	"net/http"

	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	identityKey contextKey = "identity"
)

// WithIdentity attaches the caller's identity to the request context.
func WithIdentity(r *http.Request, id models.Identity) *http.Request {
	ctx := context.WithValue(r.Context(), identityKey, id)
	return r.WithContext(ctx)
}

// GetIdentity retrieves the caller's identity from the request context.
// Returns a zero Identity if none was attached.
func GetIdentity(r *http.Request) models.Identity {
	id, _ := r.Context().Value(identityKey).(models.Identity)
	return id
}
