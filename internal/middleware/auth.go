package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmobrien1/document-markdown-converter/internal/auth"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/repositories"
	"github.com/jmobrien1/document-markdown-converter/internal/httputil"
)

// Auth validates an optional Bearer token and attaches the account
// identity to the request. Requests without a token pass through
// untouched; the session middleware downstream gives them an anonymous
// identity. A present-but-invalid token is rejected so a client with an
// expired token notices instead of silently burning anonymous quota.
func Auth(verifier auth.JWTVerifier, users repositories.UserRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				httputil.RespondError(w, http.StatusUnauthorized, "malformed Authorization header")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				httputil.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			// First sight of a user creates the account row; later
			// requests just refresh email and last-seen. Best effort: an
			// upsert failure must not block the request.
			if err := users.Upsert(r.Context(), &models.User{ID: claims.Subject, Email: claims.Email}); err != nil {
				logger.Error("upsert user", "user_id", claims.Subject, "error", err)
			}

			id := models.Identity{
				UserID:     claims.Subject,
				RemoteAddr: httputil.ClientIP(r),
			}
			next.ServeHTTP(w, httputil.WithIdentity(r, id))
		})
	}
}

// RequireAuth rejects requests whose identity is not an account.
// Must run after Auth (and Session) in the chain.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !httputil.GetIdentity(r).Authenticated() {
			httputil.RespondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

// APIKey authenticates requests by the X-API-Key header. Keys are
// stored hashed; the lookup compares sha256 digests so a database leak
// does not leak keys.
func APIKey(users repositories.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "missing X-API-Key header")
				return
			}

			digest := sha256.Sum256([]byte(key))
			user, err := users.GetByAPIKeyHash(r.Context(), hex.EncodeToString(digest[:]))
			if err != nil {
				httputil.RespondError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			id := models.Identity{
				UserID:     user.ID,
				RemoteAddr: httputil.ClientIP(r),
			}
			next.ServeHTTP(w, httputil.WithIdentity(r, id))
		})
	}
}
