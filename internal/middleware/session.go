package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
	"github.com/jmobrien1/document-markdown-converter/internal/httputil"
)

// SessionCookieMaxAge keeps the anonymous session stable across the
// daily quota window.
const SessionCookieMaxAge = 30 * 24 * time.Hour

// Session gives unauthenticated requests a stable anonymous identity
// via a session cookie, issuing one on first contact. Authenticated
// requests (identity already set by Auth) pass through untouched.
// Must run after Auth in the chain.
func Session(cookieName string, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if httputil.GetIdentity(r).Authenticated() {
				next.ServeHTTP(w, r)
				return
			}

			sessionID := ""
			if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
				if _, err := uuid.Parse(c.Value); err == nil {
					sessionID = c.Value
				}
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   int(SessionCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			id := models.Identity{
				SessionID:  sessionID,
				RemoteAddr: httputil.ClientIP(r),
			}
			next.ServeHTTP(w, httputil.WithIdentity(r, id))
		})
	}
}
