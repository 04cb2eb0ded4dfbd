package repositories

import (
	"context"

	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
)

// UsageRepository tracks anonymous-session conversion counts.
type UsageRepository interface {
	// GetOrCreate returns the usage row for the session, creating a
	// zero-initialized one on first sight.
	GetOrCreate(ctx context.Context, sessionID, ipAddress string) (*models.AnonymousUsage, error)

	// Reserve atomically increments the session's daily counter if and
	// only if it is below limit (rolling the window over first when the
	// date has changed). Returns the post-increment count and whether the
	// reservation was granted. Two concurrent submissions can never both
	// slip under the cap through a stale read: the increment-and-compare
	// is a single statement.
	Reserve(ctx context.Context, sessionID, ipAddress string, limit int) (allowed bool, count int, err error)

	// Release gives back one reserved unit after a submission that was
	// admitted but never became a job (storage failure). The counter
	// never goes negative.
	Release(ctx context.Context, sessionID string) error

	// ResetAll zeroes every counter whose window has passed. Called by an
	// external scheduled task; the lazy per-row reset in Reserve does not
	// depend on it.
	ResetAll(ctx context.Context) (int64, error)
}
