// Package usage enforces the conversion quotas: a daily cap for
// anonymous sessions and a monthly page budget for pro conversions.
// Account holders get unlimited standard conversions.
package usage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmobrien1/document-markdown-converter/internal/domain"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/repositories"
)

// DefaultAnonymousDailyLimit is the number of conversions an
// unauthenticated session may run per UTC day.
const DefaultAnonymousDailyLimit = 5

// Limiter checks and reserves quota before a submission is admitted.
type Limiter struct {
	usage  repositories.UsageRepository
	users  repositories.UserRepository
	limit  int
	logger *slog.Logger
}

// NewLimiter creates a quota limiter. A non-positive dailyLimit falls
// back to DefaultAnonymousDailyLimit.
func NewLimiter(usage repositories.UsageRepository, users repositories.UserRepository, dailyLimit int, logger *slog.Logger) *Limiter {
	if dailyLimit <= 0 {
		dailyLimit = DefaultAnonymousDailyLimit
	}
	return &Limiter{
		usage:  usage,
		users:  users,
		limit:  dailyLimit,
		logger: logger,
	}
}

// DailyLimit returns the configured anonymous cap.
func (l *Limiter) DailyLimit() int { return l.limit }

// Reserve claims one unit of quota for the identity, or returns a
// domain.QuotaExceededError. For authenticated standard conversions this
// is a no-op; for pro conversions it draws one page from the monthly
// budget up front (the worker settles the remainder once the true page
// count is known).
func (l *Limiter) Reserve(ctx context.Context, id models.Identity, tier models.Tier) error {
	if !id.Authenticated() {
		if tier == models.TierPro {
			return &domain.UnauthorizedError{Message: "pro conversion requires an account"}
		}
		return l.reserveAnonymous(ctx, id)
	}

	if tier != models.TierPro {
		return nil
	}

	user, err := l.users.GetByID(ctx, id.UserID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", id.UserID, err)
	}
	if !user.IsPro {
		return &domain.QuotaExceededError{
			Message: "pro conversion requires a pro subscription",
			Limit:   0,
		}
	}

	allowed, err := l.users.ReserveProPages(ctx, id.UserID, 1)
	if err != nil {
		return fmt.Errorf("reserve pro pages for %s: %w", id.UserID, err)
	}
	if !allowed {
		return &domain.QuotaExceededError{
			Message: "monthly pro page limit reached",
			Limit:   user.ProPagesLimit,
		}
	}
	return nil
}

func (l *Limiter) reserveAnonymous(ctx context.Context, id models.Identity) error {
	if id.SessionID == "" {
		return &domain.ValidationError{Message: "missing session"}
	}

	allowed, count, err := l.usage.Reserve(ctx, id.SessionID, id.RemoteAddr, l.limit)
	if err != nil {
		return fmt.Errorf("reserve daily quota: %w", err)
	}
	if !allowed {
		l.logger.Info("daily limit hit",
			"session_id", id.SessionID,
			"limit", l.limit)
		return &domain.QuotaExceededError{
			Message: fmt.Sprintf("daily conversion limit of %d reached, try again tomorrow or sign in", l.limit),
			Limit:   l.limit,
		}
	}

	l.logger.Debug("quota reserved",
		"session_id", id.SessionID,
		"count", count,
		"limit", l.limit)
	return nil
}

// Release returns one reserved unit after a submission that was admitted
// but never produced a job. Only anonymous reservations are returned;
// a spent pro page stays spent (the upstream service was not invoked yet,
// but a single page of slack is acceptable over a mid-month refund path).
func (l *Limiter) Release(ctx context.Context, id models.Identity) {
	if id.Authenticated() || id.SessionID == "" {
		return
	}
	if err := l.usage.Release(ctx, id.SessionID); err != nil {
		l.logger.Error("release quota reservation",
			"session_id", id.SessionID,
			"error", err)
	}
}

// Status describes the identity's current quota standing, served by the
// user-status endpoint.
type Status struct {
	Authenticated     bool   `json:"authenticated"`
	Email             string `json:"email,omitempty"`
	Tier              string `json:"tier"`
	DailyLimit        int    `json:"daily_limit,omitempty"`
	ConversionsToday  int    `json:"conversions_today,omitempty"`
	RemainingToday    int    `json:"remaining_today,omitempty"`
	ProPagesLimit     int    `json:"pro_pages_limit,omitempty"`
	ProPagesUsed      int    `json:"pro_pages_used,omitempty"`
	ProPagesRemaining int    `json:"pro_pages_remaining,omitempty"`
}

// StatusFor reports the identity's quota standing without consuming any.
func (l *Limiter) StatusFor(ctx context.Context, id models.Identity) (*Status, error) {
	now := time.Now()

	if !id.Authenticated() {
		st := &Status{
			Tier:           "anonymous",
			DailyLimit:     l.limit,
			RemainingToday: l.limit,
		}
		if id.SessionID == "" {
			return st, nil
		}
		u, err := l.usage.GetOrCreate(ctx, id.SessionID, id.RemoteAddr)
		if err != nil {
			return nil, fmt.Errorf("load usage for session: %w", err)
		}
		remaining := u.Remaining(l.limit, now)
		st.ConversionsToday = l.limit - remaining
		st.RemainingToday = remaining
		return st, nil
	}

	user, err := l.users.GetByID(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id.UserID, err)
	}

	st := &Status{
		Authenticated: true,
		Email:         user.Email,
		Tier:          "free",
	}
	if user.IsPro {
		st.Tier = "pro"
		st.ProPagesLimit = user.ProPagesLimit
		st.ProPagesRemaining = user.ProPagesRemaining(now)
		st.ProPagesUsed = user.ProPagesLimit - st.ProPagesRemaining
	}
	return st, nil
}

// ResetAll zeroes every anonymous counter whose day has passed. Exposed
// for the scheduled maintenance task; the per-row lazy reset in Reserve
// keeps correctness even if this never runs.
func (l *Limiter) ResetAll(ctx context.Context) (int64, error) {
	n, err := l.usage.ResetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset usage counters: %w", err)
	}
	if n > 0 {
		l.logger.Info("reset anonymous usage counters", "rows", n)
	}
	return n, nil
}
