package usage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jmobrien1/document-markdown-converter/internal/domain"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
)

type fakeUsageRepo struct {
	counts     map[string]int
	released   map[string]int
	reserveErr error
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{counts: make(map[string]int), released: make(map[string]int)}
}

func (f *fakeUsageRepo) GetOrCreate(_ context.Context, sessionID, _ string) (*models.AnonymousUsage, error) {
	now := time.Now()
	u := &models.AnonymousUsage{SessionID: sessionID, ConversionsToday: f.counts[sessionID]}
	if u.ConversionsToday > 0 {
		u.LastConversion = &now
	}
	return u, nil
}

func (f *fakeUsageRepo) Reserve(_ context.Context, sessionID, _ string, limit int) (bool, int, error) {
	if f.reserveErr != nil {
		return false, 0, f.reserveErr
	}
	if f.counts[sessionID] >= limit {
		return false, limit, nil
	}
	f.counts[sessionID]++
	return true, f.counts[sessionID], nil
}

func (f *fakeUsageRepo) Release(_ context.Context, sessionID string) error {
	if f.counts[sessionID] > 0 {
		f.counts[sessionID]--
	}
	f.released[sessionID]++
	return nil
}

func (f *fakeUsageRepo) ResetAll(context.Context) (int64, error) {
	n := int64(len(f.counts))
	f.counts = make(map[string]int)
	return n, nil
}

type fakeUserRepo struct {
	users       map[string]*models.User
	proAllowed  bool
	proReserved int
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "user not found"}
	}
	return u, nil
}

func (f *fakeUserRepo) GetByAPIKeyHash(context.Context, string) (*models.User, error) {
	return nil, &domain.NotFoundError{Message: "user not found"}
}

func (f *fakeUserRepo) Upsert(context.Context, *models.User) error { return nil }

func (f *fakeUserRepo) ReserveProPages(_ context.Context, _ string, pages int) (bool, error) {
	if !f.proAllowed {
		return false, nil
	}
	f.proReserved += pages
	return true, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReserveAnonymousDailyCap(t *testing.T) {
	repo := newFakeUsageRepo()
	l := NewLimiter(repo, &fakeUserRepo{}, 3, discardLogger())
	id := models.Identity{SessionID: "sess-1", RemoteAddr: "203.0.113.9"}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Reserve(ctx, id, models.TierStandard); err != nil {
			t.Fatalf("Reserve #%d error = %v", i+1, err)
		}
	}

	err := l.Reserve(ctx, id, models.TierStandard)
	if err == nil {
		t.Fatal("Reserve over the cap succeeded, want quota error")
	}
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Errorf("error %v does not match ErrQuotaExceeded", err)
	}
	var qe *domain.QuotaExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("error %v is not a QuotaExceededError", err)
	}
	if qe.Limit != 3 {
		t.Errorf("Limit = %d, want 3", qe.Limit)
	}
}

func TestReserveAnonymousMissingSession(t *testing.T) {
	l := NewLimiter(newFakeUsageRepo(), &fakeUserRepo{}, 5, discardLogger())

	err := l.Reserve(context.Background(), models.Identity{RemoteAddr: "203.0.113.9"}, models.TierStandard)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want validation error", err)
	}
}

func TestReserveAuthenticatedStandardUnlimited(t *testing.T) {
	repo := newFakeUsageRepo()
	users := &fakeUserRepo{users: map[string]*models.User{"u1": {ID: "u1"}}}
	l := NewLimiter(repo, users, 1, discardLogger())
	id := models.Identity{UserID: "u1"}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := l.Reserve(ctx, id, models.TierStandard); err != nil {
			t.Fatalf("Reserve #%d error = %v", i+1, err)
		}
	}
	if len(repo.counts) != 0 {
		t.Error("authenticated reservation touched the anonymous counters")
	}
}

func TestReservePro(t *testing.T) {
	tests := []struct {
		name    string
		id      models.Identity
		user    *models.User
		allowed bool
		wantErr error
	}{
		{
			name:    "anonymous pro rejected",
			id:      models.Identity{SessionID: "sess-1"},
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:    "non-pro account rejected",
			id:      models.Identity{UserID: "u1"},
			user:    &models.User{ID: "u1"},
			wantErr: domain.ErrQuotaExceeded,
		},
		{
			name:    "pro over budget rejected",
			id:      models.Identity{UserID: "u1"},
			user:    &models.User{ID: "u1", IsPro: true, ProPagesLimit: 100},
			allowed: false,
			wantErr: domain.ErrQuotaExceeded,
		},
		{
			name:    "pro within budget",
			id:      models.Identity{UserID: "u1"},
			user:    &models.User{ID: "u1", IsPro: true, ProPagesLimit: 100},
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &fakeUserRepo{users: map[string]*models.User{}, proAllowed: tt.allowed}
			if tt.user != nil {
				users.users[tt.user.ID] = tt.user
			}
			l := NewLimiter(newFakeUsageRepo(), users, 5, discardLogger())

			err := l.Reserve(context.Background(), tt.id, models.TierPro)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Reserve error = %v", err)
				}
				if users.proReserved != 1 {
					t.Errorf("proReserved = %d, want 1", users.proReserved)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReleaseReturnsAnonymousUnit(t *testing.T) {
	repo := newFakeUsageRepo()
	l := NewLimiter(repo, &fakeUserRepo{}, 5, discardLogger())
	id := models.Identity{SessionID: "sess-1"}

	ctx := context.Background()
	if err := l.Reserve(ctx, id, models.TierStandard); err != nil {
		t.Fatalf("Reserve error = %v", err)
	}
	l.Release(ctx, id)

	if repo.counts["sess-1"] != 0 {
		t.Errorf("count after release = %d, want 0", repo.counts["sess-1"])
	}

	// Releasing an authenticated identity must not touch the counters.
	l.Release(ctx, models.Identity{UserID: "u1"})
	if repo.released["u1"] != 0 {
		t.Error("release for authenticated identity reached the usage repo")
	}
}

func TestStatusFor(t *testing.T) {
	repo := newFakeUsageRepo()
	users := &fakeUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "pro@example.com", IsPro: true, ProPagesLimit: 1000, ProPagesUsed: 250, UsageMonth: firstOfMonth(time.Now())},
		"u2": {ID: "u2", Email: "free@example.com"},
	}}
	l := NewLimiter(repo, users, 5, discardLogger())
	ctx := context.Background()

	id := models.Identity{SessionID: "sess-1", RemoteAddr: "203.0.113.9"}
	for i := 0; i < 2; i++ {
		if err := l.Reserve(ctx, id, models.TierStandard); err != nil {
			t.Fatalf("Reserve error = %v", err)
		}
	}

	st, err := l.StatusFor(ctx, id)
	if err != nil {
		t.Fatalf("StatusFor error = %v", err)
	}
	if st.Authenticated || st.Tier != "anonymous" {
		t.Errorf("anonymous status = %+v", st)
	}
	if st.ConversionsToday != 2 || st.RemainingToday != 3 {
		t.Errorf("ConversionsToday = %d, RemainingToday = %d, want 2 and 3", st.ConversionsToday, st.RemainingToday)
	}

	st, err = l.StatusFor(ctx, models.Identity{UserID: "u1"})
	if err != nil {
		t.Fatalf("StatusFor pro error = %v", err)
	}
	if !st.Authenticated || st.Tier != "pro" {
		t.Errorf("pro status = %+v", st)
	}
	if st.ProPagesRemaining != 750 {
		t.Errorf("ProPagesRemaining = %d, want 750", st.ProPagesRemaining)
	}

	st, err = l.StatusFor(ctx, models.Identity{UserID: "u2"})
	if err != nil {
		t.Fatalf("StatusFor free error = %v", err)
	}
	if st.Tier != "free" {
		t.Errorf("Tier = %q, want free", st.Tier)
	}
}

func firstOfMonth(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}
