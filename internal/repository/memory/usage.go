package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
)

// UsageRepository is an in-memory repositories.UsageRepository with the
// same lazy daily-window rollover as the postgres implementation.
type UsageRepository struct {
	mu   sync.Mutex
	rows map[string]*models.AnonymousUsage
	next int64

	// Now is the clock; tests override it to cross day boundaries.
	Now func() time.Time
}

// NewUsageRepository creates an empty in-memory usage store.
func NewUsageRepository() *UsageRepository {
	return &UsageRepository{rows: make(map[string]*models.AnonymousUsage), Now: time.Now}
}

func (r *UsageRepository) GetOrCreate(ctx context.Context, sessionID, ipAddress string) (*models.AnonymousUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.row(sessionID, ipAddress)
	clone := *row
	return &clone, nil
}

func (r *UsageRepository) Reserve(ctx context.Context, sessionID, ipAddress string, limit int) (bool, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.Now().UTC()
	row := r.row(sessionID, ipAddress)

	if row.LastConversion == nil || beforeDay(*row.LastConversion, now) {
		row.ConversionsToday = 0
	}
	if row.ConversionsToday >= limit {
		return false, limit, nil
	}
	row.ConversionsToday++
	row.LastConversion = &now
	row.IPAddress = ipAddress
	return true, row.ConversionsToday, nil
}

func (r *UsageRepository) Release(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if row, ok := r.rows[sessionID]; ok && row.ConversionsToday > 0 {
		row.ConversionsToday--
	}
	return nil
}

func (r *UsageRepository) ResetAll(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.Now().UTC()
	var n int64
	for _, row := range r.rows {
		if row.ConversionsToday > 0 && row.LastConversion != nil && beforeDay(*row.LastConversion, now) {
			row.ConversionsToday = 0
			n++
		}
	}
	return n, nil
}

func (r *UsageRepository) row(sessionID, ipAddress string) *models.AnonymousUsage {
	row, ok := r.rows[sessionID]
	if !ok {
		r.next++
		row = &models.AnonymousUsage{
			ID:        r.next,
			SessionID: sessionID,
			IPAddress: ipAddress,
			CreatedAt: r.Now().UTC(),
		}
		r.rows[sessionID] = row
	}
	return row
}

func beforeDay(t, now time.Time) bool {
	ty, tm, td := t.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	if ty != ny {
		return ty < ny
	}
	if tm != nm {
		return tm < nm
	}
	return td < nd
}
