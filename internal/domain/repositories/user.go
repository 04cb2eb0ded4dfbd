package repositories

import (
	"context"

	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
)

// UserRepository persists account records.
type UserRepository interface {
	// GetByID returns the user or domain.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.User, error)

	// GetByAPIKeyHash resolves an API key (stored as sha256 hex) to its
	// user, or domain.ErrNotFound.
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, error)

	// Upsert creates the user on first login and refreshes email and
	// last-seen on subsequent ones.
	Upsert(ctx context.Context, user *models.User) error

	// ReserveProPages atomically adds pages to the user's monthly pro
	// usage if the budget allows, rolling the month window first when it
	// has passed. Returns whether the reservation was granted.
	ReserveProPages(ctx context.Context, userID string, pages int) (allowed bool, err error)
}
