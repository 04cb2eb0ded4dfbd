package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jmobrien1/document-markdown-converter/internal/domain"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
)

// UserRepository is an in-memory repositories.UserRepository.
type UserRepository struct {
	mu    sync.Mutex
	users map[string]*models.User
}

// NewUserRepository creates an empty in-memory user store.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*models.User)}
}

// Add seeds a user, for test setup.
func (r *UserRepository) Add(user *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *user
	r.users[user.ID] = &clone
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "user not found"}
	}
	clone := *user
	return &clone, nil
}

func (r *UserRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.APIKeyHash != "" && user.APIKeyHash == hash {
			clone := *user
			return &clone, nil
		}
	}
	return nil, &domain.NotFoundError{Message: "user not found"}
}

func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := r.users[user.ID]
	if !ok {
		clone := *user
		clone.CreatedAt = now
		clone.LastSeenAt = &now
		r.users[user.ID] = &clone
		return nil
	}
	existing.Email = user.Email
	existing.LastSeenAt = &now
	return nil
}

func (r *UserRepository) ReserveProPages(ctx context.Context, userID string, pages int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return false, &domain.NotFoundError{Message: "user not found"}
	}

	now := time.Now().UTC()
	y, m, _ := now.Date()
	month := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	if user.UsageMonth.Before(month) {
		user.ProPagesUsed = 0
		user.UsageMonth = month
	}
	if user.ProPagesUsed+pages > user.ProPagesLimit {
		return false, nil
	}
	user.ProPagesUsed += pages
	return true, nil
}
