package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmobrien1/document-markdown-converter/internal/domain"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/repositories"
)

// PostgresUserRepository implements the UserRepository interface
type PostgresUserRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(config *RepositoryConfig) repositories.UserRepository {
	return &PostgresUserRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const userColumns = `id, email, api_key_hash, is_pro, pro_pages_used, pro_pages_limit,
		usage_month, created_at, last_seen_at`

func (r *PostgresUserRepository) scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	var user models.User
	var apiKeyHash *string

	err := row.Scan(
		&user.ID,
		&user.Email,
		&apiKeyHash,
		&user.IsPro,
		&user.ProPagesUsed,
		&user.ProPagesLimit,
		&user.UsageMonth,
		&user.CreatedAt,
		&user.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}
	if apiKeyHash != nil {
		user.APIKeyHash = *apiKeyHash
	}
	return &user, nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, userColumns, r.tables.Users)

	executor := GetExecutor(ctx, r.pool)
	user, err := r.scanUser(executor.QueryRow(ctx, query, id))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetByAPIKeyHash resolves an API key hash to its user
func (r *PostgresUserRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE api_key_hash = $1`, userColumns, r.tables.Users)

	executor := GetExecutor(ctx, r.pool)
	user, err := r.scanUser(executor.QueryRow(ctx, query, hash))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("api key: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get user by api key: %w", err)
	}
	return user, nil
}

// Upsert creates the user on first login and refreshes email/last-seen on
// subsequent ones.
func (r *PostgresUserRepository) Upsert(ctx context.Context, user *models.User) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, email, is_pro, pro_pages_used, pro_pages_limit, usage_month, created_at, last_seen_at)
		VALUES ($1, $2, $3, 0, $4, date_trunc('month', now()), now(), now())
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, last_seen_at = now()
		RETURNING created_at, pro_pages_used, usage_month
	`, r.tables.Users)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.IsPro,
		user.ProPagesLimit,
	).Scan(&user.CreatedAt, &user.ProPagesUsed, &user.UsageMonth)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// ReserveProPages atomically consumes monthly pro page budget. The month
// window rolls over inside the same statement, matching the anonymous
// counter's lazy reset. No row in RETURNING means the budget is spent.
func (r *PostgresUserRepository) ReserveProPages(ctx context.Context, userID string, pages int) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET pro_pages_used = CASE
				WHEN usage_month < date_trunc('month', now()) THEN $2
				ELSE pro_pages_used + $2
			END,
			usage_month = date_trunc('month', now())
		WHERE id = $1 AND is_pro AND (
			usage_month < date_trunc('month', now()) AND $2 <= pro_pages_limit
			OR pro_pages_used + $2 <= pro_pages_limit
		)
		RETURNING pro_pages_used
	`, r.tables.Users)

	var used int
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, userID, pages).Scan(&used)
	if err != nil {
		if IsPgNoRowsError(err) {
			return false, nil
		}
		return false, fmt.Errorf("reserve pro pages: %w", err)
	}

	return true, nil
}
