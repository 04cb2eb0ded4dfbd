package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/repositories"
)

// PostgresUsageRepository implements the UsageRepository interface
type PostgresUsageRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewUsageRepository creates a new anonymous-usage repository
func NewUsageRepository(config *RepositoryConfig) repositories.UsageRepository {
	return &PostgresUsageRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// GetOrCreate returns the usage row for a session, inserting a
// zero-initialized one on first sight.
func (r *PostgresUsageRepository) GetOrCreate(ctx context.Context, sessionID, ipAddress string) (*models.AnonymousUsage, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (session_id, ip_address, conversions_today, created_at)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (session_id) DO UPDATE SET ip_address = EXCLUDED.ip_address
		RETURNING id, session_id, ip_address, conversions_today, last_conversion, created_at
	`, r.tables.Usage)

	var usage models.AnonymousUsage
	var ip *string

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, sessionID, ipAddress).Scan(
		&usage.ID,
		&usage.SessionID,
		&ip,
		&usage.ConversionsToday,
		&usage.LastConversion,
		&usage.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get or create usage: %w", err)
	}
	if ip != nil {
		usage.IPAddress = *ip
	}

	return &usage, nil
}

// Reserve is a single atomic increment-and-compare. The window rolls over
// inside the same statement when last_conversion predates today, so two
// concurrent submissions from one session cannot both slip under the cap.
// No row in RETURNING means the reservation was refused. Dates are
// compared in UTC so the daily window does not depend on the server's
// timezone setting.
func (r *PostgresUsageRepository) Reserve(ctx context.Context, sessionID, ipAddress string, limit int) (bool, int, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (session_id, ip_address, conversions_today, last_conversion, created_at)
		VALUES ($1, $2, 1, now(), now())
		ON CONFLICT (session_id) DO UPDATE
		SET conversions_today = CASE
				WHEN %s.last_conversion IS NULL
					OR (%s.last_conversion AT TIME ZONE 'UTC')::date < (now() AT TIME ZONE 'UTC')::date THEN 1
				ELSE %s.conversions_today + 1
			END,
			last_conversion = now(),
			ip_address = EXCLUDED.ip_address
		WHERE %s.last_conversion IS NULL
			OR (%s.last_conversion AT TIME ZONE 'UTC')::date < (now() AT TIME ZONE 'UTC')::date
			OR %s.conversions_today < $3
		RETURNING conversions_today
	`, r.tables.Usage, r.tables.Usage, r.tables.Usage, r.tables.Usage, r.tables.Usage, r.tables.Usage, r.tables.Usage)

	var count int
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, sessionID, ipAddress, limit).Scan(&count)
	if err != nil {
		if IsPgNoRowsError(err) {
			// Conditional update refused: cap reached for today.
			return false, limit, nil
		}
		return false, 0, fmt.Errorf("reserve usage: %w", err)
	}

	return true, count, nil
}

// Release gives back one unit after an admitted submission failed before
// a job was created. GREATEST keeps the counter non-negative.
func (r *PostgresUsageRepository) Release(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET conversions_today = GREATEST(conversions_today - 1, 0)
		WHERE session_id = $1
	`, r.tables.Usage)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	return nil
}

// ResetAll zeroes all counters from past windows. Used by the scheduled
// bulk reset; the lazy reset in Reserve works without it.
func (r *PostgresUsageRepository) ResetAll(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET conversions_today = 0
		WHERE last_conversion IS NOT NULL
			AND (last_conversion AT TIME ZONE 'UTC')::date < (now() AT TIME ZONE 'UTC')::date
			AND conversions_today > 0
	`, r.tables.Usage)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reset usage counters: %w", err)
	}

	r.logger.Info("anonymous usage counters reset", "rows", tag.RowsAffected())
	return tag.RowsAffected(), nil
}
