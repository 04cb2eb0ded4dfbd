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

// PostgresJobRepository implements the JobRepository interface
type PostgresJobRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewJobRepository creates a new conversion-job repository
func NewJobRepository(config *RepositoryConfig) repositories.JobRepository {
	return &PostgresJobRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const jobColumns = `id, user_id, session_id, original_filename, file_size, file_type,
		object_key, conversion_type, status, error_message, markdown, markdown_length,
		created_at, started_at, completed_at, processing_time`

// Create inserts a new job row with status pending.
func (r *PostgresJobRepository) Create(ctx context.Context, job *models.ConversionJob) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, session_id, original_filename, file_size, file_type,
			object_key, conversion_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, r.tables.Jobs)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		job.ID,
		job.UserID,
		job.SessionID,
		job.OriginalFilename,
		job.FileSize,
		job.FileType,
		job.ObjectKey,
		job.Tier,
		job.Status,
		job.CreatedAt,
	).Scan(&job.CreatedAt)

	if err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("conversion job %s already exists", job.ID)
		}
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("conversion job references unknown user %v", job.UserID)
		}
		return fmt.Errorf("create conversion job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by ID
func (r *PostgresJobRepository) GetByID(ctx context.Context, id string) (*models.ConversionJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, jobColumns, r.tables.Jobs)

	var job models.ConversionJob
	var errMsg, markdown *string
	var markdownLength *int
	var processingTime *float64

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.UserID,
		&job.SessionID,
		&job.OriginalFilename,
		&job.FileSize,
		&job.FileType,
		&job.ObjectKey,
		&job.Tier,
		&job.Status,
		&errMsg,
		&markdown,
		&markdownLength,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&processingTime,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("conversion job %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get conversion job: %w", err)
	}

	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	if markdown != nil {
		job.Markdown = *markdown
	}
	if markdownLength != nil {
		job.MarkdownLength = *markdownLength
	}
	if processingTime != nil {
		job.ProcessingTime = *processingTime
	}

	return &job, nil
}

// MarkProcessing transitions pending -> processing. The status guard in
// the WHERE clause keeps transitions monotonic: a job that is already
// terminal (or already claimed) is not touched.
func (r *PostgresJobRepository) MarkProcessing(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, started_at = now()
		WHERE id = $2 AND status = $3
	`, r.tables.Jobs)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, models.StatusProcessing, id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not pending: %w", id, domain.ErrNotFound)
	}
	return nil
}

// MarkCompleted transitions a non-terminal job to completed.
func (r *PostgresJobRepository) MarkCompleted(ctx context.Context, id string, result repositories.JobResult) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, markdown = $2, markdown_length = $3,
			completed_at = now(), processing_time = $4, error_message = NULL
		WHERE id = $5 AND status IN ($6, $7)
	`, r.tables.Jobs)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		models.StatusCompleted,
		result.Markdown,
		len(result.Markdown),
		result.ProcessingTime,
		id,
		models.StatusPending,
		models.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s already terminal: %w", id, domain.ErrNotFound)
	}
	return nil
}

// MarkFailed transitions a non-terminal job to failed.
func (r *PostgresJobRepository) MarkFailed(ctx context.Context, id string, result repositories.JobResult) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, error_message = $2, completed_at = now(), processing_time = $3
		WHERE id = $4 AND status IN ($5, $6)
	`, r.tables.Jobs)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		models.StatusFailed,
		result.ErrorMessage,
		result.ProcessingTime,
		id,
		models.StatusPending,
		models.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s already terminal: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListByUser returns the user's most recent jobs, newest first.
func (r *PostgresJobRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.ConversionJob, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, session_id, original_filename, file_size, file_type,
			conversion_type, status, error_message, markdown_length,
			created_at, completed_at, processing_time
		FROM %s
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, r.tables.Jobs)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ConversionJob
	for rows.Next() {
		var job models.ConversionJob
		var errMsg *string
		var markdownLength *int
		var processingTime *float64

		err := rows.Scan(
			&job.ID,
			&job.UserID,
			&job.SessionID,
			&job.OriginalFilename,
			&job.FileSize,
			&job.FileType,
			&job.Tier,
			&job.Status,
			&errMsg,
			&markdownLength,
			&job.CreatedAt,
			&job.CompletedAt,
			&processingTime,
		)
		if err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}

		if errMsg != nil {
			job.ErrorMessage = *errMsg
		}
		if markdownLength != nil {
			job.MarkdownLength = *markdownLength
		}
		if processingTime != nil {
			job.ProcessingTime = *processingTime
		}
		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}

// CountByUser returns total, completed and today's conversion counts.
// "Today" is a UTC date regardless of the server's timezone setting.
func (r *PostgresJobRepository) CountByUser(ctx context.Context, userID string) (total, completed, today int, err error) {
	query := fmt.Sprintf(`
		SELECT
			count(*),
			count(*) FILTER (WHERE status = $2),
			count(*) FILTER (WHERE (created_at AT TIME ZONE 'UTC')::date = (now() AT TIME ZONE 'UTC')::date)
		FROM %s
		WHERE user_id = $1
	`, r.tables.Jobs)

	executor := GetExecutor(ctx, r.pool)
	if err = executor.QueryRow(ctx, query, userID, models.StatusCompleted).Scan(&total, &completed, &today); err != nil {
		return 0, 0, 0, fmt.Errorf("count conversions: %w", err)
	}
	return total, completed, today, nil
}
