package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
)

const usageColumns = `user_epf, to_char(day, 'YYYY-MM-DD') AS day, attempts, pages, updated_at`

// UsageRepository tracks per-day consumption. Increments are single
// conditional upserts so concurrent executions cannot under-count.
type UsageRepository struct {
	db *sqlx.DB
}

// NewUsageRepository constructs the repository.
func NewUsageRepository(db *sqlx.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Get returns the counter for the day, zero-valued when nothing was printed yet.
func (r *UsageRepository) Get(ctx context.Context, epf, day string) (*models.UsageCounter, error) {
	query := `SELECT ` + usageColumns + ` FROM usage_counters WHERE user_epf = $1 AND day = $2`
	var counter models.UsageCounter
	if err := r.db.GetContext(ctx, &counter, query, epf, day); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.UsageCounter{UserEPF: epf, Day: day}, nil
		}
		return nil, fmt.Errorf("get usage counter: %w", err)
	}
	return &counter, nil
}

// CopiesForDocument returns how many copies of the file the user printed that day.
func (r *UsageRepository) CopiesForDocument(ctx context.Context, epf, day, fileHash string) (int, error) {
	const query = `SELECT COALESCE(SUM(copies), 0) FROM document_copies WHERE user_epf = $1 AND day = $2 AND file_hash = $3`
	var copies int
	if err := r.db.GetContext(ctx, &copies, query, epf, day, fileHash); err != nil {
		return 0, fmt.Errorf("get document copies: %w", err)
	}
	return copies, nil
}

// IncrementTx counts one successful print. When inc.Enforce is set the update
// only applies while attempts are below inc.MaxAttempts; otherwise sql.ErrNoRows.
func (r *UsageRepository) IncrementTx(ctx context.Context, ext sqlx.ExtContext, inc models.UsageIncrement) (*models.UsageCounter, error) {
	now := time.Now().UTC()
	query := `INSERT INTO usage_counters (user_epf, day, attempts, pages, updated_at)
	VALUES ($1, $2, 1, $3, $4)
	ON CONFLICT (user_epf, day) DO UPDATE SET
	attempts = usage_counters.attempts + 1,
	pages = usage_counters.pages + EXCLUDED.pages,
	updated_at = EXCLUDED.updated_at
	WHERE NOT $5 OR usage_counters.attempts < $6
	RETURNING ` + usageColumns
	var counter models.UsageCounter
	if err := sqlx.GetContext(ctx, ext, &counter, query, inc.UserEPF, inc.Day, inc.Pages, now, inc.Enforce, inc.MaxAttempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("increment usage: %w", err)
	}

	const copiesQuery = `INSERT INTO document_copies (user_epf, day, file_hash, copies)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_epf, day, file_hash) DO UPDATE SET copies = document_copies.copies + EXCLUDED.copies`
	if _, err := ext.ExecContext(ctx, copiesQuery, inc.UserEPF, inc.Day, inc.FileHash, inc.Copies); err != nil {
		return nil, fmt.Errorf("increment document copies: %w", err)
	}
	return &counter, nil
}

// ReleaseTx undoes one IncrementTx for a print the executor refused.
func (r *UsageRepository) ReleaseTx(ctx context.Context, ext sqlx.ExtContext, inc models.UsageIncrement) error {
	const query = `UPDATE usage_counters SET
	attempts = GREATEST(attempts - 1, 0),
	pages = GREATEST(pages - $3, 0),
	updated_at = $4
	WHERE user_epf = $1 AND day = $2`
	result, err := ext.ExecContext(ctx, query, inc.UserEPF, inc.Day, inc.Pages, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	if err := expectOneRow(result, "usage release"); err != nil {
		return err
	}

	const copiesQuery = `UPDATE document_copies SET copies = GREATEST(copies - $4, 0)
	WHERE user_epf = $1 AND day = $2 AND file_hash = $3`
	if _, err := ext.ExecContext(ctx, copiesQuery, inc.UserEPF, inc.Day, inc.FileHash, inc.Copies); err != nil {
		return fmt.Errorf("release document copies: %w", err)
	}
	return nil
}
