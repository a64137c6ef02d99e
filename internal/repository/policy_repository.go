package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
)

const policyColumns = `id, scope, user_epf, max_attempts_per_day, max_copies_per_doc, max_pages_per_job,
	daily_quota, allow_color_printing, proposal_id, modified_by, created_at, updated_at`

// PolicyRepository reads and writes policy_rules. Writes only happen inside
// the transaction that approves a proposal.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs the repository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// GetGlobal returns the single global rule.
func (r *PolicyRepository) GetGlobal(ctx context.Context) (*models.PolicyRule, error) {
	query := `SELECT ` + policyColumns + ` FROM policy_rules WHERE scope = 'global' LIMIT 1`
	var rule models.PolicyRule
	if err := r.db.GetContext(ctx, &rule, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get global policy: %w", err)
	}
	return &rule, nil
}

// GetOverride returns the user's override or sql.ErrNoRows.
func (r *PolicyRepository) GetOverride(ctx context.Context, epf string) (*models.PolicyRule, error) {
	query := `SELECT ` + policyColumns + ` FROM policy_rules WHERE scope = 'user_override' AND user_epf = $1 LIMIT 1`
	var rule models.PolicyRule
	if err := r.db.GetContext(ctx, &rule, query, epf); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get policy override: %w", err)
	}
	return &rule, nil
}

// ListOverrides returns every override joined with its owner.
func (r *PolicyRepository) ListOverrides(ctx context.Context) ([]models.SpecialPolicy, error) {
	const query = `SELECT p.id, p.scope, p.user_epf, p.max_attempts_per_day, p.max_copies_per_doc, p.max_pages_per_job,
	p.daily_quota, p.allow_color_printing, p.proposal_id, p.modified_by, p.created_at, p.updated_at,
	u.name AS user_name, u.department
	FROM policy_rules p JOIN users u ON u.epf = p.user_epf
	WHERE p.scope = 'user_override' ORDER BY u.name ASC`
	var overrides []models.SpecialPolicy
	if err := r.db.SelectContext(ctx, &overrides, query); err != nil {
		return nil, fmt.Errorf("list policy overrides: %w", err)
	}
	return overrides, nil
}

// ReplaceGlobalTx swaps the set fields of the global rule in one statement.
func (r *PolicyRepository) ReplaceGlobalTx(ctx context.Context, ext sqlx.ExtContext, values models.PolicyValues, proposalID, modifiedBy string) (*models.PolicyRule, error) {
	query := `UPDATE policy_rules SET
	max_attempts_per_day = COALESCE($1, max_attempts_per_day),
	max_copies_per_doc = COALESCE($2, max_copies_per_doc),
	max_pages_per_job = COALESCE($3, max_pages_per_job),
	daily_quota = COALESCE($4, daily_quota),
	allow_color_printing = COALESCE($5, allow_color_printing),
	proposal_id = $6, modified_by = $7, updated_at = $8
	WHERE scope = 'global'
	RETURNING ` + policyColumns
	var rule models.PolicyRule
	err := sqlx.GetContext(ctx, ext, &rule, query,
		values.MaxAttemptsPerDay,
		values.MaxCopiesPerDoc,
		values.MaxPagesPerJob,
		values.DailyQuota,
		values.AllowColorPrinting,
		proposalID,
		modifiedBy,
		time.Now().UTC(),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("replace global policy: %w", err)
	}
	return &rule, nil
}

// UpsertOverrideTx creates or replaces a user's override.
func (r *PolicyRepository) UpsertOverrideTx(ctx context.Context, ext sqlx.ExtContext, rule *models.PolicyRule) (*models.PolicyRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	query := `INSERT INTO policy_rules (id, scope, user_epf, max_attempts_per_day, max_copies_per_doc, max_pages_per_job,
	daily_quota, allow_color_printing, proposal_id, modified_by, created_at, updated_at)
	VALUES ($1, 'user_override', $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	ON CONFLICT (user_epf) DO UPDATE SET
	max_attempts_per_day = EXCLUDED.max_attempts_per_day,
	max_copies_per_doc = EXCLUDED.max_copies_per_doc,
	max_pages_per_job = EXCLUDED.max_pages_per_job,
	daily_quota = EXCLUDED.daily_quota,
	allow_color_printing = EXCLUDED.allow_color_printing,
	proposal_id = EXCLUDED.proposal_id,
	modified_by = EXCLUDED.modified_by,
	updated_at = EXCLUDED.updated_at
	RETURNING ` + policyColumns
	var stored models.PolicyRule
	err := sqlx.GetContext(ctx, ext, &stored, query,
		rule.ID,
		rule.UserEPF,
		rule.MaxAttemptsPerDay,
		rule.MaxCopiesPerDoc,
		rule.MaxPagesPerJob,
		rule.DailyQuota,
		rule.AllowColorPrinting,
		rule.ProposalID,
		rule.ModifiedBy,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert policy override: %w", err)
	}
	return &stored, nil
}

// DeleteOverrideTx removes a user's override. sql.ErrNoRows when none existed.
func (r *PolicyRepository) DeleteOverrideTx(ctx context.Context, ext sqlx.ExtContext, epf string) error {
	result, err := ext.ExecContext(ctx, `DELETE FROM policy_rules WHERE scope = 'user_override' AND user_epf = $1`, epf)
	if err != nil {
		return fmt.Errorf("delete policy override: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check override delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
