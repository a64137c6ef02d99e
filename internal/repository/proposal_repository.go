package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
)

const proposalSelect = `SELECT p.id, p.type, p.proposed_by, pu.name AS proposer_name, p.target_epf,
	tu.name AS target_name, tu.department AS target_department, p.current_values, p.proposed_values,
	p.justification, p.status, p.decided_by, p.decided_at, p.decision_notes, p.created_at, p.updated_at
	FROM policy_proposals p
	LEFT JOIN users pu ON pu.epf = p.proposed_by
	LEFT JOIN users tu ON tu.epf = p.target_epf`

// ProposalRepository persists policy proposals.
type ProposalRepository struct {
	db *sqlx.DB
}

// NewProposalRepository constructs the repository.
func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// Create inserts a proposal outside any transaction.
func (r *ProposalRepository) Create(ctx context.Context, proposal *models.PolicyProposal) error {
	return r.CreateTx(ctx, r.db, proposal)
}

// CreateTx inserts a proposal. A second pending settings proposal from the
// same admin violates a partial unique index and yields ErrDuplicate.
func (r *ProposalRepository) CreateTx(ctx context.Context, ext sqlx.ExtContext, proposal *models.PolicyProposal) error {
	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}
	if proposal.Status == "" {
		proposal.Status = models.ProposalStatusPending
	}
	now := time.Now().UTC()
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = now
	}
	proposal.UpdatedAt = now

	const query = `INSERT INTO policy_proposals
	(id, type, proposed_by, target_epf, current_values, proposed_values, justification, status, decided_by, decided_at, decision_notes, created_at, updated_at)
	VALUES (:id, :type, :proposed_by, :target_epf, :current_values, :proposed_values, :justification, :status, :decided_by, :decided_at, :decision_notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, proposal); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create proposal: %w", ErrDuplicate)
		}
		return fmt.Errorf("create proposal: %w", err)
	}
	return nil
}

// GetByID fetches a proposal with proposer and target names.
func (r *ProposalRepository) GetByID(ctx context.Context, id string) (*models.PolicyProposal, error) {
	var proposal models.PolicyProposal
	if err := r.db.GetContext(ctx, &proposal, proposalSelect+` WHERE p.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	return &proposal, nil
}

// List returns proposals matching the filter, newest first.
func (r *ProposalRepository) List(ctx context.Context, filter models.ProposalFilter) ([]models.PolicyProposal, error) {
	builder := strings.Builder{}
	builder.WriteString(proposalSelect)
	args := make([]interface{}, 0, 3)
	conditions := make([]string, 0, 3)
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("p.type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)))
	}
	if filter.ProposedBy != "" {
		args = append(args, filter.ProposedBy)
		conditions = append(conditions, fmt.Sprintf("p.proposed_by = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY p.created_at DESC")
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", clampLimit(filter.Limit, 50, 200), offset))

	var proposals []models.PolicyProposal
	if err := r.db.SelectContext(ctx, &proposals, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return proposals, nil
}

// HasPending reports whether the admin already has a pending proposal of the type.
func (r *ProposalRepository) HasPending(ctx context.Context, proposedBy string, proposalType models.ProposalType) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM policy_proposals WHERE proposed_by = $1 AND type = $2 AND status = 'pending')`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, proposedBy, proposalType); err != nil {
		return false, fmt.Errorf("check pending proposal: %w", err)
	}
	return exists, nil
}

// DecideTx records the decision only while the proposal is still pending.
// It returns sql.ErrNoRows when another decider got there first.
func (r *ProposalRepository) DecideTx(ctx context.Context, ext sqlx.ExtContext, decision models.ProposalDecision) error {
	const query = `UPDATE policy_proposals
	SET status = $2, decided_by = $3, decided_at = $4, decision_notes = $5, updated_at = $4
	WHERE id = $1 AND status = 'pending'`
	result, err := ext.ExecContext(ctx, query, decision.ProposalID, decision.Status, decision.DecidedBy, decision.DecidedAt, decision.Notes)
	if err != nil {
		return fmt.Errorf("decide proposal: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check proposal decision rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
