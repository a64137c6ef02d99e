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

const approvalSelect = `SELECT a.id, a.print_request_id, a.requester_epf, u.name AS requester_name, pr.file_name,
	a.block_reason, a.justification, a.status, a.decided_by, a.decided_at, a.decision_notes, a.submitted_at,
	a.created_at, a.updated_at
	FROM approval_requests a
	LEFT JOIN users u ON u.epf = a.requester_epf
	LEFT JOIN print_requests pr ON pr.id = a.print_request_id`

// ApprovalRepository persists escalations of blocked prints.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create inserts a request. One open request per print is enforced by a
// partial unique index and surfaces as ErrDuplicate.
func (r *ApprovalRepository) Create(ctx context.Context, req *models.ApprovalRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.ApprovalStatusCreated
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	const query = `INSERT INTO approval_requests
	(id, print_request_id, requester_epf, block_reason, justification, status, submitted_at, created_at, updated_at)
	VALUES (:id, :print_request_id, :requester_epf, :block_reason, :justification, :status, :submitted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create approval request: %w", ErrDuplicate)
		}
		return fmt.Errorf("create approval request: %w", err)
	}
	return nil
}

// GetByID fetches one request with requester and document names.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	if err := r.db.GetContext(ctx, &req, approvalSelect+` WHERE a.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get approval request: %w", err)
	}
	return &req, nil
}

// List returns requests matching the filter, newest first.
func (r *ApprovalRepository) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error) {
	builder := strings.Builder{}
	builder.WriteString(approvalSelect)
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 2)
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("a.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.RequesterEPF != "" {
		args = append(args, filter.RequesterEPF)
		conditions = append(conditions, fmt.Sprintf("a.requester_epf = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY COALESCE(a.submitted_at, a.created_at) DESC")
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", clampLimit(filter.Limit, 50, 200), offset))

	var requests []models.ApprovalRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list approval requests: %w", err)
	}
	return requests, nil
}

// UpdateJustificationParams moves a request between pre-decision states.
type UpdateJustificationParams struct {
	ID            string
	From          models.ApprovalStatus
	To            models.ApprovalStatus
	Justification string
	SubmittedAt   *time.Time
}

// UpdateJustification applies the transition only if the row is still in From.
func (r *ApprovalRepository) UpdateJustification(ctx context.Context, params UpdateJustificationParams) error {
	const query = `UPDATE approval_requests
	SET status = $3, justification = $4, submitted_at = COALESCE($5, submitted_at), updated_at = $6
	WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, params.ID, params.From, params.To, params.Justification, params.SubmittedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update approval justification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check approval update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ApprovalDecisionParams captures a terminal decision.
type ApprovalDecisionParams struct {
	ID        string
	Status    models.ApprovalStatus
	DecidedBy string
	DecidedAt time.Time
	Notes     *string
}

// DecideTx records the decision only while the request is pending.
func (r *ApprovalRepository) DecideTx(ctx context.Context, ext sqlx.ExtContext, params ApprovalDecisionParams) error {
	const query = `UPDATE approval_requests
	SET status = $2, decided_by = $3, decided_at = $4, decision_notes = $5, updated_at = $4
	WHERE id = $1 AND status = 'pending'`
	result, err := ext.ExecContext(ctx, query, params.ID, params.Status, params.DecidedBy, params.DecidedAt, params.Notes)
	if err != nil {
		return fmt.Errorf("decide approval request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check approval decision rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
