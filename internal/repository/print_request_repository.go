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

const printColumns = `id, requester_epf, document_key, file_name, content_type, file_hash, size_bytes, pages, copies,
	color, classification, confidence, duplicate_similarity, status, block_reason, block_details, escalation_eligible,
	warning, summary, failure_reason, executor_job_id, exempt, executed_at, created_at, updated_at`

// PrintRequestRepository persists uploaded print jobs. Every status change is
// conditional on the status the caller last observed.
type PrintRequestRepository struct {
	db *sqlx.DB
}

// NewPrintRequestRepository constructs the repository.
func NewPrintRequestRepository(db *sqlx.DB) *PrintRequestRepository {
	return &PrintRequestRepository{db: db}
}

// Create inserts a print request in pending_classification.
func (r *PrintRequestRepository) Create(ctx context.Context, req *models.PrintRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.PrintStatusPendingClassification
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	const query = `INSERT INTO print_requests
	(id, requester_epf, document_key, file_name, content_type, file_hash, size_bytes, pages, copies, color, status, created_at, updated_at)
	VALUES (:id, :requester_epf, :document_key, :file_name, :content_type, :file_hash, :size_bytes, :pages, :copies, :color, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create print request: %w", err)
	}
	return nil
}

// GetByID fetches one print request.
func (r *PrintRequestRepository) GetByID(ctx context.Context, id string) (*models.PrintRequest, error) {
	return r.GetByIDTx(ctx, r.db, id)
}

// GetByIDTx fetches one print request through the given executor.
func (r *PrintRequestRepository) GetByIDTx(ctx context.Context, ext sqlx.ExtContext, id string) (*models.PrintRequest, error) {
	var req models.PrintRequest
	if err := sqlx.GetContext(ctx, ext, &req, `SELECT `+printColumns+` FROM print_requests WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get print request: %w", err)
	}
	return &req, nil
}

// List returns print requests matching the filter, newest first.
func (r *PrintRequestRepository) List(ctx context.Context, filter models.PrintFilter) ([]models.PrintRequest, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + printColumns + ` FROM print_requests`)
	args := make([]interface{}, 0, 2)
	conditions := make([]string, 0, 2)
	if filter.RequesterEPF != "" {
		args = append(args, filter.RequesterEPF)
		conditions = append(conditions, fmt.Sprintf("requester_epf = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", clampLimit(filter.Limit, 50, 200), offset))

	var requests []models.PrintRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list print requests: %w", err)
	}
	return requests, nil
}

// SaveOutcome persists the evaluation result. A cancel that landed first wins:
// the row must still be pending_classification or sql.ErrNoRows is returned.
func (r *PrintRequestRepository) SaveOutcome(ctx context.Context, id string, outcome models.PrintOutcome) error {
	const query = `UPDATE print_requests SET
	classification = $2, confidence = $3, duplicate_similarity = $4, status = $5, block_reason = $6,
	block_details = $7, escalation_eligible = $8, warning = $9, summary = $10, updated_at = $11
	WHERE id = $1 AND status = 'pending_classification'`
	result, err := r.db.ExecContext(ctx, query,
		id,
		outcome.Classification,
		outcome.Confidence,
		outcome.DuplicateSimilarity,
		outcome.Status,
		outcome.BlockReason,
		outcome.BlockDetails,
		outcome.EscalationEligible,
		outcome.Warning,
		outcome.Summary,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save print outcome: %w", err)
	}
	return expectOneRow(result, "print outcome")
}

// TransitionParams describes a conditional status change.
type TransitionParams struct {
	ID            string
	From          []models.PrintStatus
	To            models.PrintStatus
	FailureReason *string
	Exempt        *bool
	ExecutorJobID *string
	ExecutedAt    *time.Time
	// ClearExecutedAt resets executed_at, used when a reserved execution is undone.
	ClearExecutedAt bool
}

// Transition moves the row to To when its status is one of From.
func (r *PrintRequestRepository) Transition(ctx context.Context, params TransitionParams) error {
	return r.TransitionTx(ctx, r.db, params)
}

// TransitionTx is Transition through the given executor.
func (r *PrintRequestRepository) TransitionTx(ctx context.Context, ext sqlx.ExtContext, params TransitionParams) error {
	if len(params.From) == 0 {
		return fmt.Errorf("transition print request: no source status")
	}
	args := []interface{}{
		params.ID,
		params.To,
		params.FailureReason,
		params.Exempt,
		params.ExecutorJobID,
		params.ExecutedAt,
		time.Now().UTC(),
		params.ClearExecutedAt,
	}
	placeholders := make([]string, len(params.From))
	for i, status := range params.From {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`UPDATE print_requests SET
	status = $2,
	failure_reason = COALESCE($3, failure_reason),
	exempt = COALESCE($4, exempt),
	executor_job_id = COALESCE($5, executor_job_id),
	executed_at = CASE WHEN $8 THEN NULL ELSE COALESCE($6, executed_at) END,
	updated_at = $7
	WHERE id = $1 AND status IN (%s)`, strings.Join(placeholders, ","))
	result, err := ext.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition print request: %w", err)
	}
	return expectOneRow(result, "print transition")
}

// ExecutedHashToday reports whether the user already printed this exact file since dayStart.
func (r *PrintRequestRepository) ExecutedHashToday(ctx context.Context, epf, fileHash string, dayStart time.Time) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM print_requests
	WHERE requester_epf = $1 AND file_hash = $2 AND status = 'executed' AND executed_at >= $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, epf, fileHash, dayStart); err != nil {
		return false, fmt.Errorf("check printed hash: %w", err)
	}
	return exists, nil
}

func expectOneRow(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", what, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
