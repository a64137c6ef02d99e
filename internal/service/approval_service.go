package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/dto"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/repository"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/workflow"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

type approvalStore interface {
	Create(ctx context.Context, req *models.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error)
	List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error)
	UpdateJustification(ctx context.Context, params repository.UpdateJustificationParams) error
	DecideTx(ctx context.Context, ext sqlx.ExtContext, params repository.ApprovalDecisionParams) error
}

type printLookup interface {
	GetByID(ctx context.Context, id string) (*models.PrintRequest, error)
	TransitionTx(ctx context.Context, ext sqlx.ExtContext, params repository.TransitionParams) error
}

// ApprovalService escalates blocked prints to senior approvers.
type ApprovalService struct {
	repo    approvalStore
	prints  printLookup
	tx      transactor
	audit   auditLogger
	cache   dashboardInvalidator
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// ApprovalServiceOption configures optional collaborators.
type ApprovalServiceOption func(*ApprovalService)

// WithApprovalCache invalidates dashboard caches after writes.
func WithApprovalCache(c dashboardInvalidator) ApprovalServiceOption {
	return func(s *ApprovalService) { s.cache = c }
}

// WithApprovalMetrics records decision counters.
func WithApprovalMetrics(m *MetricsService) ApprovalServiceOption {
	return func(s *ApprovalService) { s.metrics = m }
}

// NewApprovalService constructs the service.
func NewApprovalService(repo approvalStore, prints printLookup, tx transactor, audit auditLogger, logger *zap.Logger, opts ...ApprovalServiceOption) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApprovalService{repo: repo, prints: prints, tx: tx, audit: audit, logger: logger, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Escalate opens an approval request for the actor's own blocked print. When a
// justification is supplied the request is submitted straight away.
func (s *ApprovalService) Escalate(ctx context.Context, actor *models.JWTClaims, printRequestID, justification string) (*models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	job, err := s.prints.GetByID(ctx, printRequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "print request not found")
		}
		return nil, appErrors.Internal(err, "failed to load print request")
	}
	if job.RequesterEPF != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if job.Status != models.PrintStatusBlocked || job.BlockReason == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only blocked prints can be escalated")
	}
	if !job.EscalationEligible {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "personal documents cannot be escalated")
	}

	req := &models.ApprovalRequest{
		PrintRequestID: job.ID,
		RequesterEPF:   actor.UserID,
		FileName:       &job.FileName,
		BlockReason:    *job.BlockReason,
		Status:         workflow.Created,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an approval request is already open for this print")
		}
		return nil, appErrors.Internal(err, "failed to create approval request")
	}
	if strings.TrimSpace(justification) == "" {
		return req, nil
	}

	state, err := workflow.Justify(req.Status, justification)
	if err != nil {
		return nil, err
	}
	if _, err := workflow.Submit(state, justification); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, req, workflow.Pending, justification); err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionApprovalSubmit, req.ID, req.Justification)
	s.invalidateDashboards(ctx)
	return req, nil
}

// Justify stores justification text. Empty text parks the request in justifying
// and reports a validation error.
func (s *ApprovalService) Justify(ctx context.Context, actor *models.JWTClaims, id, text string) (*models.ApprovalRequest, error) {
	req, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	next, stepErr := workflow.Justify(req.Status, text)
	if next != req.Status || stepErr == nil {
		if err := s.persist(ctx, req, next, text); err != nil {
			return nil, err
		}
	}
	if stepErr != nil {
		return nil, stepErr
	}
	return req, nil
}

// Submit hands the request to the senior approvers. text, when present,
// replaces the stored justification.
func (s *ApprovalService) Submit(ctx context.Context, actor *models.JWTClaims, id, text string) (*models.ApprovalRequest, error) {
	req, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	justification := req.Justification
	if strings.TrimSpace(text) != "" {
		justification = text
	}
	next, stepErr := workflow.Submit(req.Status, justification)
	if stepErr != nil {
		if next != req.Status {
			if err := s.persist(ctx, req, next, justification); err != nil {
				return nil, err
			}
		}
		return nil, stepErr
	}
	if err := s.persist(ctx, req, next, justification); err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionApprovalSubmit, req.ID, req.Justification)
	s.invalidateDashboards(ctx)
	return req, nil
}

// Get returns one request, visible to its requester and to senior approvers.
func (s *ApprovalService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterEPF != actor.UserID && !workflow.CanDecide(actor.Role) {
		return nil, appErrors.ErrForbidden
	}
	return req, nil
}

// ListMine returns the actor's own requests.
func (s *ApprovalService) ListMine(ctx context.Context, actor *models.JWTClaims) ([]models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return s.list(ctx, models.ApprovalFilter{RequesterEPF: actor.UserID})
}

// ListForDecider returns requests for the approver queue. filter is pending
// (default), approved, rejected or all.
func (s *ApprovalService) ListForDecider(ctx context.Context, actor *models.JWTClaims, query dto.ApprovalQuery) ([]models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !workflow.CanDecide(actor.Role) {
		return nil, appErrors.ErrForbidden
	}
	filter := models.ApprovalFilter{}
	switch strings.ToLower(strings.TrimSpace(query.Filter)) {
	case "", "pending":
		filter.Statuses = []models.ApprovalStatus{workflow.Pending}
	case "approved":
		filter.Statuses = []models.ApprovalStatus{workflow.Approved}
	case "rejected":
		filter.Statuses = []models.ApprovalStatus{workflow.Rejected}
	case "all":
		filter.Statuses = []models.ApprovalStatus{workflow.Pending, workflow.Approved, workflow.Rejected}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "filter must be pending, approved, rejected or all")
	}
	return s.list(ctx, filter)
}

// Decide approves or rejects a submitted request. Approval releases the blocked
// print as exempt in the same transaction.
func (s *ApprovalService) Decide(ctx context.Context, actor *models.JWTClaims, body dto.DecideApprovalRequest, approve bool) (*models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req, err := s.load(ctx, body.RequestID)
	if err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(body.DecisionText())
	next, err := workflow.Decide(req.Status, workflow.Decision{Approve: approve, Notes: notes, DeciderRole: actor.Role})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	params := repository.ApprovalDecisionParams{
		ID:        req.ID,
		Status:    next,
		DecidedBy: actor.UserID,
		DecidedAt: now,
		Notes:     optionalString(notes),
	}
	exempt := true
	err = s.tx.WithinTx(ctx, func(ext sqlx.ExtContext) error {
		if err := s.repo.DecideTx(ctx, ext, params); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrAlreadyDecided
			}
			return appErrors.Internal(err, "failed to record decision")
		}
		if !approve {
			return nil
		}
		err := s.prints.TransitionTx(ctx, ext, repository.TransitionParams{
			ID:     req.PrintRequestID,
			From:   []models.PrintStatus{models.PrintStatusBlocked},
			To:     models.PrintStatusApproved,
			Exempt: &exempt,
		})
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "print request is no longer blocked")
		}
		if err != nil {
			return appErrors.Internal(err, "failed to release print request")
		}
		return nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	req.Status = next
	req.DecidedBy = &params.DecidedBy
	req.DecidedAt = &now
	req.DecisionNotes = params.Notes

	action := models.AuditActionApprovalReject
	if approve {
		action = models.AuditActionApprovalApprove
	}
	s.emitAudit(ctx, actor.UserID, action, req.ID, notes)
	s.metrics.RecordDecision("approval", approve)
	s.invalidateDashboards(ctx)
	return req, nil
}

func (s *ApprovalService) persist(ctx context.Context, req *models.ApprovalRequest, to models.ApprovalStatus, justification string) error {
	params := repository.UpdateJustificationParams{
		ID:            req.ID,
		From:          req.Status,
		To:            to,
		Justification: strings.TrimSpace(justification),
	}
	if to == workflow.Pending {
		now := s.now().UTC()
		params.SubmittedAt = &now
	}
	if err := s.repo.UpdateJustification(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "approval request changed, reload and retry")
		}
		return appErrors.Internal(err, "failed to update approval request")
	}
	req.Status = to
	req.Justification = params.Justification
	if params.SubmittedAt != nil {
		req.SubmittedAt = params.SubmittedAt
	}
	return nil
}

func (s *ApprovalService) owned(ctx context.Context, actor *models.JWTClaims, id string) (*models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterEPF != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return req, nil
}

func (s *ApprovalService) load(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "approval request not found")
		}
		return nil, appErrors.Internal(err, "failed to load approval request")
	}
	return req, nil
}

func (s *ApprovalService) list(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error) {
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list approval requests")
	}
	if requests == nil {
		requests = []models.ApprovalRequest{}
	}
	return requests, nil
}

func (s *ApprovalService) emitAudit(ctx context.Context, actorID, action, requestID, note string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   models.AuditResourceApproval,
		ResourceID: &requestID,
		NewValues:  marshalAudit(map[string]string{"note": note}),
		IPAddress:  "system",
		UserAgent:  "approval-service",
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (s *ApprovalService) invalidateDashboards(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateDashboards(ctx)
}
