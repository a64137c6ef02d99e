package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/dto"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/policy"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/repository"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/workflow"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

type proposalStore interface {
	Create(ctx context.Context, proposal *models.PolicyProposal) error
	CreateTx(ctx context.Context, ext sqlx.ExtContext, proposal *models.PolicyProposal) error
	GetByID(ctx context.Context, id string) (*models.PolicyProposal, error)
	List(ctx context.Context, filter models.ProposalFilter) ([]models.PolicyProposal, error)
	HasPending(ctx context.Context, proposedBy string, proposalType models.ProposalType) (bool, error)
	DecideTx(ctx context.Context, ext sqlx.ExtContext, decision models.ProposalDecision) error
}

type policyReader interface {
	GetGlobalPolicy(ctx context.Context) (*models.PolicyRule, error)
	GetUserOverride(ctx context.Context, epf string) (*models.PolicyRule, error)
	ApplyApprovedProposal(ctx context.Context, ext sqlx.ExtContext, proposal *models.PolicyProposal) (*models.PolicyRule, error)
}

type userLookup interface {
	FindByEPF(ctx context.Context, epf string) (*models.User, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ProposalService handles admin policy proposals and their senior review.
type ProposalService struct {
	repo    proposalStore
	policy  policyReader
	users   userLookup
	tx      transactor
	audit   auditLogger
	cache   dashboardInvalidator
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// ProposalServiceOption configures optional collaborators.
type ProposalServiceOption func(*ProposalService)

// WithProposalCache invalidates dashboard caches after writes.
func WithProposalCache(c dashboardInvalidator) ProposalServiceOption {
	return func(s *ProposalService) { s.cache = c }
}

// WithProposalMetrics records decision counters.
func WithProposalMetrics(m *MetricsService) ProposalServiceOption {
	return func(s *ProposalService) { s.metrics = m }
}

// NewProposalService constructs the service.
func NewProposalService(repo proposalStore, policy policyReader, users userLookup, tx transactor, audit auditLogger, logger *zap.Logger, opts ...ProposalServiceOption) *ProposalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ProposalService{
		repo:   repo,
		policy: policy,
		users:  users,
		tx:     tx,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// ProposeSettings records a global settings change from the admin settings form.
// An admin may only have one such proposal pending at a time.
func (s *ProposalService) ProposeSettings(ctx context.Context, actor *models.JWTClaims, req dto.ProposeSettingsRequest) (*models.PolicyProposal, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	values := req.ProposedSettings.Values()
	if err := policy.ValidateValues(values, models.FieldMaxCopiesPerDoc, models.FieldMaxAttemptsPerDay); err != nil {
		return nil, err
	}
	return s.proposeGlobal(ctx, actor, values, req.Justification)
}

// ProposePolicy records a global change, a special-user override or a removal.
func (s *ProposalService) ProposePolicy(ctx context.Context, actor *models.JWTClaims, req dto.ProposePolicyRequest) (*models.PolicyProposal, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	switch req.Type {
	case dto.KindGlobal:
		values, err := changesToValues(req.Changes)
		if err != nil {
			return nil, err
		}
		if err := policy.ValidateValues(values); err != nil {
			return nil, err
		}
		return s.proposeGlobal(ctx, actor, values, req.Justification)
	case dto.KindSpecialUser:
		return s.proposeOverride(ctx, actor, req)
	case dto.KindRemoval:
		return s.proposeRemoval(ctx, actor, req.TargetEPF, req.Justification)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported proposal type %q", req.Type))
	}
}

// RequestRemoval asks the senior approvers to remove a user's special policy.
func (s *ProposalService) RequestRemoval(ctx context.Context, actor *models.JWTClaims, req dto.RemovalProposalRequest) (*models.PolicyProposal, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.proposeRemoval(ctx, actor, req.TargetEPF, req.Justification)
}

// RemoveSpecialPolicy lets a senior approver drop an override directly. It is
// stored as a removal proposal that is approved on creation, so the policy store
// is still only written by approved proposals.
func (s *ProposalService) RemoveSpecialPolicy(ctx context.Context, actor *models.JWTClaims, req dto.RemoveSpecialPolicyRequest) (*models.PolicyProposal, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !workflow.CanDecide(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only HOD, dean or VC may remove a special policy")
	}
	epf := strings.TrimSpace(req.EPF)
	override, err := s.policy.GetUserOverride(ctx, epf)
	if err != nil {
		return nil, err
	}
	if override == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user has no special policy")
	}
	now := s.now().UTC()
	proposal := &models.PolicyProposal{
		Type:          models.ProposalTypeUserOverrideRemove,
		ProposedBy:    actor.UserID,
		TargetEPF:     &epf,
		CurrentValues: override.Values(),
		Justification: strings.TrimSpace(req.Notes),
		Status:        models.ProposalStatusApproved,
		DecidedBy:     &actor.UserID,
		DecidedAt:     &now,
		DecisionNotes: optionalString(req.Notes),
	}
	err = s.tx.WithinTx(ctx, func(ext sqlx.ExtContext) error {
		if err := s.repo.CreateTx(ctx, ext, proposal); err != nil {
			return appErrors.Internal(err, "failed to record removal")
		}
		_, err := s.policy.ApplyApprovedProposal(ctx, ext, proposal)
		return err
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	proposal.DeriveChanges()
	s.emitAudit(ctx, actor.UserID, models.AuditActionPolicyRemove, models.AuditResourcePolicy, epf, proposal.CurrentValues, nil)
	s.invalidateDashboards(ctx)
	return proposal, nil
}

// List returns proposals with their derived field changes.
func (s *ProposalService) List(ctx context.Context, query dto.ProposalQuery) ([]models.PolicyProposal, error) {
	filter := models.ProposalFilter{ProposedBy: strings.TrimSpace(query.AdminID)}
	if query.Type != "" {
		proposalType, err := parseProposalType(query.Type)
		if err != nil {
			return nil, err
		}
		filter.Type = proposalType
	}
	if query.Status != "" && query.Status != "all" {
		status := models.ProposalStatus(strings.ToLower(query.Status))
		switch status {
		case models.ProposalStatusPending, models.ProposalStatusApproved, models.ProposalStatusRejected:
			filter.Status = status
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", query.Status))
		}
	}
	proposals, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list proposals")
	}
	for i := range proposals {
		proposals[i].DeriveChanges()
	}
	if proposals == nil {
		proposals = []models.PolicyProposal{}
	}
	return proposals, nil
}

// Get returns one proposal.
func (s *ProposalService) Get(ctx context.Context, id string) (*models.PolicyProposal, error) {
	proposal, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Internal(err, "failed to load proposal")
	}
	proposal.DeriveChanges()
	return proposal, nil
}

// Decide approves or rejects a pending proposal. The status update only applies
// while the row is still pending, and an approved proposal is written to the
// policy store in the same transaction.
func (s *ProposalService) Decide(ctx context.Context, actor *models.JWTClaims, req dto.DecideProposalRequest, approve bool) (*models.PolicyProposal, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	proposal, err := s.Get(ctx, req.ProposalID)
	if err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(req.DecisionText())
	next, err := workflow.Decide(workflow.ProposalState(proposal.Status), workflow.Decision{
		Approve:     approve,
		Notes:       notes,
		DeciderRole: actor.Role,
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	decision := models.ProposalDecision{
		ProposalID: proposal.ID,
		Status:     workflow.ProposalStatusOf(next),
		DecidedBy:  actor.UserID,
		Notes:      optionalString(notes),
		DecidedAt:  now,
	}
	err = s.tx.WithinTx(ctx, func(ext sqlx.ExtContext) error {
		if err := s.repo.DecideTx(ctx, ext, decision); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrAlreadyDecided
			}
			return appErrors.Internal(err, "failed to record decision")
		}
		if !approve {
			return nil
		}
		applied := *proposal
		applied.Status = decision.Status
		applied.DecidedBy = &decision.DecidedBy
		applied.DecidedAt = &now
		_, err := s.policy.ApplyApprovedProposal(ctx, ext, &applied)
		return err
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	proposal.Status = decision.Status
	proposal.DecidedBy = &decision.DecidedBy
	proposal.DecidedAt = &now
	proposal.DecisionNotes = decision.Notes

	action := models.AuditActionProposalReject
	if approve {
		action = models.AuditActionProposalApprove
	}
	s.emitAudit(ctx, actor.UserID, action, models.AuditResourceProposal, proposal.ID, proposal.CurrentValues, proposal.ProposedValues)
	s.metrics.RecordDecision("proposal", approve)
	s.invalidateDashboards(ctx)
	return proposal, nil
}

func (s *ProposalService) proposeGlobal(ctx context.Context, actor *models.JWTClaims, values models.PolicyValues, justification string) (*models.PolicyProposal, error) {
	pending, err := s.repo.HasPending(ctx, actor.UserID, models.ProposalTypeGlobalChange)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check pending proposals")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you already have a pending settings proposal")
	}
	global, err := s.policy.GetGlobalPolicy(ctx)
	if err != nil {
		return nil, err
	}
	proposal := &models.PolicyProposal{
		Type:           models.ProposalTypeGlobalChange,
		ProposedBy:     actor.UserID,
		CurrentValues:  global.Values(),
		ProposedValues: values,
		Justification:  strings.TrimSpace(justification),
	}
	return s.create(ctx, actor, proposal)
}

func (s *ProposalService) proposeOverride(ctx context.Context, actor *models.JWTClaims, req dto.ProposePolicyRequest) (*models.PolicyProposal, error) {
	target := strings.TrimSpace(req.TargetEPF)
	if target == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "targetEPF is required")
	}
	if strings.TrimSpace(req.Justification) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "justification is required for a special policy")
	}
	if req.ProposedPolicy == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proposedPolicy is required")
	}
	if err := policy.ValidateValues(*req.ProposedPolicy); err != nil {
		return nil, err
	}
	if _, err := s.users.FindByEPF(ctx, target); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("user %s not found", target))
		}
		return nil, appErrors.Internal(err, "failed to load target user")
	}
	current, err := s.currentValuesFor(ctx, target)
	if err != nil {
		return nil, err
	}
	proposal := &models.PolicyProposal{
		Type:           models.ProposalTypeUserOverrideCreate,
		ProposedBy:     actor.UserID,
		TargetEPF:      &target,
		CurrentValues:  current,
		ProposedValues: *req.ProposedPolicy,
		Justification:  strings.TrimSpace(req.Justification),
	}
	return s.create(ctx, actor, proposal)
}

func (s *ProposalService) proposeRemoval(ctx context.Context, actor *models.JWTClaims, target, justification string) (*models.PolicyProposal, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "targetEpf is required")
	}
	override, err := s.policy.GetUserOverride(ctx, target)
	if err != nil {
		return nil, err
	}
	if override == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user has no special policy")
	}
	proposal := &models.PolicyProposal{
		Type:          models.ProposalTypeUserOverrideRemove,
		ProposedBy:    actor.UserID,
		TargetEPF:     &target,
		CurrentValues: override.Values(),
		Justification: strings.TrimSpace(justification),
	}
	return s.create(ctx, actor, proposal)
}

func (s *ProposalService) create(ctx context.Context, actor *models.JWTClaims, proposal *models.PolicyProposal) (*models.PolicyProposal, error) {
	if err := s.repo.Create(ctx, proposal); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "you already have a pending settings proposal")
		}
		return nil, appErrors.Internal(err, "failed to create proposal")
	}
	proposal.DeriveChanges()
	s.emitAudit(ctx, actor.UserID, models.AuditActionProposalCreate, models.AuditResourceProposal, proposal.ID, proposal.CurrentValues, proposal.ProposedValues)
	s.invalidateDashboards(ctx)
	return proposal, nil
}

func (s *ProposalService) currentValuesFor(ctx context.Context, epf string) (models.PolicyValues, error) {
	override, err := s.policy.GetUserOverride(ctx, epf)
	if err != nil {
		return models.PolicyValues{}, err
	}
	if override != nil {
		return override.Values(), nil
	}
	global, err := s.policy.GetGlobalPolicy(ctx)
	if err != nil {
		return models.PolicyValues{}, err
	}
	return global.Values(), nil
}

func (s *ProposalService) emitAudit(ctx context.Context, actorID, action, resource, resourceID string, oldValues, newValues any) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		OldValues:  marshalAudit(oldValues),
		NewValues:  marshalAudit(newValues),
		IPAddress:  "system",
		UserAgent:  "proposal-service",
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (s *ProposalService) invalidateDashboards(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateDashboards(ctx)
}

// changesToValues reads the {field: {current, proposed}} map sent for global changes.
func changesToValues(changes map[models.PolicyField]dto.ChangeValue) (models.PolicyValues, error) {
	var values models.PolicyValues
	if len(changes) == 0 {
		return values, appErrors.Clone(appErrors.ErrValidation, "changes are required")
	}
	for field, change := range changes {
		if len(change.Proposed) == 0 {
			return values, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s has no proposed value", field))
		}
		var err error
		switch field {
		case models.FieldMaxAttemptsPerDay:
			values.MaxAttemptsPerDay, err = decodeInt(change.Proposed)
		case models.FieldMaxCopiesPerDoc:
			values.MaxCopiesPerDoc, err = decodeInt(change.Proposed)
		case models.FieldMaxPagesPerJob:
			values.MaxPagesPerJob, err = decodeInt(change.Proposed)
		case models.FieldDailyQuota:
			values.DailyQuota, err = decodeInt(change.Proposed)
		case models.FieldAllowColorPrinting:
			var b bool
			err = json.Unmarshal(change.Proposed, &b)
			values.AllowColorPrinting = &b
		default:
			return values, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown policy field %q", field))
		}
		if err != nil {
			return values, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s has an invalid value", field))
		}
	}
	return values, nil
}

func decodeInt(raw json.RawMessage) (*int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func parseProposalType(raw string) (models.ProposalType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(dto.KindGlobal), string(models.ProposalTypeGlobalChange):
		return models.ProposalTypeGlobalChange, nil
	case string(dto.KindSpecialUser), string(models.ProposalTypeUserOverrideCreate):
		return models.ProposalTypeUserOverrideCreate, nil
	case string(dto.KindRemoval), string(models.ProposalTypeUserOverrideRemove):
		return models.ProposalTypeUserOverrideRemove, nil
	case "all":
		return "", nil
	}
	return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown proposal type %q", raw))
}

func requireRole(actor *models.JWTClaims, roles ...models.UserRole) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return appErrors.ErrForbidden
}

func marshalAudit(value any) []byte {
	if value == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return data
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}
