package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/policy"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

type policyStore interface {
	GetGlobal(ctx context.Context) (*models.PolicyRule, error)
	GetOverride(ctx context.Context, epf string) (*models.PolicyRule, error)
	ListOverrides(ctx context.Context) ([]models.SpecialPolicy, error)
	ReplaceGlobalTx(ctx context.Context, ext sqlx.ExtContext, values models.PolicyValues, proposalID, modifiedBy string) (*models.PolicyRule, error)
	UpsertOverrideTx(ctx context.Context, ext sqlx.ExtContext, rule *models.PolicyRule) (*models.PolicyRule, error)
	DeleteOverrideTx(ctx context.Context, ext sqlx.ExtContext, epf string) error
}

// transactor runs a unit of work in one database transaction.
type transactor interface {
	WithinTx(ctx context.Context, fn func(ext sqlx.ExtContext) error) error
}

// PolicyApplier writes an approved proposal to the policy store.
type PolicyApplier interface {
	Apply(ctx context.Context, ext sqlx.ExtContext, proposal *models.PolicyProposal) (*models.PolicyRule, error)
}

// PolicyApplierFunc allows using plain functions.
type PolicyApplierFunc func(ctx context.Context, ext sqlx.ExtContext, proposal *models.PolicyProposal) (*models.PolicyRule, error)

// Apply implements PolicyApplier.
func (f PolicyApplierFunc) Apply(ctx context.Context, ext sqlx.ExtContext, proposal *models.PolicyProposal) (*models.PolicyRule, error) {
	return f(ctx, ext, proposal)
}

// PolicyService reads policy rules and applies approved proposals.
type PolicyService struct {
	repo     policyStore
	appliers map[models.ProposalType]PolicyApplier
	logger   *zap.Logger
}

// PolicyServiceOption configures the service.
type PolicyServiceOption func(*PolicyService)

// WithPolicyAppliers overrides appliers per proposal type.
func WithPolicyAppliers(appliers map[models.ProposalType]PolicyApplier) PolicyServiceOption {
	return func(s *PolicyService) {
		for k, v := range appliers {
			s.appliers[k] = v
		}
	}
}

// NewPolicyService constructs the service with the default appliers.
func NewPolicyService(repo policyStore, logger *zap.Logger, opts ...PolicyServiceOption) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &PolicyService{repo: repo, logger: logger, appliers: make(map[models.ProposalType]PolicyApplier)}
	svc.appliers[models.ProposalTypeGlobalChange] = PolicyApplierFunc(svc.applyGlobal)
	svc.appliers[models.ProposalTypeUserOverrideCreate] = PolicyApplierFunc(svc.applyOverride)
	svc.appliers[models.ProposalTypeUserOverrideRemove] = PolicyApplierFunc(svc.applyRemoval)
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// GetGlobalPolicy returns the global rule.
func (s *PolicyService) GetGlobalPolicy(ctx context.Context) (*models.PolicyRule, error) {
	rule, err := s.repo.GetGlobal(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInternal, "global policy missing")
		}
		return nil, appErrors.Internal(err, "failed to load global policy")
	}
	return rule, nil
}

// GetUserOverride returns the user's override, or nil when none is active.
func (s *PolicyService) GetUserOverride(ctx context.Context, epf string) (*models.PolicyRule, error) {
	rule, err := s.repo.GetOverride(ctx, epf)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Internal(err, "failed to load policy override")
	}
	return rule, nil
}

// EffectivePolicy resolves the rule that applies to the user right now.
func (s *PolicyService) EffectivePolicy(ctx context.Context, epf string) (models.PolicyRule, error) {
	global, err := s.GetGlobalPolicy(ctx)
	if err != nil {
		return models.PolicyRule{}, err
	}
	override, err := s.GetUserOverride(ctx, epf)
	if err != nil {
		return models.PolicyRule{}, err
	}
	return policy.Resolve(*global, override), nil
}

// CurrentPolicies returns the global rule and every special-user override.
func (s *PolicyService) CurrentPolicies(ctx context.Context) (*models.CurrentPolicies, error) {
	global, err := s.GetGlobalPolicy(ctx)
	if err != nil {
		return nil, err
	}
	overrides, err := s.repo.ListOverrides(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list policy overrides")
	}
	if overrides == nil {
		overrides = []models.SpecialPolicy{}
	}
	return &models.CurrentPolicies{Global: *global, SpecialUsers: overrides}, nil
}

// ApplyApprovedProposal writes the proposal through ext. It must run in the
// transaction that marks the proposal approved.
func (s *PolicyService) ApplyApprovedProposal(ctx context.Context, ext sqlx.ExtContext, proposal *models.PolicyProposal) (*models.PolicyRule, error) {
	if proposal == nil || proposal.Status != models.ProposalStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only approved proposals can be applied")
	}
	applier := s.appliers[proposal.Type]
	if applier == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("unsupported proposal type: %s", proposal.Type))
	}
	rule, err := applier.Apply(ctx, ext, proposal)
	if err != nil {
		return nil, err
	}
	s.logger.Info("policy proposal applied",
		zap.String("proposal_id", proposal.ID),
		zap.String("type", string(proposal.Type)),
	)
	return rule, nil
}

func (s *PolicyService) applyGlobal(ctx context.Context, ext sqlx.ExtContext, proposal *models.PolicyProposal) (*models.PolicyRule, error) {
	if err := policy.ValidateValues(proposal.ProposedValues); err != nil {
		return nil, err
	}
	rule, err := s.repo.ReplaceGlobalTx(ctx, ext, proposal.ProposedValues, proposal.ID, deref(proposal.DecidedBy))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to replace global policy")
	}
	return rule, nil
}

func (s *PolicyService) applyOverride(ctx context.Context, ext sqlx.ExtContext, proposal *models.PolicyProposal) (*models.PolicyRule, error) {
	if proposal.TargetEPF == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "override proposal has no target user")
	}
	if err := policy.ValidateValues(proposal.ProposedValues); err != nil {
		return nil, err
	}
	base, err := s.repo.GetOverride(ctx, *proposal.TargetEPF)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		global, gErr := s.GetGlobalPolicy(ctx)
		if gErr != nil {
			return nil, gErr
		}
		// extended fields stay unset so they keep following the global rule
		base = &models.PolicyRule{MaxAttemptsPerDay: global.MaxAttemptsPerDay, MaxCopiesPerDoc: global.MaxCopiesPerDoc}
	case err != nil:
		return nil, appErrors.Internal(err, "failed to load policy override")
	}
	rule := policy.ApplyValues(*base, proposal.ProposedValues)
	rule.UserEPF = proposal.TargetEPF
	rule.ProposalID = &proposal.ID
	rule.ModifiedBy = proposal.DecidedBy
	stored, err := s.repo.UpsertOverrideTx(ctx, ext, &rule)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to store policy override")
	}
	return stored, nil
}

func (s *PolicyService) applyRemoval(ctx context.Context, ext sqlx.ExtContext, proposal *models.PolicyProposal) (*models.PolicyRule, error) {
	if proposal.TargetEPF == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "removal proposal has no target user")
	}
	if err := s.repo.DeleteOverrideTx(ctx, ext, *proposal.TargetEPF); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "user has no special policy")
		}
		return nil, appErrors.Internal(err, "failed to remove policy override")
	}
	return s.GetGlobalPolicy(ctx)
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
