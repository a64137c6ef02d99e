package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/repository"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByEPF(ctx context.Context, epf string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, epf string) error
}

type overrideReader interface {
	GetUserOverride(ctx context.Context, epf string) (*models.PolicyRule, error)
}

// UserService handles account administration.
type UserService struct {
	repo      userRepository
	policies  overrideReader
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, policies overrideReader, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, policies: policies, audit: audit, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, actor *models.JWTClaims, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, nil, err
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user with its special policy, if any.
func (s *UserService) Get(ctx context.Context, epf string) (*models.User, error) {
	user, err := s.repo.FindByEPF(ctx, epf)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	if s.policies != nil {
		override, err := s.policies.GetUserOverride(ctx, epf)
		if err != nil {
			return nil, err
		}
		user.SpecialPolicy = override
	}
	return user, nil
}

// Create provisions an account. The password is optional because firebase
// deployments authenticate elsewhere.
func (s *UserService) Create(ctx context.Context, actor *models.JWTClaims, req models.CreateUserRequest, meta models.LoginRequest) (*models.User, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	user := &models.User{
		EPF:        strings.TrimSpace(req.EPF),
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Role:       req.Role,
		Department: strings.TrimSpace(req.Department),
		Active:     true,
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to hash password")
		}
		user.PasswordHash = string(hash)
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "epf or email already registered")
		}
		return nil, appErrors.Internal(err, "failed to create user")
	}

	payload, _ := json.Marshal(map[string]interface{}{"epf": user.EPF, "email": user.Email, "role": user.Role})
	s.record(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionUserCreate,
		Resource:   models.AuditResourceUser,
		ResourceID: &user.EPF,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return user, nil
}

// Delete removes an account permanently. Admins cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, actor *models.JWTClaims, req models.DeleteUserRequest, meta models.LoginRequest) error {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "epf is required")
	}
	epf := strings.TrimSpace(req.EPF)
	if epf == actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot delete your own account")
	}

	user, err := s.repo.FindByEPF(ctx, epf)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Internal(err, "failed to load user")
	}
	if err := s.repo.Delete(ctx, epf); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Internal(err, "failed to delete user")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"epf": user.EPF, "role": user.Role, "email": user.Email})
	s.record(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionUserDelete,
		Resource:   models.AuditResourceUser,
		ResourceID: &user.EPF,
		OldValues:  oldPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return nil
}

func (s *UserService) record(ctx context.Context, entry *models.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}
