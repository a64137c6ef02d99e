package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/config"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

type authUserStore interface {
	FindByEPF(ctx context.Context, epf string) (*models.User, error)
	UpdatePassword(ctx context.Context, epf, passwordHash string, updatedAt time.Time) error
}

// AuthService authenticates callers. With the firebase provider identity tokens
// are verified externally and roles come from the users table; with the local
// provider the service issues its own HS256 tokens.
type AuthService struct {
	users     authUserStore
	provider  string
	identity  IdentityVerifier
	local     *LocalTokens
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAuthService constructs an AuthService. local may be nil for the firebase provider.
func NewAuthService(users authUserStore, provider string, identity IdentityVerifier, local *LocalTokens, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if identity == nil && local != nil {
		identity = local
	}
	return &AuthService{
		users:     users,
		provider:  provider,
		identity:  identity,
		local:     local,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Provider reports the configured auth provider.
func (s *AuthService) Provider() string {
	return s.provider
}

// Login exchanges EPF and password for an access token (local provider only).
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if s.provider != config.AuthProviderLocal || s.local == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "sign in through Firebase")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEPF(ctx, strings.TrimSpace(req.EPF))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}
	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, appErrors.ErrInvalidCredentials
	}

	token, _, err := s.local.Issue(user)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &user.EPF,
			Action:     models.AuditActionLogin,
			Resource:   models.AuditResourceUser,
			ResourceID: &user.EPF,
			NewValues:  []byte(`{"status":"success"}`),
			IPAddress:  req.IP,
			UserAgent:  req.UserAgent,
		}); err != nil {
			s.logger.Warn("failed to record login audit log", zap.Error(err))
		}
	}

	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.local.TTL().Seconds()),
		User:        models.NewUserInfo(user),
		IssuedAt:    time.Now().UTC(),
	}, nil
}

// Authenticate resolves a bearer token to request claims.
func (s *AuthService) Authenticate(ctx context.Context, rawToken string) (*models.JWTClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if s.provider == config.AuthProviderLocal && s.local != nil {
		return s.local.Parse(rawToken)
	}
	user, err := s.resolve(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	return &models.JWTClaims{UserID: user.EPF, Role: user.Role, Email: user.Email, Name: user.Name}, nil
}

// Verify returns the profile behind an identity token, for POST /auth/verify.
func (s *AuthService) Verify(ctx context.Context, req models.VerifyTokenRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "idToken is required")
	}
	user, err := s.resolve(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}
	info := models.NewUserInfo(user)
	return &info, nil
}

// ChangePassword updates the caller's local password.
func (s *AuthService) ChangePassword(ctx context.Context, actor *models.JWTClaims, req models.ChangePasswordRequest) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if s.provider != config.AuthProviderLocal {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "passwords are managed by Firebase")
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.users.FindByEPF(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Internal(err, "failed to load user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "current password does not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Internal(err, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, user.EPF, string(hash), time.Now().UTC()); err != nil {
		return appErrors.Internal(err, "failed to update password")
	}

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &user.EPF,
			Action:     models.AuditActionPasswordChange,
			Resource:   models.AuditResourceUser,
			ResourceID: &user.EPF,
			NewValues:  []byte(`{"status":"changed"}`),
		}); err != nil {
			s.logger.Warn("failed to record password change audit log", zap.Error(err))
		}
	}
	return nil
}

func (s *AuthService) resolve(ctx context.Context, rawToken string) (*models.User, error) {
	if s.identity == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "no identity verifier configured")
	}
	identity, err := s.identity.VerifyIdentity(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByEPF(ctx, identity.EPF)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user "+identity.EPF+" is not registered")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}
	return user, nil
}
