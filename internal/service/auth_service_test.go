package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/config"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

func hashedUser(t *testing.T, epf string, role models.UserRole, password string) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return models.User{EPF: epf, Name: "User " + epf, Email: epf + "@ou.ac.lk", Role: role, Department: "ICT", PasswordHash: string(hash), Active: true}
}

func newLocalAuth(t *testing.T, users ...models.User) (*AuthService, *userStoreStub, *auditRecorder) {
	t.Helper()
	store := newUserStoreStub(users...)
	audit := &auditRecorder{}
	svc := NewAuthService(store, config.AuthProviderLocal, nil, NewLocalTokens("secret", time.Hour, "ousl"), audit, nil, nil)
	return svc, store, audit
}

func TestLoginIssuesUsableToken(t *testing.T) {
	svc, _, audit := newLocalAuth(t, hashedUser(t, "5001", models.RoleAdmin, "secret123"))
	ctx := context.Background()

	resp, err := svc.Login(ctx, models.LoginRequest{EPF: " 5001 ", Password: "secret123", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)

	claims, err := svc.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "5001", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLogin, audit.logs[0].Action)
	assert.Equal(t, "10.0.0.1", audit.logs[0].IPAddress)
}

func TestLoginFailures(t *testing.T) {
	inactive := hashedUser(t, "1009", models.RoleUser, "secret123")
	inactive.Active = false
	svc, _, audit := newLocalAuth(t, hashedUser(t, "1002", models.RoleUser, "secret123"), inactive)
	ctx := context.Background()

	_, err := svc.Login(ctx, models.LoginRequest{EPF: "1002", Password: "wrong"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
	_, err = svc.Login(ctx, models.LoginRequest{EPF: "4040", Password: "secret123"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
	_, err = svc.Login(ctx, models.LoginRequest{EPF: "1009", Password: "secret123"})
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)
	_, err = svc.Login(ctx, models.LoginRequest{EPF: "1002"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, audit.logs)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	svc, _, _ := newLocalAuth(t)
	_, err := svc.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	_, err = svc.Authenticate(context.Background(), "abc.def.ghi")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestChangePassword(t *testing.T) {
	svc, store, audit := newLocalAuth(t, hashedUser(t, "1002", models.RoleUser, "secret123"))
	ctx := context.Background()
	actor := claims("1002", models.RoleUser)

	err := svc.ChangePassword(ctx, actor, models.ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "newsecret"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	require.NoError(t, svc.ChangePassword(ctx, actor, models.ChangePasswordRequest{CurrentPassword: "secret123", NewPassword: "newsecret"}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.users["1002"].PasswordHash), []byte("newsecret")))
	assert.Equal(t, []string{models.AuditActionPasswordChange}, audit.actions())

	_, err = svc.Login(ctx, models.LoginRequest{EPF: "1002", Password: "newsecret"})
	assert.NoError(t, err)
}

func TestFirebaseProvider(t *testing.T) {
	signer := newFirebaseSigner(t)
	inactive := hashedUser(t, "1009", models.RoleUser, "")
	inactive.Active = false
	store := newUserStoreStub(hashedUser(t, "9001", models.RoleHOD, ""), inactive)
	svc := NewAuthService(store, config.AuthProviderFirebase, signer.verifier(), nil, nil, nil, nil)
	ctx := context.Background()

	claims, err := svc.Authenticate(ctx, signer.token(t, jwt.MapClaims{"epf": "9001"}))
	require.NoError(t, err)
	assert.Equal(t, models.RoleHOD, claims.Role, "role comes from the users table")

	info, err := svc.Verify(ctx, models.VerifyTokenRequest{IDToken: signer.token(t, jwt.MapClaims{"email": "9001@ou.ac.lk"})})
	require.NoError(t, err)
	assert.Equal(t, "9001", info.EPF)
	assert.Equal(t, "ICT", info.Department)

	_, err = svc.Verify(ctx, models.VerifyTokenRequest{IDToken: signer.token(t, jwt.MapClaims{"epf": "4040"})})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = svc.Authenticate(ctx, signer.token(t, jwt.MapClaims{"epf": "1009"}))
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)
	_, err = svc.Verify(ctx, models.VerifyTokenRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Login(ctx, models.LoginRequest{EPF: "9001", Password: "x"})
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
	err = svc.ChangePassword(ctx, &models.JWTClaims{UserID: "9001"}, models.ChangePasswordRequest{CurrentPassword: "a", NewPassword: "bbbbbb"})
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
}
