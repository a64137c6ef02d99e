package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

func newUserFixture(users ...models.User) (*UserService, *userStoreStub, *policyStoreStub, *auditRecorder) {
	store := newUserStoreStub(users...)
	policies := newPolicyStoreStub(&txStub{})
	audit := &auditRecorder{}
	svc := NewUserService(store, NewPolicyService(policies, nil), audit, nil, nil)
	return svc, store, policies, audit
}

func TestUserServiceCreate(t *testing.T) {
	svc, store, _, audit := newUserFixture(models.User{EPF: "5001", Email: "admin@ou.ac.lk", Role: models.RoleAdmin, Active: true})
	ctx := context.Background()

	user, err := svc.Create(ctx, actorAdmin, models.CreateUserRequest{
		EPF: "1002", Name: "Nimal Perera", Email: "Nimal@OU.ac.lk", Password: "secret123", Role: models.RoleUser, Department: "ICT",
	}, models.LoginRequest{IP: "10.1.1.1"})
	require.NoError(t, err)
	assert.Equal(t, "nimal@ou.ac.lk", user.Email)
	assert.True(t, user.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.users["1002"].PasswordHash), []byte("secret123")))
	assert.Equal(t, []string{models.AuditActionUserCreate}, audit.actions())

	firebaseOnly, err := svc.Create(ctx, actorAdmin, models.CreateUserRequest{
		EPF: "9003", Name: "Dean", Email: "dean@ou.ac.lk", Role: models.RoleDean,
	}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Empty(t, firebaseOnly.PasswordHash)

	_, err = svc.Create(ctx, actorAdmin, models.CreateUserRequest{
		EPF: "1003", Name: "Dup", Email: "nimal@ou.ac.lk", Role: models.RoleUser,
	}, models.LoginRequest{})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.Create(ctx, actorAdmin, models.CreateUserRequest{
		EPF: "1004", Name: "Bad", Email: "bad@ou.ac.lk", Role: "superuser",
	}, models.LoginRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(ctx, actorHOD, models.CreateUserRequest{
		EPF: "1005", Name: "X", Email: "x@ou.ac.lk", Role: models.RoleUser,
	}, models.LoginRequest{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestUserServiceDelete(t *testing.T) {
	svc, store, _, audit := newUserFixture(
		models.User{EPF: "5001", Role: models.RoleAdmin, Active: true},
		models.User{EPF: "1002", Role: models.RoleUser, Active: true},
	)
	ctx := context.Background()

	err := svc.Delete(ctx, actorAdmin, models.DeleteUserRequest{EPF: "5001"}, models.LoginRequest{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	err = svc.Delete(ctx, actorAdmin, models.DeleteUserRequest{EPF: "4040"}, models.LoginRequest{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	err = svc.Delete(ctx, actorAdmin, models.DeleteUserRequest{}, models.LoginRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	require.NoError(t, svc.Delete(ctx, actorAdmin, models.DeleteUserRequest{EPF: "1002"}, models.LoginRequest{}))
	assert.NotContains(t, store.users, "1002")
	assert.Equal(t, []string{models.AuditActionUserDelete}, audit.actions())
}

func TestUserServiceGetLoadsSpecialPolicy(t *testing.T) {
	svc, _, policies, _ := newUserFixture(models.User{EPF: "1002", Role: models.RoleUser, Active: true})
	ctx := context.Background()

	user, err := svc.Get(ctx, "1002")
	require.NoError(t, err)
	assert.Nil(t, user.SpecialPolicy)

	policies.overrides["1002"] = &models.PolicyRule{Scope: models.PolicyScopeUserOverride, MaxAttemptsPerDay: 10, MaxCopiesPerDoc: 5}
	user, err = svc.Get(ctx, "1002")
	require.NoError(t, err)
	require.NotNil(t, user.SpecialPolicy)
	assert.Equal(t, 10, user.SpecialPolicy.MaxAttemptsPerDay)

	_, err = svc.Get(ctx, "4040")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestUserServiceList(t *testing.T) {
	svc, _, _, _ := newUserFixture(
		models.User{EPF: "5001", Role: models.RoleAdmin},
		models.User{EPF: "1002", Role: models.RoleUser},
		models.User{EPF: "1003", Role: models.RoleUser},
	)
	role := models.RoleUser
	users, page, err := svc.List(context.Background(), actorAdmin, models.UserFilter{Role: &role})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.TotalCount)

	_, _, err = svc.List(context.Background(), actorStaff, models.UserFilter{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
