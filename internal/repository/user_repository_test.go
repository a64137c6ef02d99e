package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var userRowColumns = []string{"epf", "name", "email", "role", "department", "password_hash", "active", "created_at", "updated_at"}

func TestFindByEPF(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("50005", "Nimal Perera", "nimal@ou.ac.lk", string(models.RoleHOD), "Computing", "hash", true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE epf = $1 LIMIT 1")).
		WithArgs("50005").
		WillReturnRows(rows)

	user, err := repo.FindByEPF(context.Background(), "50005")
	require.NoError(t, err)
	assert.Equal(t, models.RoleHOD, user.Role)
	assert.Equal(t, "Computing", user.Department)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEPFNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE epf = $1")).
		WithArgs("99999").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEPF(context.Background(), "99999")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCreateUserDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.User{EPF: "50005", Name: "N", Email: "n@ou.ac.lk", Role: models.RoleUser, Active: true})
	assert.True(t, errors.Is(err, ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	role := models.RoleAdmin
	mock.ExpectQuery(regexp.QuoteMeta("SELECT epf, name, email, role, department, password_hash, active, created_at, updated_at FROM users WHERE 1=1 AND role = $1")).
		WithArgs(role).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("40001", "Admin", "admin@ou.ac.lk", "admin", "IT", "", true, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1 AND role = $1")).
		WithArgs(role).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE epf = $1")).
		WithArgs("50005").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "50005"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE epf = $1")).
		WithArgs("50005").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "50005"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAuditLog(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	log := &models.AuditLog{Action: models.AuditActionUserCreate, Resource: models.AuditResourceUser}
	require.NoError(t, repo.CreateAuditLog(context.Background(), log))
	assert.NotEmpty(t, log.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
