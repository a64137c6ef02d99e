package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
)

var approvalRowColumns = []string{"id", "print_request_id", "requester_epf", "requester_name", "file_name", "block_reason",
	"justification", "status", "decided_by", "decided_at", "decision_notes", "submitted_at", "created_at", "updated_at"}

func TestCreateApprovalRequestOpenExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectExec("INSERT INTO approval_requests").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.ApprovalRequest{
		PrintRequestID: "print-1",
		RequesterEPF:   "50005",
		BlockReason:    models.BlockReasonDailyLimit,
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestListApprovalRequestsByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.status IN ($1)")).
		WithArgs(models.ApprovalStatusPending).
		WillReturnRows(sqlmock.NewRows(approvalRowColumns).AddRow(
			"apr-1", "print-1", "50005", "Nimal", "thesis.pdf", "daily_limit", "thesis deadline", "pending",
			nil, nil, nil, now, now, now,
		))

	requests, err := repo.List(context.Background(), models.ApprovalFilter{Statuses: []models.ApprovalStatus{models.ApprovalStatusPending}})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, models.BlockReasonDailyLimit, requests[0].BlockReason)
	require.NotNil(t, requests[0].FileName)
	assert.Equal(t, "thesis.pdf", *requests[0].FileName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJustificationStale(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = $2")).
		WithArgs("apr-1", models.ApprovalStatusJustifying, models.ApprovalStatusPending, "thesis deadline", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now()
	err := repo.UpdateJustification(context.Background(), UpdateJustificationParams{
		ID:            "apr-1",
		From:          models.ApprovalStatusJustifying,
		To:            models.ApprovalStatusPending,
		Justification: "thesis deadline",
		SubmittedAt:   &now,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideApprovalRequest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.DecideTx(context.Background(), db, ApprovalDecisionParams{
		ID:        "apr-1",
		Status:    models.ApprovalStatusApproved,
		DecidedBy: "60001",
		DecidedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
