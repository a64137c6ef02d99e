package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/dto"
)

// DashboardRepository runs the read-only aggregations behind the dashboards.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// CountPrintsSince counts print requests uploaded since the given instant.
func (r *DashboardRepository) CountPrintsSince(ctx context.Context, since time.Time) (int, error) {
	return r.count(ctx, "count prints", `SELECT COUNT(*) FROM print_requests WHERE created_at >= $1`, since)
}

// CountBlockedSince counts prints the evaluator blocked since the given instant.
func (r *DashboardRepository) CountBlockedSince(ctx context.Context, since time.Time) (int, error) {
	return r.count(ctx, "count blocked prints", `SELECT COUNT(*) FROM print_requests WHERE block_reason IS NOT NULL AND created_at >= $1`, since)
}

// CountPendingProposals counts proposals awaiting a decision.
func (r *DashboardRepository) CountPendingProposals(ctx context.Context) (int, error) {
	return r.count(ctx, "count pending proposals", `SELECT COUNT(*) FROM policy_proposals WHERE status = 'pending'`)
}

// CountPendingApprovals counts submitted approval requests.
func (r *DashboardRepository) CountPendingApprovals(ctx context.Context) (int, error) {
	return r.count(ctx, "count pending approvals", `SELECT COUNT(*) FROM approval_requests WHERE status = 'pending'`)
}

// CountActiveUsers counts active accounts.
func (r *DashboardRepository) CountActiveUsers(ctx context.Context) (int, error) {
	return r.count(ctx, "count active users", `SELECT COUNT(*) FROM users WHERE active`)
}

// TopUsers ranks users by executed prints since the given instant.
func (r *DashboardRepository) TopUsers(ctx context.Context, since time.Time, limit int) ([]dto.UserPrintCount, error) {
	const query = `SELECT u.epf, u.name, u.department, COUNT(*) AS prints, COALESCE(SUM(pr.pages * pr.copies), 0) AS pages
	FROM print_requests pr JOIN users u ON u.epf = pr.requester_epf
	WHERE pr.status = 'executed' AND pr.executed_at >= $1
	GROUP BY u.epf, u.name, u.department
	ORDER BY prints DESC, u.epf ASC
	LIMIT $2`
	var rows []dto.UserPrintCount
	if err := r.db.SelectContext(ctx, &rows, query, since, clampLimit(limit, 10, 100)); err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	return rows, nil
}

// ProposalStats counts proposals per status.
func (r *DashboardRepository) ProposalStats(ctx context.Context) ([]dto.StatusCount, error) {
	return r.statusCounts(ctx, "proposal stats", `SELECT status, COUNT(*) AS count FROM policy_proposals GROUP BY status ORDER BY status`)
}

// ApprovalStats counts approval requests per status.
func (r *DashboardRepository) ApprovalStats(ctx context.Context) ([]dto.StatusCount, error) {
	return r.statusCounts(ctx, "approval stats", `SELECT status, COUNT(*) AS count FROM approval_requests GROUP BY status ORDER BY status`)
}

// BlockedPerDay counts blocked prints per policy day in the given timezone.
func (r *DashboardRepository) BlockedPerDay(ctx context.Context, since time.Time, timezone string) ([]dto.DayCount, error) {
	const query = `SELECT to_char(created_at AT TIME ZONE $2, 'YYYY-MM-DD') AS day, COUNT(*) AS count
	FROM print_requests WHERE block_reason IS NOT NULL AND created_at >= $1
	GROUP BY day ORDER BY day`
	var rows []dto.DayCount
	if err := r.db.SelectContext(ctx, &rows, query, since, timezone); err != nil {
		return nil, fmt.Errorf("blocked per day: %w", err)
	}
	return rows, nil
}

func (r *DashboardRepository) count(ctx context.Context, label, query string, args ...interface{}) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("%s: %w", label, err)
	}
	return total, nil
}

func (r *DashboardRepository) statusCounts(ctx context.Context, label, query string) ([]dto.StatusCount, error) {
	var rows []dto.StatusCount
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return rows, nil
}
