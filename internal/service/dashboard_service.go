package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/dto"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

type dashboardStore interface {
	CountPrintsSince(ctx context.Context, since time.Time) (int, error)
	CountBlockedSince(ctx context.Context, since time.Time) (int, error)
	CountPendingProposals(ctx context.Context) (int, error)
	CountPendingApprovals(ctx context.Context) (int, error)
	CountActiveUsers(ctx context.Context) (int, error)
	TopUsers(ctx context.Context, since time.Time, limit int) ([]dto.UserPrintCount, error)
	ProposalStats(ctx context.Context) ([]dto.StatusCount, error)
	ApprovalStats(ctx context.Context) ([]dto.StatusCount, error)
	BlockedPerDay(ctx context.Context, since time.Time, timezone string) ([]dto.DayCount, error)
}

type activityLister interface {
	ListRecent(ctx context.Context, limit int) ([]models.AuditLog, error)
}

type pendingProposalLister interface {
	List(ctx context.Context, filter models.ProposalFilter) ([]models.PolicyProposal, error)
}

type pendingApprovalLister interface {
	List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	Location         *time.Location
	RecentActivity   int
	TopUsers         int
	ReportWindowDays int
	BlockedTrendDays int
}

// DashboardService composes the admin and senior approver dashboards.
type DashboardService struct {
	store     dashboardStore
	activity  activityLister
	proposals pendingProposalLister
	approvals pendingApprovalLister
	cache     *CacheService
	logger    *zap.Logger
	now       func() time.Time
	cfg       DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Store     dashboardStore
	Activity  activityLister
	Proposals pendingProposalLister
	Approvals pendingApprovalLister
	Cache     *CacheService
	Logger    *zap.Logger
	Config    DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RecentActivity <= 0 {
		cfg.RecentActivity = 10
	}
	if cfg.TopUsers <= 0 {
		cfg.TopUsers = 10
	}
	if cfg.ReportWindowDays <= 0 {
		cfg.ReportWindowDays = 30
	}
	if cfg.BlockedTrendDays <= 0 {
		cfg.BlockedTrendDays = 7
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		store:     params.Store,
		activity:  params.Activity,
		proposals: params.Proposals,
		approvals: params.Approvals,
		cache:     params.Cache,
		logger:    logger,
		now:       time.Now,
		cfg:       cfg,
	}
}

// AdminOverview returns the admin counters with recent activity and reports cache use.
func (s *DashboardService) AdminOverview(ctx context.Context) (*dto.AdminOverviewResponse, bool, error) {
	key := DashboardKey("admin", s.today())
	var cached dto.AdminOverviewResponse
	if hit := s.tryCache(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	var (
		counters dto.OverviewCounters
		recent   []models.AuditLog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counters, err = s.counters(gctx)
		return err
	})
	g.Go(func() error {
		if s.activity == nil {
			return nil
		}
		var err error
		recent, err = s.activity.ListRecent(gctx, s.cfg.RecentActivity)
		if err != nil {
			return appErrors.Internal(err, "failed to load recent activity")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	if recent == nil {
		recent = []models.AuditLog{}
	}

	resp := &dto.AdminOverviewResponse{OverviewCounters: counters, RecentActivity: recent, GeneratedAt: s.now().UTC()}
	s.cache.Store(ctx, key, resp)
	return resp, false, nil
}

// DeanOverview returns the counters without activity.
func (s *DashboardService) DeanOverview(ctx context.Context) (*dto.DeanOverviewResponse, bool, error) {
	key := DashboardKey("dean", s.today())
	var cached dto.DeanOverviewResponse
	if hit := s.tryCache(ctx, key, &cached); hit {
		return &cached, true, nil
	}
	counters, err := s.counters(ctx)
	if err != nil {
		return nil, false, err
	}
	resp := &dto.DeanOverviewResponse{OverviewCounters: counters, GeneratedAt: s.now().UTC()}
	s.cache.Store(ctx, key, resp)
	return resp, false, nil
}

// Report builds the usage report: top users over the report window, proposal
// and approval outcomes, and blocked attempts per policy day.
func (s *DashboardService) Report(ctx context.Context) (*dto.DeanReportResponse, bool, error) {
	today := s.today()
	key := DashboardKey("report", today)
	var cached dto.DeanReportResponse
	if hit := s.tryCache(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	periodStart := today.AddDate(0, 0, -s.cfg.ReportWindowDays)
	trendStart := today.AddDate(0, 0, -(s.cfg.BlockedTrendDays - 1))
	resp := &dto.DeanReportResponse{PeriodStart: periodStart.UTC(), PeriodEnd: s.now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.store.TopUsers(gctx, periodStart, s.cfg.TopUsers)
		if err != nil {
			return appErrors.Internal(err, "failed to rank users")
		}
		resp.TopUsers = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.store.ProposalStats(gctx)
		if err != nil {
			return appErrors.Internal(err, "failed to count proposals")
		}
		resp.ProposalStats = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.store.ApprovalStats(gctx)
		if err != nil {
			return appErrors.Internal(err, "failed to count approvals")
		}
		resp.ApprovalStats = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.store.BlockedPerDay(gctx, trendStart, s.cfg.Location.String())
		if err != nil {
			return appErrors.Internal(err, "failed to count blocked attempts")
		}
		resp.BlockedPerDay = fillDays(rows, trendStart, s.cfg.BlockedTrendDays)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	resp.GeneratedAt = s.now().UTC()
	s.cache.Store(ctx, key, resp)
	return resp, false, nil
}

// Notifications lists work waiting for a senior approver.
func (s *DashboardService) Notifications(ctx context.Context) (*dto.NotificationsResponse, error) {
	var (
		proposals []models.PolicyProposal
		approvals []models.ApprovalRequest
		blocked   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.proposals == nil {
			return nil
		}
		var err error
		proposals, err = s.proposals.List(gctx, models.ProposalFilter{Status: models.ProposalStatusPending, Limit: 50})
		if err != nil {
			return appErrors.Internal(err, "failed to list pending proposals")
		}
		return nil
	})
	g.Go(func() error {
		if s.approvals == nil {
			return nil
		}
		var err error
		approvals, err = s.approvals.List(gctx, models.ApprovalFilter{Statuses: []models.ApprovalStatus{models.ApprovalStatusPending}, Limit: 50})
		if err != nil {
			return appErrors.Internal(err, "failed to list pending approvals")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		blocked, err = s.store.CountBlockedSince(gctx, s.today())
		if err != nil {
			return appErrors.Internal(err, "failed to count blocked attempts")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]dto.Notification, 0, len(proposals)+len(approvals)+1)
	for _, p := range proposals {
		who := p.ProposedBy
		if p.ProposerName != nil {
			who = *p.ProposerName
		}
		items = append(items, dto.Notification{
			ID:        "proposal:" + p.ID,
			Type:      "policy_proposal",
			Title:     "Policy proposal awaiting decision",
			Message:   fmt.Sprintf("%s proposed a %s change", who, p.Type),
			Priority:  dto.PriorityHigh,
			CreatedAt: p.CreatedAt,
		})
	}
	for _, a := range approvals {
		who := a.RequesterEPF
		if a.RequesterName != nil {
			who = *a.RequesterName
		}
		created := a.CreatedAt
		if a.SubmittedAt != nil {
			created = *a.SubmittedAt
		}
		items = append(items, dto.Notification{
			ID:        "approval:" + a.ID,
			Type:      "approval_request",
			Title:     "Print approval requested",
			Message:   fmt.Sprintf("%s asked to release a print blocked by %s", who, a.BlockReason),
			Priority:  dto.PriorityHigh,
			CreatedAt: created,
		})
	}
	if blocked > 0 {
		items = append(items, dto.Notification{
			ID:        "blocked:" + s.today().Format("2006-01-02"),
			Type:      "blocked_attempts",
			Title:     "Blocked print attempts today",
			Message:   fmt.Sprintf("%d print attempts were blocked today", blocked),
			Priority:  dto.PriorityMedium,
			CreatedAt: s.now().UTC(),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority == dto.PriorityHigh
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return &dto.NotificationsResponse{Items: items, GeneratedAt: s.now().UTC()}, nil
}

func (s *DashboardService) counters(ctx context.Context) (dto.OverviewCounters, error) {
	var out dto.OverviewCounters
	since := s.today()
	g, gctx := errgroup.WithContext(ctx)
	fetch := func(dst *int, label string, fn func(context.Context) (int, error)) {
		g.Go(func() error {
			v, err := fn(gctx)
			if err != nil {
				return appErrors.Internal(err, "failed to count "+label)
			}
			*dst = v
			return nil
		})
	}
	fetch(&out.TodayPrintJobs, "print jobs", func(ctx context.Context) (int, error) { return s.store.CountPrintsSince(ctx, since) })
	fetch(&out.BlockedAttempts, "blocked attempts", func(ctx context.Context) (int, error) { return s.store.CountBlockedSince(ctx, since) })
	fetch(&out.PendingProposals, "pending proposals", s.store.CountPendingProposals)
	fetch(&out.PendingApprovals, "pending approvals", s.store.CountPendingApprovals)
	fetch(&out.ActiveUsers, "active users", s.store.CountActiveUsers)
	if err := g.Wait(); err != nil {
		return dto.OverviewCounters{}, err
	}
	return out, nil
}

// today is the start of the current policy day.
func (s *DashboardService) today() time.Time {
	local := s.now().In(s.cfg.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.cfg.Location)
}

func (s *DashboardService) tryCache(ctx context.Context, key string, dest interface{}) bool {
	if !s.cache.Load(ctx, key, dest) {
		return false
	}
	s.logger.Debug("dashboard served from cache", zap.String("key", key))
	return true
}

// fillDays returns one entry per day starting at start, zero-filling gaps.
func fillDays(rows []dto.DayCount, start time.Time, days int) []dto.DayCount {
	byDay := make(map[string]int, len(rows))
	for _, row := range rows {
		byDay[row.Day] = row.Count
	}
	out := make([]dto.DayCount, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		out = append(out, dto.DayCount{Day: day, Count: byDay[day]})
	}
	return out
}
