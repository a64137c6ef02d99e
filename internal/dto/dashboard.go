package dto

import (
	"time"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
)

// OverviewCounters are the headline numbers shared by admin and dean dashboards.
type OverviewCounters struct {
	TodayPrintJobs   int `json:"todayPrintJobs"`
	PendingProposals int `json:"pendingProposals"`
	PendingApprovals int `json:"pendingApprovals"`
	BlockedAttempts  int `json:"blockedAttempts"`
	ActiveUsers      int `json:"activeUsers"`
}

// AdminOverviewResponse is the admin landing payload.
type AdminOverviewResponse struct {
	OverviewCounters
	RecentActivity []models.AuditLog `json:"recentActivity"`
	GeneratedAt    time.Time         `json:"generatedAt"`
}

// DeanOverviewResponse is the senior approver landing payload.
type DeanOverviewResponse struct {
	OverviewCounters
	GeneratedAt time.Time `json:"generatedAt"`
}

// UserPrintCount ranks users by executed prints.
type UserPrintCount struct {
	EPF        string `db:"epf" json:"epf"`
	Name       string `db:"name" json:"name"`
	Department string `db:"department" json:"department"`
	Prints     int    `db:"prints" json:"prints"`
	Pages      int    `db:"pages" json:"pages"`
}

// StatusCount groups a count by status.
type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int    `db:"count" json:"count"`
}

// DayCount groups a count by policy day.
type DayCount struct {
	Day   string `db:"day" json:"day"`
	Count int    `db:"count" json:"count"`
}

// DeanReportResponse is the usage report for senior approvers.
type DeanReportResponse struct {
	TopUsers      []UserPrintCount `json:"topUsers"`
	ProposalStats []StatusCount    `json:"proposalStats"`
	ApprovalStats []StatusCount    `json:"approvalStats"`
	BlockedPerDay []DayCount       `json:"blockedPerDay"`
	PeriodStart   time.Time        `json:"periodStart"`
	PeriodEnd     time.Time        `json:"periodEnd"`
	GeneratedAt   time.Time        `json:"generatedAt"`
}

// NotificationPriority ranks dashboard notifications.
type NotificationPriority string

const (
	PriorityHigh   NotificationPriority = "high"
	PriorityMedium NotificationPriority = "medium"
)

// Notification is one actionable item for a senior approver.
type Notification struct {
	ID        string               `json:"id"`
	Type      string               `json:"type"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Priority  NotificationPriority `json:"priority"`
	CreatedAt time.Time            `json:"createdAt"`
}

// NotificationsResponse lists notifications, high priority first.
type NotificationsResponse struct {
	Items       []Notification `json:"items"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// SystemMetrics is the in-process snapshot served next to /metrics.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	BlockedEvaluations       uint64    `json:"blockedEvaluations"`
	ExecutedPrints           uint64    `json:"executedPrints"`
	ClassifierFallbacks      uint64    `json:"classifierFallbacks"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
