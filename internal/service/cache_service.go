package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/s22001503-hash/ouslpms-monorepo/pkg/cache"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

var dashboardCachePattern = cache.Key("dashboard", "*")

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// dashboardInvalidator drops cached dashboard payloads after a write.
type dashboardInvalidator interface {
	InvalidateDashboards(ctx context.Context)
}

// CacheService holds dashboard payloads. Cache failures are logged here and
// never surface to callers: a broken cache means recomputing, not failing.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs a cache service. A nil repo disables caching.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// DashboardKey names the cached payload of one dashboard view for a policy day.
func DashboardKey(view string, day time.Time) string {
	return cache.Key("dashboard", view, day.Format("2006-01-02"))
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Load decodes the cached payload into dest and reports a hit.
func (s *CacheService) Load(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

// Store caches value under key for the configured TTL.
func (s *CacheService) Store(ctx context.Context, key string, value interface{}) {
	if !s.Enabled() {
		return
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateDashboards drops every cached dashboard view.
func (s *CacheService) InvalidateDashboards(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.DeleteByPattern(ctx, dashboardCachePattern); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.String("pattern", dashboardCachePattern), zap.Error(err))
	}
}
