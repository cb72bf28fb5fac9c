package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/measureme/internal/models"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

const rosterKeyPattern = "roster:*"

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService caches roster snapshots. Cache failures are logged and never
// fail the request that triggered them.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// RosterKey is the cache key for one search term.
func RosterKey(search string) string {
	return "roster:" + strings.ToLower(strings.TrimSpace(search))
}

// GetRoster returns a cached roster and whether it was a hit.
func (s *CacheService) GetRoster(ctx context.Context, search string) ([]models.Student, bool) {
	if !s.Enabled() {
		return nil, false
	}
	var students []models.Student
	start := time.Now()
	err := s.repo.Get(ctx, RosterKey(search), &students)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("key", RosterKey(search)), zap.Error(err))
		}
		return nil, false
	}
	return students, true
}

// SetRoster stores a roster snapshot.
func (s *CacheService) SetRoster(ctx context.Context, search string, students []models.Student) {
	if !s.Enabled() {
		return
	}
	if students == nil {
		students = []models.Student{}
	}
	start := time.Now()
	err := s.repo.Set(ctx, RosterKey(search), students, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", RosterKey(search)), zap.Error(err))
	}
}

// InvalidateRoster drops every cached roster. Called after each mutation.
func (s *CacheService) InvalidateRoster(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.DeleteByPattern(ctx, rosterKeyPattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", rosterKeyPattern), zap.Error(err))
	}
}
