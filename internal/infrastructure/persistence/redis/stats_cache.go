package redis

import (
	"context"
	"errors"

	"github.com/dojo-hub/progression-engine/internal/application/query"
	"github.com/dojo-hub/progression-engine/pkg/circuitbreaker"
	"github.com/dojo-hub/progression-engine/pkg/logger"
)

// StatsCache implements query.StatsCache. Calls go through a circuit breaker
// so a failing Redis stops costing a round trip per request.
type StatsCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
}

var _ query.StatsCache = (*StatsCache)(nil)

// NewStatsCache creates a new StatsCache.
func NewStatsCache(cache *Cache, log *logger.Logger) *StatsCache {
	if log == nil {
		log = logger.Nop()
	}
	return &StatsCache{
		cache: cache,
		breaker: circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("stats cache breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
	}
}

// Get returns nil, nil on a miss or while the breaker is open.
func (s *StatsCache) Get(ctx context.Context, studentID string) (*query.StudentStats, error) {
	var stats query.StudentStats
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		err := s.cache.Get(ctx, StudentStatsKey(studentID), &stats)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		return err
	})
	switch {
	case circuitbreaker.IsUnavailable(err):
		return nil, nil
	case err != nil:
		return nil, err
	case stats.StudentID == "":
		return nil, nil
	}
	return &stats, nil
}

// Set stores a profile for TTLStudentStats.
func (s *StatsCache) Set(ctx context.Context, stats *query.StudentStats) error {
	if stats == nil {
		return nil
	}
	return s.breaker.ExecuteWithFallback(ctx, func(ctx context.Context) error {
		return s.cache.Set(ctx, StudentStatsKey(stats.StudentID), stats, TTLStudentStats)
	}, func(error) error { return nil })
}

// Invalidate drops the cached profile of a student.
func (s *StatsCache) Invalidate(ctx context.Context, studentID string) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.cache.Delete(ctx, StudentStatsKey(studentID))
	})
}

// InvalidateAll clears every cached profile.
func (s *StatsCache) InvalidateAll(ctx context.Context) error {
	return s.cache.DeleteByPattern(ctx, PrefixStudentStats+"*")
}
