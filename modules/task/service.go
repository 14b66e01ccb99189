package task

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/example/taskboard-api/domain/task"
	"github.com/example/taskboard-api/modules/cache"
)

// Cache keys. Every mutation invalidates InvalidatePattern.
const (
	KeyAll            = "tasks:all"
	KeyStats          = "tasks:stats"
	InvalidatePattern = "tasks:*"
)

// ItemKey returns the cache key for a single task.
func ItemKey(id int64) string {
	return "tasks:" + strconv.FormatInt(id, 10)
}

// Database health states.
const (
	DatabaseHealthy   = "healthy"
	DatabaseUnhealthy = "unhealthy"
)

// TTLConfig holds the cache TTL per kind of entry.
type TTLConfig struct {
	List  time.Duration
	Item  time.Duration
	Stats time.Duration
}

// DefaultTTLConfig returns 60s for the collection and single tasks, 30s for statistics.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		List:  60 * time.Second,
		Item:  60 * time.Second,
		Stats: 30 * time.Second,
	}
}

// DatabaseHealth is the outcome of a store liveness check.
type DatabaseHealth struct {
	Status    string     `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Service enforces the task workflow rules and applies cache-aside reads
// and invalidate-after-write on top of the repository.
type Service struct {
	repo  task.Repository
	cache *cache.Cache
	ttl   TTLConfig
}

// NewService creates a new task service.
func NewService(repo task.Repository, c *cache.Cache, ttl TTLConfig) *Service {
	return &Service{
		repo:  repo,
		cache: c,
		ttl:   ttl,
	}
}

// ListAll returns every task in display order. The bool reports a cache hit.
func (s *Service) ListAll(ctx context.Context) ([]task.Task, bool, error) {
	return cache.GetOrLoad(ctx, s.cache, KeyAll, s.ttl.List, s.repo.List)
}

// GetByID returns a single task or task.ErrNotFound. The bool reports a cache hit.
func (s *Service) GetByID(ctx context.Context, id int64) (*task.Task, bool, error) {
	return cache.GetOrLoad(ctx, s.cache, ItemKey(id), s.ttl.Item, func(ctx context.Context) (*task.Task, error) {
		return s.repo.GetByID(ctx, id)
	})
}

// Create validates and persists a new task, then invalidates cached task data.
func (s *Service) Create(ctx context.Context, req *task.CreateTaskRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t := req.NewTask()
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	log.Printf("[task] Created task id=%d", t.ID)
	return t, nil
}

// Update validates the supplied fields, rejects status changes out of DONE,
// merges the patch and invalidates cached task data.
func (s *Service) Update(ctx context.Context, id int64, req *task.UpdateTaskRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch := req.Patch()
	if patch.Status != nil {
		if err := task.CheckTransition(current.Status, *patch.Status); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	log.Printf("[task] Updated task id=%d status=%s", updated.ID, updated.Status)
	return updated, nil
}

// Delete removes a task unless it is in progress, then invalidates cached task data.
// It reports whether a row was removed.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if err := task.CheckDeletable(current.Status); err != nil {
		return false, err
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}

	s.invalidate(ctx)
	log.Printf("[task] Deleted task id=%d", id)
	return deleted, nil
}

// Statistics returns per-status counts and the completion rate. The bool reports a cache hit.
func (s *Service) Statistics(ctx context.Context) (*task.Statistics, bool, error) {
	return cache.GetOrLoad(ctx, s.cache, KeyStats, s.ttl.Stats, func(ctx context.Context) (*task.Statistics, error) {
		counts, err := s.repo.CountByStatus(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to compute statistics: %w", err)
		}
		stats := task.NewStatistics(counts)
		return &stats, nil
	})
}

// CacheStats returns the cache statistics.
func (s *Service) CacheStats() cache.StatsSnapshot {
	return s.cache.Stats()
}

// ResetCacheStats resets the cache statistics.
func (s *Service) ResetCacheStats() {
	s.cache.ResetStats()
}

// DatabaseHealth pings the store.
func (s *Service) DatabaseHealth(ctx context.Context) DatabaseHealth {
	now, err := s.repo.Ping(ctx)
	if err != nil {
		return DatabaseHealth{Status: DatabaseUnhealthy, Error: err.Error()}
	}
	return DatabaseHealth{Status: DatabaseHealthy, Timestamp: &now}
}

// CacheHealth reports the cache connection and statistics.
func (s *Service) CacheHealth(ctx context.Context) cache.HealthReport {
	return s.cache.Health(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	s.cache.Invalidate(ctx, InvalidatePattern)
}
