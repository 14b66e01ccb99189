package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-monolith/mono"
	"github.com/redis/go-redis/v9"
)

// Supported cache drivers.
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// ModuleConfig configures the cache module.
type ModuleConfig struct {
	Driver    string
	RedisAddr string
	Cache     Config
}

// Module provides the cache-aside layer as a mono module.
type Module struct {
	cfg     ModuleConfig
	cache   *Cache
	backend Backend
}

var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new cache module.
func NewModule(cfg ModuleConfig) *Module {
	if cfg.Driver == "" {
		cfg.Driver = DriverRedis
	}
	return &Module{cfg: cfg}
}

// NewModuleWithBackend creates a cache module over an existing backend.
func NewModuleWithBackend(backend Backend, cfg Config) *Module {
	return &Module{cfg: ModuleConfig{Cache: cfg}, backend: backend}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "cache"
}

// Start creates the backend and makes the start-up connection attempt.
// An unreachable store leaves the cache in degraded mode; start never fails on it.
func (m *Module) Start(ctx context.Context) error {
	if m.backend == nil {
		backend, err := m.newBackend()
		if err != nil {
			return err
		}
		m.backend = backend
	}

	m.cache = New(m.backend, m.cfg.Cache)
	if err := m.cache.Connect(ctx); err != nil {
		log.Printf("[cache] Redis unavailable at %s, running in degraded mode: %v", m.cfg.RedisAddr, err)
	} else {
		log.Printf("[cache] Connected (driver: %s, prefix: %q, op timeout: %s)",
			m.cfg.Driver, m.cfg.Cache.Prefix, m.cfg.Cache.OpTimeout)
	}

	log.Println("[cache] Module started")
	return nil
}

func (m *Module) newBackend() (Backend, error) {
	switch m.cfg.Driver {
	case DriverMemory:
		return NewMemoryBackend(), nil
	case DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         m.cfg.RedisAddr,
			PoolSize:     50,
			MinIdleConns: 5,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		return NewRedisBackend(client), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", m.cfg.Driver)
	}
}

// Stop closes the cache backend.
func (m *Module) Stop(_ context.Context) error {
	if m.cache != nil {
		if err := m.cache.Close(); err != nil {
			log.Printf("[cache] Error closing cache connection: %v", err)
			return fmt.Errorf("failed to close cache connection: %w", err)
		}
	}
	log.Println("[cache] Module stopped")
	return nil
}

// GetCache returns the cache instance. It is nil until Start.
func (m *Module) GetCache() *Cache {
	return m.cache
}

// Health reports the cache connection. A disconnected cache is reported
// unhealthy even though the application keeps serving from the store.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.cache == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "cache not initialized",
		}
	}

	report := m.cache.Health(ctx)
	return mono.HealthStatus{
		Healthy: report.Status == StatusHealthy,
		Message: report.Status,
		Details: map[string]any{
			"driver": m.cfg.Driver,
			"stats":  report.Stats,
		},
	}
}
