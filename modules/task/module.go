package task

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/taskboard-api/domain/task"
	"github.com/example/taskboard-api/modules/cache"
	"github.com/go-monolith/mono"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StoreConfig selects and sizes the persistent store.
type StoreConfig struct {
	Driver      string
	DBPath      string
	DatabaseURL string
	Pool        task.PoolConfig
}

// Module provides task services as a mono module.
type Module struct {
	store       StoreConfig
	ttl         TTLConfig
	repo        task.Repository
	service     *Service
	cacheModule *cache.Module
}

var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new task module.
func NewModule(store StoreConfig, ttl TTLConfig) *Module {
	if store.Driver == "" {
		store.Driver = DriverSQLite
	}
	return &Module{
		store: store,
		ttl:   ttl,
	}
}

// NewModuleWithRepository creates a task module over an existing repository.
func NewModuleWithRepository(repo task.Repository, ttl TTLConfig) *Module {
	return &Module{repo: repo, ttl: ttl}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "task"
}

// SetCacheModule sets the cache module dependency. The cache is resolved at Start.
func (m *Module) SetCacheModule(cm *cache.Module) {
	m.cacheModule = cm
}

// Start opens the store and creates the service.
func (m *Module) Start(ctx context.Context) error {
	if m.cacheModule == nil {
		return fmt.Errorf("cache module not set")
	}
	c := m.cacheModule.GetCache()
	if c == nil {
		return fmt.Errorf("cache not available: cache module must start first")
	}

	if m.repo == nil {
		repo, err := m.openStore(ctx)
		if err != nil {
			return err
		}
		m.repo = repo
	}

	m.service = NewService(m.repo, c, m.ttl)
	log.Println("[task] Module started")
	return nil
}

func (m *Module) openStore(ctx context.Context) (task.Repository, error) {
	switch m.store.Driver {
	case DriverSQLite:
		return m.openSQLite()
	case DriverPostgres:
		pool, err := task.NewPostgresPool(ctx, m.store.DatabaseURL, m.store.Pool)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		repo := task.NewPostgresRepository(pool, m.store.Pool.AcquireTimeout)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to prepare database: %w", err)
		}
		log.Printf("[task] Connected to PostgreSQL (max conns: %d)", m.store.Pool.MaxConns)
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", m.store.Driver)
	}
}

func (m *Module) openSQLite() (task.Repository, error) {
	db, err := gorm.Open(sqlite.Open(m.store.DBPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if m.store.Pool.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(int(m.store.Pool.MaxConns))
	}
	if m.store.Pool.IdleTimeout > 0 {
		sqlDB.SetConnMaxIdleTime(m.store.Pool.IdleTimeout)
	}

	repo := task.NewGormRepository(db, m.store.Pool.AcquireTimeout)
	if err := repo.Migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("[task] Database initialized at %s", m.store.DBPath)
	return repo, nil
}

// Stop closes the store.
func (m *Module) Stop(_ context.Context) error {
	if m.repo != nil {
		if err := m.repo.Close(); err != nil {
			log.Printf("[task] Error closing database: %v", err)
		}
	}
	log.Println("[task] Module stopped")
	return nil
}

// GetService returns the task service. It is nil until Start.
func (m *Module) GetService() *Service {
	return m.service
}

// Health reports whether the store answers a ping.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "not started",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	db := m.service.DatabaseHealth(ctx)
	if db.Status != DatabaseHealthy {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %s", db.Error),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": m.store.Driver,
		},
	}
}
