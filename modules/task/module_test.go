package task

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/taskboard-api/domain/task"
	"github.com/example/taskboard-api/modules/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startCacheModule(t *testing.T) *cache.Module {
	t.Helper()
	cm := cache.NewModule(cache.ModuleConfig{Driver: cache.DriverMemory, Cache: cache.DefaultConfig()})
	require.NoError(t, cm.Start(context.Background()))
	return cm
}

func TestModule_StartSQLite(t *testing.T) {
	ctx := context.Background()
	m := NewModule(StoreConfig{
		DBPath: filepath.Join(t.TempDir(), "tasks.db"),
		Pool:   task.PoolConfig{MaxConns: 10},
	}, DefaultTTLConfig())
	m.SetCacheModule(startCacheModule(t))

	assert.Equal(t, "task", m.Name())
	assert.False(t, m.Health(ctx).Healthy)

	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() { m.Stop(ctx) })

	require.NotNil(t, m.GetService())
	created, err := m.GetService().Create(ctx, &task.CreateTaskRequest{Title: "persisted"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	health := m.Health(ctx)
	assert.True(t, health.Healthy, health.Message)
	assert.Equal(t, DriverSQLite, health.Details["driver"])
}

func TestModule_StartRequiresCache(t *testing.T) {
	ctx := context.Background()

	m := NewModuleWithRepository(openTestRepository(t), DefaultTTLConfig())
	assert.Error(t, m.Start(ctx), "cache module not set")

	m.SetCacheModule(cache.NewModule(cache.ModuleConfig{Driver: cache.DriverMemory}))
	assert.Error(t, m.Start(ctx), "cache module not started")

	m.SetCacheModule(startCacheModule(t))
	assert.NoError(t, m.Start(ctx))
}

func TestModule_UnknownDriver(t *testing.T) {
	m := NewModule(StoreConfig{Driver: "mysql"}, DefaultTTLConfig())
	m.SetCacheModule(startCacheModule(t))
	assert.Error(t, m.Start(context.Background()))
}
