package main

import (
	"context"
	"log"
	"os"

	"github.com/example/taskboard-api/config"
	"github.com/example/taskboard-api/domain/task"
	apimod "github.com/example/taskboard-api/modules/api"
	cachemod "github.com/example/taskboard-api/modules/cache"
	taskmod "github.com/example/taskboard-api/modules/task"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create modules
	cacheModule := cachemod.NewModule(cachemod.ModuleConfig{
		Driver:    cfg.CacheDriver,
		RedisAddr: cfg.RedisAddress(),
		Cache: cachemod.Config{
			Prefix:        cfg.CachePrefix,
			OpTimeout:     cfg.CacheOpTimeout,
			ProbeInterval: cfg.CacheProbeInterval,
		},
	})

	taskModule := taskmod.NewModule(taskmod.StoreConfig{
		Driver:      cfg.DBDriver,
		DBPath:      cfg.DBPath,
		DatabaseURL: cfg.PostgresURL(),
		Pool: task.PoolConfig{
			MaxConns:       int32(cfg.DBMaxConns),
			AcquireTimeout: cfg.DBAcquireTimeout,
			IdleTimeout:    cfg.DBIdleTimeout,
		},
	}, taskmod.TTLConfig{
		List:  cfg.CacheTTL,
		Item:  cfg.CacheTTL,
		Stats: cfg.CacheStatsTTL,
	})

	apiModule := apimod.NewModule(apimod.Config{
		Addr:        cfg.ListenAddr(),
		Development: cfg.Development(),
	})

	// Dependencies are resolved in Start, so registration order is start order.
	taskModule.SetCacheModule(cacheModule)
	apiModule.SetTaskModule(taskModule)

	printStartupInfo(cfg, apiModule.InstanceID())

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create mono application: %v", err)
	}

	app.Register(cacheModule)
	app.Register(taskModule)
	app.Register(apiModule)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start app: %v", err)
	}

	log.Println("=== Application Started ===")
	log.Printf("Health: http://localhost:%d/api/health", cfg.HTTPPort)
	log.Println("Press Ctrl+C to shutdown")

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg *config.Config, instanceID string) {
	log.Println("=== TaskBoard API ===")
	log.Printf("Instance: %s", instanceID)
	log.Printf("Environment: %s", cfg.AppEnv)
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	if cfg.DBDriver == taskmod.DriverPostgres {
		log.Printf("Database: postgres (max conns: %d)", cfg.DBMaxConns)
	} else {
		log.Printf("Database: sqlite at %s", cfg.DBPath)
	}
	if cfg.CacheDriver == cachemod.DriverRedis {
		log.Printf("Cache: redis at %s", cfg.RedisAddress())
	} else {
		log.Printf("Cache: %s", cfg.CacheDriver)
	}
	log.Printf("Cache Prefix: %q", cfg.CachePrefix)
	log.Printf("Cache TTL: %s (stats: %s)", cfg.CacheTTL, cfg.CacheStatsTTL)
	log.Println("Endpoints:")
	log.Println("  GET    /api/health             - Health check with instance id")
	log.Println("  GET    /api/tasks              - List tasks (cached)")
	log.Println("  GET    /api/tasks/stats        - Task statistics (cached)")
	log.Println("  GET    /api/tasks/:id          - Get task (cached)")
	log.Println("  POST   /api/tasks              - Create task")
	log.Println("  PUT    /api/tasks/:id          - Update task")
	log.Println("  DELETE /api/tasks/:id          - Delete task")
	log.Println("  GET    /api/cache/stats        - Cache statistics")
	log.Println("  POST   /api/cache/stats/reset  - Reset cache statistics")
}
