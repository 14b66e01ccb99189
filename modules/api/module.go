package api

import (
	"context"
	"fmt"
	"log"
	"time"

	taskmod "github.com/example/taskboard-api/modules/task"
	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// Config configures the API module.
type Config struct {
	// Addr is the listen address, e.g. ":3000".
	Addr        string
	Development bool
	InstanceID  string
}

// Module provides the HTTP API as a mono module.
type Module struct {
	cfg        Config
	app        *fiber.App
	taskModule *taskmod.Module
	startTime  time.Time
}

var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new API module.
func NewModule(cfg Config) *Module {
	if cfg.InstanceID == "" {
		cfg.InstanceID = NewInstanceID()
	}
	return &Module{cfg: cfg}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// SetTaskModule sets the task module dependency.
func (m *Module) SetTaskModule(tm *taskmod.Module) {
	m.taskModule = tm
}

// InstanceID returns the identifier reported by the health endpoint.
func (m *Module) InstanceID() string {
	return m.cfg.InstanceID
}

// NewApp builds the Fiber app with middleware and routes.
func NewApp(h *Handlers, development bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "TaskBoard API",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(development),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path} ${locals:requestid}\n",
	}))
	app.Use(cors.New())

	setupRoutes(app, h)
	return app
}

func setupRoutes(app *fiber.App, h *Handlers) {
	api := app.Group("/api")
	api.Get("/health", h.HealthCheck)

	// /stats is registered before /:id so it is not parsed as an id.
	tasks := api.Group("/tasks")
	tasks.Get("/", h.ListTasks)
	tasks.Get("/stats", h.GetStatistics)
	tasks.Get("/:id", h.GetTask)
	tasks.Post("/", h.CreateTask)
	tasks.Put("/:id", h.UpdateTask)
	tasks.Delete("/:id", h.DeleteTask)

	cache := api.Group("/cache")
	cache.Get("/stats", h.GetCacheStats)
	cache.Post("/stats/reset", h.ResetCacheStats)
}

// Start builds the routes and starts the HTTP server.
func (m *Module) Start(_ context.Context) error {
	if m.taskModule == nil {
		return fmt.Errorf("task module not set")
	}

	service := m.taskModule.GetService()
	if service == nil {
		return fmt.Errorf("task service not available")
	}

	m.app = NewApp(NewHandlers(service, m.cfg.InstanceID), m.cfg.Development)
	m.startTime = time.Now()

	go func() {
		log.Printf("[api] Starting HTTP server on %s (instance %s)", m.cfg.Addr, m.cfg.InstanceID)
		if err := m.app.Listen(m.cfg.Addr); err != nil {
			log.Printf("[api] HTTP server error: %v", err)
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully.
func (m *Module) Stop(ctx context.Context) error {
	if m.app != nil {
		log.Println("[api] Shutting down HTTP server...")
		return m.app.ShutdownWithContext(ctx)
	}
	return nil
}

// Health returns the health status of the API module.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.startTime.IsZero() {
		return mono.HealthStatus{
			Healthy: false,
			Message: "not started",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"instanceId": m.cfg.InstanceID,
			"uptime":     time.Since(m.startTime).Round(time.Second).String(),
		},
	}
}
