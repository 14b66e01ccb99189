package api

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/example/taskboard-api/domain/task"
	taskmod "github.com/example/taskboard-api/modules/task"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HeaderCache reports whether a read was served from the cache.
const HeaderCache = "X-Cache"

// Handlers serves the task HTTP endpoints.
type Handlers struct {
	service    *taskmod.Service
	instanceID string
	now        func() time.Time
}

// NewHandlers creates handlers over the task service.
func NewHandlers(service *taskmod.Service, instanceID string) *Handlers {
	return &Handlers{
		service:    service,
		instanceID: instanceID,
		now:        time.Now,
	}
}

// NewInstanceID returns an identifier of the form app-<hostname tail>-<random>
// that tells load-balanced instances apart.
func NewInstanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return instanceID(hostname, uuid.NewString())
}

func instanceID(hostname, random string) string {
	if len(hostname) > 4 {
		hostname = hostname[len(hostname)-4:]
	}
	if len(random) > 4 {
		random = random[:4]
	}
	return fmt.Sprintf("app-%s-%s", hostname, random)
}

func setCacheHeader(c *fiber.Ctx, fromCache bool) {
	if fromCache {
		c.Set(HeaderCache, "HIT")
		return
	}
	c.Set(HeaderCache, "MISS")
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, msgInvalidID)
	}
	return id, nil
}

// ListTasks handles GET /api/tasks.
func (h *Handlers) ListTasks(c *fiber.Ctx) error {
	tasks, fromCache, err := h.service.ListAll(c.UserContext())
	if err != nil {
		return err
	}

	setCacheHeader(c, fromCache)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    tasks,
		"count":   len(tasks),
	})
}

// GetTask handles GET /api/tasks/:id.
func (h *Handlers) GetTask(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	t, fromCache, err := h.service.GetByID(c.UserContext(), id)
	if err != nil {
		return err
	}

	setCacheHeader(c, fromCache)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    t,
	})
}

// CreateTask handles POST /api/tasks.
func (h *Handlers) CreateTask(c *fiber.Ctx) error {
	var req task.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, msgInvalidBody)
	}

	t, err := h.service.Create(c.UserContext(), &req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    t,
	})
}

// UpdateTask handles PUT /api/tasks/:id.
func (h *Handlers) UpdateTask(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req task.UpdateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, msgInvalidBody)
	}

	t, err := h.service.Update(c.UserContext(), id, &req)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    t,
	})
}

// DeleteTask handles DELETE /api/tasks/:id.
func (h *Handlers) DeleteTask(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	deleted, err := h.service.Delete(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !deleted {
		return task.ErrNotFound
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Task deleted successfully",
	})
}

// GetStatistics handles GET /api/tasks/stats.
func (h *Handlers) GetStatistics(c *fiber.Ctx) error {
	stats, fromCache, err := h.service.Statistics(c.UserContext())
	if err != nil {
		return err
	}

	setCacheHeader(c, fromCache)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

// HealthCheck handles GET /api/health. It always answers 200 and reports
// the store and cache states in the body.
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	ctx := c.UserContext()
	database := h.service.DatabaseHealth(ctx)
	redis := h.service.CacheHealth(ctx)

	return c.JSON(fiber.Map{
		"status":     "ok",
		"instanceId": h.instanceID,
		"timestamp":  h.now().UTC().Format(time.RFC3339Nano),
		"database":   database,
		"redis":      redis,
		"cache": fiber.Map{
			"hits":    redis.Stats.Hits,
			"misses":  redis.Stats.Misses,
			"hitRate": fmt.Sprintf("%d%%", redis.Stats.HitRate),
		},
	})
}

// GetCacheStats handles GET /api/cache/stats.
func (h *Handlers) GetCacheStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.service.CacheStats(),
	})
}

// ResetCacheStats handles POST /api/cache/stats/reset.
func (h *Handlers) ResetCacheStats(c *fiber.Ctx) error {
	h.service.ResetCacheStats()
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Cache statistics reset",
	})
}
