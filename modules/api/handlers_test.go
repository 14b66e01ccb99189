package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/taskboard-api/domain/task"
	"github.com/example/taskboard-api/modules/cache"
	taskmod "github.com/example/taskboard-api/modules/task"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testInstanceID = "app-test-0001"

func setupTestApp(t *testing.T, development bool) *fiber.App {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	repo := task.NewGormRepository(db, time.Second)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { repo.Close() })

	c := cache.New(cache.NewMemoryBackend(), cache.DefaultConfig())
	require.NoError(t, c.Connect(context.Background()))

	service := taskmod.NewService(repo, c, taskmod.DefaultTTLConfig())
	return NewApp(NewHandlers(service, testInstanceID), development)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Count   *int            `json:"count"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Detail  string          `json:"detail"`
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), "body: %s", raw)
	return resp, env
}

func createTask(t *testing.T, app *fiber.App, body string) task.Task {
	t.Helper()

	resp, env := doRequest(t, app, http.MethodPost, "/api/tasks", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Error)

	var created task.Task
	require.NoError(t, json.Unmarshal(env.Data, &created))
	return created
}

func TestCreateTask(t *testing.T) {
	app := setupTestApp(t, false)

	created := createTask(t, app, `{"title":"Write release notes"}`)

	assert.NotZero(t, created.ID)
	assert.Equal(t, "Write release notes", created.Title)
	assert.Equal(t, task.StatusTodo, created.Status)
	assert.Equal(t, task.PriorityMedium, created.Priority)
}

func TestCreateTask_Validation(t *testing.T) {
	app := setupTestApp(t, false)

	testCases := []struct {
		name string
		body string
		want string
	}{
		{name: "empty title", body: `{"title":""}`, want: "Title is required"},
		{name: "title too long", body: fmt.Sprintf(`{"title":%q}`, strings.Repeat("x", 201)), want: "Title must be less than 200 characters"},
		{name: "bad priority", body: `{"title":"ok","priority":"URGENT"}`, want: "Priority must be one of: LOW, MEDIUM, HIGH"},
		{name: "malformed body", body: `{"title":`, want: msgInvalidBody},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, env := doRequest(t, app, http.MethodPost, "/api/tasks", tc.body)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.False(t, env.Success)
			assert.Equal(t, tc.want, env.Error)
		})
	}
}

func TestListTasks_CacheHeader(t *testing.T) {
	app := setupTestApp(t, false)
	createTask(t, app, `{"title":"low","priority":"LOW"}`)
	createTask(t, app, `{"title":"high","priority":"HIGH"}`)

	resp, env := doRequest(t, app, http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get(HeaderCache))
	require.NotNil(t, env.Count)
	assert.Equal(t, 2, *env.Count)

	var tasks []task.Task
	require.NoError(t, json.Unmarshal(env.Data, &tasks))
	require.Len(t, tasks, 2)
	assert.Equal(t, "high", tasks[0].Title)
	assert.Equal(t, "low", tasks[1].Title)

	resp, _ = doRequest(t, app, http.MethodGet, "/api/tasks", "")
	assert.Equal(t, "HIT", resp.Header.Get(HeaderCache))
}

func TestGetTask(t *testing.T) {
	app := setupTestApp(t, false)
	created := createTask(t, app, `{"title":"fetch me","description":"details"}`)

	resp, env := doRequest(t, app, http.MethodGet, fmt.Sprintf("/api/tasks/%d", created.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get(HeaderCache))

	var got task.Task
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "details", got.Description)
}

func TestGetTask_NotFound(t *testing.T) {
	app := setupTestApp(t, false)

	for i := 0; i < 2; i++ {
		resp, env := doRequest(t, app, http.MethodGet, "/api/tasks/9999", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.False(t, env.Success)
		assert.Equal(t, "Task not found", env.Error)
	}
}

func TestGetTask_InvalidID(t *testing.T) {
	app := setupTestApp(t, false)

	for _, path := range []string{"/api/tasks/abc", "/api/tasks/0", "/api/tasks/-3"} {
		resp, env := doRequest(t, app, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.Equal(t, msgInvalidID, env.Error, path)
	}
}

func TestUpdateTask_DoneIsTerminal(t *testing.T) {
	app := setupTestApp(t, false)
	created := createTask(t, app, `{"title":"finished","status":"DONE"}`)
	path := fmt.Sprintf("/api/tasks/%d", created.ID)

	resp, env := doRequest(t, app, http.MethodPut, path, `{"status":"TODO"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Cannot change status of completed task", env.Error)

	resp, env = doRequest(t, app, http.MethodPut, path, `{"title":"finished and renamed"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)

	var updated task.Task
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "finished and renamed", updated.Title)
	assert.Equal(t, task.StatusDone, updated.Status)
}

func TestDeleteTask(t *testing.T) {
	app := setupTestApp(t, false)
	active := createTask(t, app, `{"title":"active","status":"IN_PROGRESS"}`)
	path := fmt.Sprintf("/api/tasks/%d", active.ID)

	resp, env := doRequest(t, app, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Cannot delete task that is in progress", env.Error)

	resp, _ = doRequest(t, app, http.MethodPut, path, `{"status":"DONE"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = doRequest(t, app, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, "Task deleted successfully", env.Message)

	resp, _ = doRequest(t, app, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetStatistics(t *testing.T) {
	app := setupTestApp(t, false)
	createTask(t, app, `{"title":"a"}`)
	createTask(t, app, `{"title":"b","status":"DONE"}`)

	resp, env := doRequest(t, app, http.MethodGet, "/api/tasks/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	assert.Equal(t, "MISS", resp.Header.Get(HeaderCache))

	var stats task.Statistics
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus.Done)
	assert.Equal(t, 50, stats.CompletionRate)
}

func TestHealthCheck(t *testing.T) {
	app := setupTestApp(t, false)

	// Produce one miss and one hit.
	doRequest(t, app, http.MethodGet, "/api/tasks", "")
	doRequest(t, app, http.MethodGet, "/api/tasks", "")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status     string `json:"status"`
		InstanceID string `json:"instanceId"`
		Timestamp  string `json:"timestamp"`
		Database   struct {
			Status string `json:"status"`
		} `json:"database"`
		Redis struct {
			Status string `json:"status"`
		} `json:"redis"`
		Cache struct {
			Hits    int    `json:"hits"`
			Misses  int    `json:"misses"`
			HitRate string `json:"hitRate"`
		} `json:"cache"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, testInstanceID, body.InstanceID)
	assert.NotEmpty(t, body.Timestamp)
	assert.Equal(t, "healthy", body.Database.Status)
	assert.Equal(t, cache.StatusHealthy, body.Redis.Status)
	assert.Equal(t, 1, body.Cache.Hits)
	assert.Equal(t, 1, body.Cache.Misses)
	assert.Equal(t, "50%", body.Cache.HitRate)
}

func TestCacheStatsEndpoints(t *testing.T) {
	app := setupTestApp(t, false)
	doRequest(t, app, http.MethodGet, "/api/tasks", "")

	resp, env := doRequest(t, app, http.MethodGet, "/api/cache/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats cache.StatsSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, uint64(1), stats.Misses)

	resp, env = doRequest(t, app, http.MethodPost, "/api/cache/stats/reset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)

	_, env = doRequest(t, app, http.MethodGet, "/api/cache/stats", "")
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, cache.StatsSnapshot{}, stats)
}

func TestErrorHandler_Unclassified(t *testing.T) {
	for _, development := range []bool{false, true} {
		t.Run(fmt.Sprintf("development=%v", development), func(t *testing.T) {
			app := setupTestApp(t, development)
			app.Get("/boom", func(*fiber.Ctx) error {
				return errors.New("disk on fire")
			})

			resp, env := doRequest(t, app, http.MethodGet, "/boom", "")
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			assert.Equal(t, msgInternalServerError, env.Error)
			if development {
				assert.Equal(t, "disk on fire", env.Detail)
			} else {
				assert.Empty(t, env.Detail)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"validation", &task.ValidationError{Problems: []string{"Title is required"}}, 400, "Title is required"},
		{"transition", task.CheckDeletable(task.StatusInProgress), 400, "Cannot delete task that is in progress"},
		{"not found", fmt.Errorf("lookup: %w", task.ErrNotFound), 404, msgNotFound},
		{"store unavailable", fmt.Errorf("failed to list tasks: %w: %w", task.ErrStoreUnavailable, context.DeadlineExceeded), 503, msgStoreUnavailable},
		{"fiber error", fiber.NewError(fiber.StatusMethodNotAllowed, "nope"), 405, "nope"},
		{"unknown", errors.New("boom"), 500, msgInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, message := classify(tc.err)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.message, message)
		})
	}
}

func TestInstanceID(t *testing.T) {
	assert.Equal(t, "app-abcd-1f2e", instanceID("web-server-abcd", "1f2e3d4c-0000-0000-0000-000000000000"))
	assert.Equal(t, "app-ab-1f2e", instanceID("ab", "1f2e3d4c"))
	assert.True(t, strings.HasPrefix(NewInstanceID(), "app-"))
}
