package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = "id, title, description, status, priority, created_at, updated_at"

const createTableSQL = `CREATE TABLE IF NOT EXISTS tasks (
	id          BIGSERIAL PRIMARY KEY,
	title       VARCHAR(200) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      VARCHAR(20) NOT NULL DEFAULT 'TODO',
	priority    VARCHAR(20) NOT NULL DEFAULT 'MEDIUM',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// PoolConfig holds connection pool limits for the PostgreSQL store.
type PoolConfig struct {
	MaxConns       int32
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
}

// PostgresRepository provides task persistence on PostgreSQL through a pgx pool.
type PostgresRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresPool creates a pgx pool for dsn with the given limits and verifies the connection.
func NewPostgresPool(ctx context.Context, dsn string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.IdleTimeout > 0 {
		poolCfg.MaxConnIdleTime = cfg.IdleTimeout
		poolCfg.HealthCheckPeriod = cfg.IdleTimeout
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, acquireTimeout(cfg.AcquireTimeout))
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// NewPostgresRepository creates a repository over an existing pool.
func NewPostgresRepository(pool *pgxpool.Pool, timeout time.Duration) *PostgresRepository {
	return &PostgresRepository{pool: pool, timeout: acquireTimeout(timeout)}
}

// EnsureSchema creates the tasks table when it does not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx, createTableSQL); err != nil {
		return pgStoreError("create tasks table", err)
	}
	return nil
}

// List retrieves all tasks in display order.
func (r *PostgresRepository) List(ctx context.Context) ([]Task, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sql := "SELECT " + taskColumns + " FROM tasks ORDER BY " + priorityOrder + ", created_at DESC, id DESC"
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, pgStoreError("list tasks", err)
	}

	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Task, error) {
		return scanTask(row)
	})
	if err != nil {
		return nil, pgStoreError("list tasks", err)
	}
	if tasks == nil {
		tasks = make([]Task, 0)
	}
	return tasks, nil
}

// GetByID retrieves a task by its ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = $1", id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pgStoreError("get task", err)
	}
	return &t, nil
}

// Create inserts a new task and reads back the generated columns.
func (r *PostgresRepository) Create(ctx context.Context, t *Task) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.pool.QueryRow(ctx,
		"INSERT INTO tasks (title, description, status, priority) VALUES ($1, $2, $3, $4) RETURNING "+taskColumns,
		t.Title, t.Description, string(t.Status), string(t.Priority),
	)
	created, err := scanTask(row)
	if err != nil {
		return pgStoreError("create task", err)
	}
	*t = created
	return nil
}

// Update merges the non-nil patch fields with COALESCE in one statement.
func (r *PostgresRepository) Update(ctx context.Context, id int64, patch Patch) (*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var status, priority *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	if patch.Priority != nil {
		p := string(*patch.Priority)
		priority = &p
	}

	row := r.pool.QueryRow(ctx, `UPDATE tasks SET
		title = COALESCE($1, title),
		description = COALESCE($2, description),
		status = COALESCE($3, status),
		priority = COALESCE($4, priority),
		updated_at = CURRENT_TIMESTAMP
		WHERE id = $5 RETURNING `+taskColumns,
		patch.Title, patch.Description, status, priority, id,
	)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pgStoreError("update task", err)
	}
	return &t, nil
}

// Delete physically removes a task.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return false, pgStoreError("delete task", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountByStatus counts tasks per status.
func (r *PostgresRepository) CountByStatus(ctx context.Context) (StatusCounts, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, "SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return StatusCounts{}, pgStoreError("count tasks", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, pgStoreError("count tasks", err)
		}
		counts.Add(Status(status), n)
	}
	if err := rows.Err(); err != nil {
		return StatusCounts{}, pgStoreError("count tasks", err)
	}
	return counts, nil
}

// Ping returns the database server time.
func (r *PostgresRepository) Ping(ctx context.Context) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var now time.Time
	if err := r.pool.QueryRow(ctx, "SELECT NOW()").Scan(&now); err != nil {
		return time.Time{}, pgStoreError("ping database", err)
	}
	return now, nil
}

// Close closes the pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func scanTask(row pgx.Row) (Task, error) {
	var (
		t                Task
		status, priority string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	return t, nil
}

func acquireTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultAcquireTimeout
	}
	return d
}

// pgStoreError adds connection-level failures to the ErrStoreUnavailable class.
func pgStoreError(op string, err error) error {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) {
		return fmt.Errorf("failed to %s: %w: %w", op, ErrStoreUnavailable, err)
	}
	return storeError(op, err)
}
