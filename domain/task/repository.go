package task

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Repository is the persistence port for tasks. Every method is bounded by the
// store's acquisition timeout. Update is atomic: the write and the returned row
// come from the same transaction or statement.
type Repository interface {
	// List returns every task, HIGH priority first, newest first within a priority.
	List(ctx context.Context) ([]Task, error)
	// GetByID returns ErrNotFound if no task has the id.
	GetByID(ctx context.Context, id int64) (*Task, error)
	// Create persists t and fills in its id and timestamps.
	Create(ctx context.Context, t *Task) error
	// Update merges patch into the stored row and refreshes updated_at.
	Update(ctx context.Context, id int64, patch Patch) (*Task, error)
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, id int64) (bool, error)
	// CountByStatus groups tasks by status; missing buckets are 0.
	CountByStatus(ctx context.Context) (StatusCounts, error)
	// Ping checks liveness and returns the store's current time.
	Ping(ctx context.Context) (time.Time, error)
	Close() error
}

// priorityOrder sorts by Priority.Rank in SQL.
var priorityOrder = priorityOrderSQL()

func priorityOrderSQL() string {
	var b strings.Builder
	b.WriteString("CASE priority")
	for _, p := range Priorities {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", p, p.Rank())
	}
	fmt.Fprintf(&b, " ELSE %d END", Priority("").Rank())
	return b.String()
}

// DefaultAcquireTimeout bounds how long a repository call waits for the store.
const DefaultAcquireTimeout = 5 * time.Second

// GormRepository provides task persistence through GORM.
type GormRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

var _ Repository = (*GormRepository)(nil)

// NewGormRepository creates a new GORM-backed task repository.
// A non-positive timeout falls back to DefaultAcquireTimeout.
func NewGormRepository(db *gorm.DB, timeout time.Duration) *GormRepository {
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	return &GormRepository{db: db, timeout: timeout}
}

// Migrate creates or updates the tasks table.
func (r *GormRepository) Migrate() error {
	return r.db.AutoMigrate(&Task{})
}

// List retrieves all tasks in display order.
func (r *GormRepository) List(ctx context.Context) ([]Task, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tasks := make([]Task, 0)
	err := r.db.WithContext(ctx).
		Order(priorityOrder).
		Order("created_at DESC").
		Order("id DESC").
		Find(&tasks).Error
	if err != nil {
		return nil, storeError("list tasks", err)
	}
	return tasks, nil
}

// GetByID retrieves a task by its ID.
func (r *GormRepository) GetByID(ctx context.Context, id int64) (*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var t Task
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeError("get task", err)
	}
	return &t, nil
}

// Create inserts a new task.
func (r *GormRepository) Create(ctx context.Context, t *Task) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return storeError("create task", err)
	}
	return nil
}

// Update applies the non-nil fields of patch and re-reads the row in the same transaction.
func (r *GormRepository) Update(ctx context.Context, id int64, patch Patch) (*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.Priority != nil {
		updates["priority"] = *patch.Priority
	}

	var t Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Task{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.First(&t, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeError("update task", err)
	}
	return &t, nil
}

// Delete physically removes a task.
func (r *GormRepository) Delete(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := r.db.WithContext(ctx).Delete(&Task{}, "id = ?", id)
	if result.Error != nil {
		return false, storeError("delete task", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// CountByStatus counts tasks per status.
func (r *GormRepository) CountByStatus(ctx context.Context) (StatusCounts, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []struct {
		Status Status
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&Task{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return StatusCounts{}, storeError("count tasks", err)
	}

	var counts StatusCounts
	for _, row := range rows {
		counts.Add(row.Status, row.Count)
	}
	return counts, nil
}

// Ping checks the database and returns its current time.
func (r *GormRepository) Ping(ctx context.Context) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var raw any
	if err := r.db.WithContext(ctx).Raw("SELECT CURRENT_TIMESTAMP").Row().Scan(&raw); err != nil {
		return time.Time{}, storeError("ping database", err)
	}
	return parseStoreTime(raw), nil
}

// Close closes the underlying connection pool.
func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// parseStoreTime accepts the driver-specific representations of CURRENT_TIMESTAMP.
// SQLite reports it as UTC text.
func parseStoreTime(raw any) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v
	case []byte:
		return parseStoreTime(string(v))
	case string:
		if ts, err := time.ParseInLocation(time.DateTime, v, time.UTC); err == nil {
			return ts
		}
	}
	return time.Now().UTC()
}

// storeError wraps err and marks timeouts and dead connections as ErrStoreUnavailable.
func storeError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("failed to %s: %w: %w", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
