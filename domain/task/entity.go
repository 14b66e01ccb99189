// Package task provides the domain entity, business rules and repositories for tasks.
package task

import (
	"time"
)

// Status represents where a task is in its workflow.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Priority represents how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Statuses lists every valid status in workflow order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// Priorities lists every valid priority from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// MaxTitleLength is the maximum number of characters in a task title.
const MaxTitleLength = 200

// Task represents a tracked unit of work.
// The JSON shape is shared with cached snapshots and the browser UI.
type Task struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Description string    `gorm:"type:text;not null;default:''" json:"description"`
	Status      Status    `gorm:"size:20;not null;default:TODO;index" json:"status"`
	Priority    Priority  `gorm:"size:20;not null;default:MEDIUM" json:"priority"`
	CreatedAt   time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"not null" json:"updatedAt"`
}

// TableName pins the table name used by every store backend.
func (Task) TableName() string {
	return "tasks"
}

// CreateTaskRequest represents the request to create a task.
// Status and Priority are optional and default to TODO and MEDIUM.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// UpdateTaskRequest represents a partial update. Nil fields keep their prior value.
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
}

// Patch is a validated partial update handed to a Repository.
type Patch struct {
	Title       *string
	Description *string
	Status      *Status
	Priority    *Priority
}

// StatusCounts holds the number of tasks in each status bucket.
type StatusCounts struct {
	Todo       int64 `json:"TODO"`
	InProgress int64 `json:"IN_PROGRESS"`
	Done       int64 `json:"DONE"`
}

// Total returns the sum of all buckets.
func (c StatusCounts) Total() int64 {
	return c.Todo + c.InProgress + c.Done
}

// Add increments the bucket for status by n. Unknown statuses are ignored.
func (c *StatusCounts) Add(status Status, n int64) {
	switch status {
	case StatusTodo:
		c.Todo += n
	case StatusInProgress:
		c.InProgress += n
	case StatusDone:
		c.Done += n
	}
}

// Statistics summarises the task collection.
type Statistics struct {
	Total          int64        `json:"total"`
	ByStatus       StatusCounts `json:"byStatus"`
	CompletionRate int          `json:"completionRate"`
}

// NewStatistics derives totals and the completion rate from per-status counts.
func NewStatistics(counts StatusCounts) Statistics {
	total := counts.Total()
	return Statistics{
		Total:          total,
		ByStatus:       counts,
		CompletionRate: Percent(counts.Done, total),
	}
}
