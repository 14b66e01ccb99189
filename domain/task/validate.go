package task

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	statusList   = joinValues(Statuses)
	priorityList = joinValues(Priorities)
)

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// Validate checks a create request and returns a *ValidationError listing
// every violated rule, or nil.
func (r *CreateTaskRequest) Validate() error {
	var problems []string

	problems = appendTitleProblems(problems, r.Title)
	if r.Status != "" && !Status(r.Status).Valid() {
		problems = append(problems, fmt.Sprintf("Status must be one of: %s", statusList))
	}
	if r.Priority != "" && !Priority(r.Priority).Valid() {
		problems = append(problems, fmt.Sprintf("Priority must be one of: %s", priorityList))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// NewTask builds the entity to persist from a validated request, applying defaults.
func (r *CreateTaskRequest) NewTask() *Task {
	t := &Task{
		Title:       r.Title,
		Description: r.Description,
		Status:      StatusTodo,
		Priority:    PriorityMedium,
	}
	if r.Status != "" {
		t.Status = Status(r.Status)
	}
	if r.Priority != "" {
		t.Priority = Priority(r.Priority)
	}
	return t
}

// Validate checks the supplied fields of an update request. Absent fields are not checked.
func (r *UpdateTaskRequest) Validate() error {
	var problems []string

	if r.Title != nil {
		problems = appendTitleProblems(problems, *r.Title)
	}
	if r.Status != nil && !Status(*r.Status).Valid() {
		problems = append(problems, fmt.Sprintf("Status must be one of: %s", statusList))
	}
	if r.Priority != nil && !Priority(*r.Priority).Valid() {
		problems = append(problems, fmt.Sprintf("Priority must be one of: %s", priorityList))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Patch converts a validated update request into a repository patch.
func (r *UpdateTaskRequest) Patch() Patch {
	p := Patch{
		Title:       r.Title,
		Description: r.Description,
	}
	if r.Status != nil {
		s := Status(*r.Status)
		p.Status = &s
	}
	if r.Priority != nil {
		pr := Priority(*r.Priority)
		p.Priority = &pr
	}
	return p
}

func appendTitleProblems(problems []string, title string) []string {
	if strings.TrimSpace(title) == "" {
		return append(problems, "Title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		problems = append(problems, fmt.Sprintf("Title must be less than %d characters", MaxTitleLength))
	}
	return problems
}
