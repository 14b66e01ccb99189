package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	testCases := []struct {
		from, to Status
		want     bool
	}{
		{StatusTodo, StatusInProgress, true},
		{StatusTodo, StatusDone, true},
		{StatusTodo, StatusTodo, true},
		{StatusInProgress, StatusDone, true},
		{StatusInProgress, StatusTodo, true},
		{StatusInProgress, StatusInProgress, true},
		{StatusDone, StatusDone, true},
		{StatusDone, StatusTodo, false},
		{StatusDone, StatusInProgress, false},
		{StatusTodo, Status("BLOCKED"), false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStatus_Deletable(t *testing.T) {
	for _, s := range Statuses {
		assert.Equal(t, s != StatusInProgress, s.Deletable(), s)
	}
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range Statuses {
		assert.True(t, s.Valid(), s)
	}
	for _, s := range []Status{"", "todo", "BLOCKED"} {
		assert.False(t, s.Valid(), "%q", s)
	}
}

func TestPriority_Rank(t *testing.T) {
	assert.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.Less(t, PriorityLow.Rank(), Priority("URGENT").Rank(), "unknown priorities sort last")
	assert.False(t, Priority("URGENT").Valid())
}

func TestPriorityOrderSQL(t *testing.T) {
	assert.Equal(t,
		"CASE priority WHEN 'LOW' THEN 3 WHEN 'MEDIUM' THEN 2 WHEN 'HIGH' THEN 1 ELSE 4 END",
		priorityOrderSQL())
}

func TestCheckTransition(t *testing.T) {
	err := CheckTransition(StatusDone, StatusTodo)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "Cannot change status of completed task", err.Error())

	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StatusDone, terr.From)
	assert.Equal(t, StatusTodo, terr.To)

	assert.NoError(t, CheckTransition(StatusTodo, StatusDone))
}

func TestCheckDeletable(t *testing.T) {
	err := CheckDeletable(StatusInProgress)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "Cannot delete task that is in progress", err.Error())

	for _, s := range []Status{StatusTodo, StatusDone} {
		assert.NoError(t, CheckDeletable(s), s)
	}
}

func TestNewStatistics(t *testing.T) {
	testCases := []struct {
		name   string
		counts StatusCounts
		total  int64
		rate   int
	}{
		{"empty", StatusCounts{}, 0, 0},
		{"all done", StatusCounts{Done: 4}, 4, 100},
		{"one of three", StatusCounts{Todo: 1, InProgress: 1, Done: 1}, 3, 33},
		{"two of three", StatusCounts{Todo: 1, Done: 2}, 3, 67},
		{"half", StatusCounts{InProgress: 1, Done: 1}, 2, 50},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stats := NewStatistics(tc.counts)
			assert.Equal(t, tc.total, stats.Total)
			assert.Equal(t, stats.Total, stats.ByStatus.Todo+stats.ByStatus.InProgress+stats.ByStatus.Done)
			assert.Equal(t, tc.rate, stats.CompletionRate)
		})
	}
}

func TestStatusCounts_AddIgnoresUnknown(t *testing.T) {
	var c StatusCounts
	c.Add(StatusTodo, 2)
	c.Add(Status("ARCHIVED"), 5)
	assert.Equal(t, int64(2), c.Total())
}
