// Package history defines the append-only audit log of task actions.
package history

import (
	"fmt"
	"time"

	"github.com/TheOliver413/taskmanager-back/internal/domain/task"
	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
)

// Action is the kind of mutation an entry records.
type Action string

const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionAssigned Action = "assigned"
	ActionDeleted  Action = "deleted"
)

// Entry is a single ledger row. UserID is nil once the acting user's
// account has been removed.
type Entry struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	UserID    *int64    `json:"user_id"`
	Action    Action    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskSummary is the task projection joined onto a listed entry.
type TaskSummary struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      task.Status `json:"status"`
}

// Record is an entry joined with its actor and task for display.
// User is nil for orphaned entries.
type Record struct {
	Entry
	User *user.Summary `json:"user"`
	Task TaskSummary   `json:"task"`
}

// CreatedDetails describes a task creation.
func CreatedDetails(t *task.Task, actorID int64) string {
	return fmt.Sprintf("task '%s' created by user %d", t.Title, actorID)
}

// AssignedDetails describes a new assignment edge.
func AssignedDetails(userID int64) string {
	return fmt.Sprintf("user %d assigned to task", userID)
}

// DeletedDetails describes a soft delete.
func DeletedDetails(t *task.Task, actorID int64) string {
	return fmt.Sprintf("task '%s' marked as deleted by user %d", t.Title, actorID)
}
