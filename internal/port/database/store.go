// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/TheOliver413/taskmanager-back/internal/domain/history"
	"github.com/TheOliver413/taskmanager-back/internal/domain/task"
	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
)

// Store is the port interface for reads and for opening units of work.
// Visibility-scoped reads return domain.ErrNotFound both when the task does
// not exist and when the user is neither its creator nor an assignee.
type Store interface {
	// Tasks
	ListVisibleTasks(ctx context.Context, userID int64) ([]task.View, error)
	GetVisibleTask(ctx context.Context, taskID, userID int64) (*task.View, error)

	// Assignments
	ListAssignees(ctx context.Context, taskID int64) ([]user.Summary, error)
	IsAssigned(ctx context.Context, taskID, userID int64) (bool, error)

	// History
	ListHistory(ctx context.Context) ([]history.Record, error)

	// Users
	FindUsers(ctx context.Context, ids []int64) ([]user.Summary, error)

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back on error, panic or context cancellation.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
}

// Tx is the set of writes that make up a unit of work.
type Tx interface {
	// LockVisibleTask loads a task the user can see and locks it for the
	// rest of the transaction.
	LockVisibleTask(ctx context.Context, taskID, userID int64) (*task.Task, error)

	// InsertTask stores t and fills its ID and timestamps.
	InsertTask(ctx context.Context, t *task.Task) error

	// UpdateTask writes title, description and status and refreshes
	// t.UpdatedAt.
	UpdateTask(ctx context.Context, t *task.Task) error

	// SoftDeleteTask flips the status to task.StatusDeleted and refreshes
	// t.UpdatedAt.
	SoftDeleteTask(ctx context.Context, t *task.Task) error

	// InsertAssignment adds the (task, user) edge unless it already exists.
	// created reports whether a row was inserted.
	InsertAssignment(ctx context.Context, taskID, userID int64) (created bool, err error)

	// InsertHistory appends e and fills its ID and timestamp.
	InsertHistory(ctx context.Context, e *history.Entry) error

	// LoadView reads the task as userID sees it, including this
	// transaction's own writes.
	LoadView(ctx context.Context, taskID, userID int64) (*task.View, error)
}
