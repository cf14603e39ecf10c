package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/TheOliver413/taskmanager-back/internal/domain"
	"github.com/TheOliver413/taskmanager-back/internal/domain/task"
	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
)

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// orEmpty returns items unchanged if non-nil, or an empty slice if nil.
// Useful to ensure JSON serialization produces [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// notFoundWrap checks whether err is pgx.ErrNoRows and, if so, wraps
// domain.ErrNotFound with the given message. Otherwise it wraps the
// original error.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// execExpectOne verifies that an Exec affected exactly one row. If not
// (and err is nil), it returns domain.ErrNotFound with the given message.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	if err != nil {
		return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", domain.ErrNotFound)
	}
	return nil
}

const taskColumns = `t.id, t.title, t.description, t.status, t.creator_id, t.created_at, t.updated_at`

func scanTask(row scannable) (task.Task, error) {
	var t task.Task
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.CreatorID, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// viewSelect projects a task as seen by the user bound to $1: visibility
// flags plus the assignee list in assignment order.
const viewSelect = `SELECT ` + taskColumns + `,
	EXISTS (SELECT 1 FROM task_users me WHERE me.task_id = t.id AND me.user_id = $1) AS assigned_to_me,
	t.creator_id = $1 AS created_by_me,
	COALESCE((
		SELECT jsonb_agg(jsonb_build_object('id', u.id, 'name', u.name, 'email', u.email) ORDER BY tu.created_at, tu.id)
		FROM task_users tu
		JOIN users u ON u.id = tu.user_id
		WHERE tu.task_id = t.id
	), '[]'::jsonb) AS assigned_users
FROM tasks t
WHERE (t.creator_id = $1 OR EXISTS (SELECT 1 FROM task_users v WHERE v.task_id = t.id AND v.user_id = $1))`

func scanView(row scannable) (task.View, error) {
	var (
		v         task.View
		assignees []byte
	)
	err := row.Scan(&v.ID, &v.Title, &v.Description, &v.Status, &v.CreatorID, &v.CreatedAt, &v.UpdatedAt,
		&v.AssignedToMe, &v.CreatedByMe, &assignees)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(assignees, &v.AssignedUsers); err != nil {
		return v, fmt.Errorf("decode assigned users: %w", err)
	}
	v.AssignedUsers = orEmpty(v.AssignedUsers)
	return v, nil
}

func scanSummaries(rows pgx.Rows) ([]user.Summary, error) {
	defer rows.Close()
	out := []user.Summary{}
	for rows.Next() {
		var u user.Summary
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
