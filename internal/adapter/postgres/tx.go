package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/TheOliver413/taskmanager-back/internal/domain"
	"github.com/TheOliver413/taskmanager-back/internal/domain/history"
	"github.com/TheOliver413/taskmanager-back/internal/domain/task"
)

const sqlStateForeignKeyViolation = "23503"

// txStore implements database.Tx on one pgx transaction.
type txStore struct {
	tx pgx.Tx
}

func (s *txStore) LockVisibleTask(ctx context.Context, taskID, userID int64) (*task.Task, error) {
	t, err := scanTask(s.tx.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		WHERE t.id = $1
		  AND (t.creator_id = $2 OR EXISTS (SELECT 1 FROM task_users tu WHERE tu.task_id = t.id AND tu.user_id = $2))
		FOR UPDATE OF t`, taskID, userID))
	if err != nil {
		return nil, notFoundWrap(err, "lock task %d", taskID)
	}
	return &t, nil
}

func (s *txStore) InsertTask(ctx context.Context, t *task.Task) error {
	err := s.tx.QueryRow(ctx, `
		INSERT INTO tasks (title, description, status, creator_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		t.Title, t.Description, t.Status, t.CreatorID,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *txStore) UpdateTask(ctx context.Context, t *task.Task) error {
	err := s.tx.QueryRow(ctx, `
		UPDATE tasks SET title = $2, description = $3, status = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Title, t.Description, t.Status,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return notFoundWrap(err, "update task %d", t.ID)
	}
	return nil
}

func (s *txStore) SoftDeleteTask(ctx context.Context, t *task.Task) error {
	err := s.tx.QueryRow(ctx, `
		UPDATE tasks SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING status, updated_at`,
		t.ID, task.StatusDeleted,
	).Scan(&t.Status, &t.UpdatedAt)
	if err != nil {
		return notFoundWrap(err, "soft delete task %d", t.ID)
	}
	return nil
}

func (s *txStore) InsertAssignment(ctx context.Context, taskID, userID int64) (bool, error) {
	tag, err := s.tx.Exec(ctx, `
		INSERT INTO task_users (task_id, user_id) VALUES ($1, $2)
		ON CONFLICT (task_id, user_id) DO NOTHING`, taskID, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == sqlStateForeignKeyViolation {
			// The user vanished between validation and insert.
			return false, domain.FieldError("user_ids", fmt.Sprintf("user %d does not exist", userID))
		}
		return false, fmt.Errorf("assign user %d to task %d: %w", userID, taskID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *txStore) InsertHistory(ctx context.Context, e *history.Entry) error {
	err := s.tx.QueryRow(ctx, `
		INSERT INTO task_history (task_id, user_id, action, details)
		VALUES ($1, $2, $3, $4)
		RETURNING id, timestamp`,
		e.TaskID, e.UserID, e.Action, e.Details,
	).Scan(&e.ID, &e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert history for task %d: %w", e.TaskID, err)
	}
	return nil
}

func (s *txStore) LoadView(ctx context.Context, taskID, userID int64) (*task.View, error) {
	v, err := scanView(s.tx.QueryRow(ctx, viewSelect+` AND t.id = $2`, userID, taskID))
	if err != nil {
		return nil, notFoundWrap(err, "load task %d", taskID)
	}
	return &v, nil
}
