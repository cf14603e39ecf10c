package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TheOliver413/taskmanager-back/internal/domain/history"
	"github.com/TheOliver413/taskmanager-back/internal/domain/task"
	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
	"github.com/TheOliver413/taskmanager-back/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Tasks ---

func (s *Store) ListVisibleTasks(ctx context.Context, userID int64) ([]task.View, error) {
	rows, err := s.pool.Query(ctx, viewSelect+` ORDER BY t.created_at DESC, t.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for user %d: %w", userID, err)
	}
	defer rows.Close()

	views := []task.View{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (s *Store) GetVisibleTask(ctx context.Context, taskID, userID int64) (*task.View, error) {
	v, err := scanView(s.pool.QueryRow(ctx, viewSelect+` AND t.id = $2`, userID, taskID))
	if err != nil {
		return nil, notFoundWrap(err, "get task %d", taskID)
	}
	return &v, nil
}

// --- Assignments ---

func (s *Store) ListAssignees(ctx context.Context, taskID int64) ([]user.Summary, error) {
	return listAssignees(ctx, s.pool, taskID)
}

func listAssignees(ctx context.Context, q querier, taskID int64) ([]user.Summary, error) {
	rows, err := q.Query(ctx, `
		SELECT u.id, u.name, u.email
		FROM task_users tu
		JOIN users u ON u.id = tu.user_id
		WHERE tu.task_id = $1
		ORDER BY tu.created_at, tu.id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list assignees of task %d: %w", taskID, err)
	}
	return scanSummaries(rows)
}

func (s *Store) IsAssigned(ctx context.Context, taskID, userID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM task_users WHERE task_id = $1 AND user_id = $2)`,
		taskID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check assignment %d/%d: %w", taskID, userID, err)
	}
	return ok, nil
}

// --- History ---

// ListHistory returns every entry newest first. Entries whose actor was
// removed keep a nil User.
func (s *Store) ListHistory(ctx context.Context) ([]history.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT th.id, th.task_id, th.user_id, th.action, th.details, th.timestamp,
		       u.id, u.name, u.email,
		       t.id, t.title, t.description, t.status
		FROM task_history th
		LEFT JOIN users u ON u.id = th.user_id
		JOIN tasks t ON t.id = th.task_id
		ORDER BY th.timestamp DESC, th.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	records := []history.Record{}
	for rows.Next() {
		var (
			r      history.Record
			uid    *int64
			uname  *string
			uemail *string
		)
		if err := rows.Scan(&r.ID, &r.TaskID, &r.UserID, &r.Action, &r.Details, &r.Timestamp,
			&uid, &uname, &uemail,
			&r.Task.ID, &r.Task.Title, &r.Task.Description, &r.Task.Status); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if uid != nil {
			r.User = &user.Summary{ID: *uid, Name: deref(uname), Email: deref(uemail)}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// --- Health ---

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn in a transaction that commits when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	pgxTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgxTx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(&txStore{tx: pgxTx}); err != nil {
		return err
	}

	if err := pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
