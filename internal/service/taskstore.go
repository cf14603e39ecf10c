package service

import (
	"context"

	"github.com/TheOliver413/taskmanager-back/internal/domain/history"
	"github.com/TheOliver413/taskmanager-back/internal/domain/task"
	"github.com/TheOliver413/taskmanager-back/internal/port/database"
)

// TaskStore composes the task writes with their assignment and history
// side effects. Every write runs inside the caller's transaction.
type TaskStore struct {
	store    database.Store
	registry *AssignmentRegistry
	ledger   *HistoryLedger
}

// NewTaskStore creates a TaskStore.
func NewTaskStore(store database.Store, registry *AssignmentRegistry, ledger *HistoryLedger) *TaskStore {
	return &TaskStore{store: store, registry: registry, ledger: ledger}
}

// ListVisible returns the tasks userID created or is assigned to, newest
// first.
func (s *TaskStore) ListVisible(ctx context.Context, userID int64) ([]task.View, error) {
	return s.store.ListVisibleTasks(ctx, userID)
}

// GetVisible returns one task as userID sees it, or domain.ErrNotFound.
func (s *TaskStore) GetVisible(ctx context.Context, taskID, userID int64) (*task.View, error) {
	return s.store.GetVisibleTask(ctx, taskID, userID)
}

// Create inserts a task from a normalized request, assigns its creator and
// records the creation. The creator edge gets no entry of its own.
func (s *TaskStore) Create(ctx context.Context, tx database.Tx, creatorID int64, req *task.CreateRequest) (*task.Task, error) {
	t := &task.Task{
		Title:       req.Title,
		Description: req.Description,
		Status:      task.StatusPending,
		CreatorID:   creatorID,
	}
	if req.Status != nil {
		t.Status = task.Status(*req.Status)
	}

	if err := tx.InsertTask(ctx, t); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Record(ctx, tx, t.ID, creatorID, history.ActionCreated, history.CreatedDetails(t, creatorID)); err != nil {
		return nil, err
	}
	if _, err := s.registry.Link(ctx, tx, t.ID, creatorID); err != nil {
		return nil, err
	}
	return t, nil
}

// Update applies cs to t. An empty changeset writes nothing and leaves
// updated_at untouched.
func (s *TaskStore) Update(ctx context.Context, tx database.Tx, t *task.Task, cs task.Changeset, actorID int64) error {
	if cs.Empty() {
		return nil
	}
	cs.Apply(t)
	if err := tx.UpdateTask(ctx, t); err != nil {
		return err
	}
	_, err := s.ledger.Record(ctx, tx, t.ID, actorID, history.ActionUpdated, cs.Details())
	return err
}

// SoftDelete marks t deleted and records it. The row, its assignments and
// its history are kept.
func (s *TaskStore) SoftDelete(ctx context.Context, tx database.Tx, t *task.Task, actorID int64) error {
	if err := tx.SoftDeleteTask(ctx, t); err != nil {
		return err
	}
	_, err := s.ledger.Record(ctx, tx, t.ID, actorID, history.ActionDeleted, history.DeletedDetails(t, actorID))
	return err
}
