// Package service contains the application services of the task manager.
package service

import (
	"context"
	"fmt"

	"github.com/TheOliver413/taskmanager-back/internal/domain/history"
	"github.com/TheOliver413/taskmanager-back/internal/port/database"
)

// HistoryLedger is the append-only audit log of task actions.
type HistoryLedger struct {
	store database.Store
}

// NewHistoryLedger creates a ledger over store.
func NewHistoryLedger(store database.Store) *HistoryLedger {
	return &HistoryLedger{store: store}
}

// Record appends an entry inside the caller's transaction. An error aborts
// the whole unit of work.
func (l *HistoryLedger) Record(ctx context.Context, tx database.Tx, taskID, actorID int64, action history.Action, details string) (int64, error) {
	e := &history.Entry{
		TaskID:  taskID,
		UserID:  &actorID,
		Action:  action,
		Details: details,
	}
	if err := tx.InsertHistory(ctx, e); err != nil {
		return 0, fmt.Errorf("record %s for task %d: %w", action, taskID, err)
	}
	return e.ID, nil
}

// ListAll returns every entry newest first, joined with its actor and task.
func (l *HistoryLedger) ListAll(ctx context.Context) ([]history.Record, error) {
	return l.store.ListHistory(ctx)
}
