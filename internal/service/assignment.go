package service

import (
	"context"

	"github.com/TheOliver413/taskmanager-back/internal/domain/history"
	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
	"github.com/TheOliver413/taskmanager-back/internal/port/database"
)

// AssignmentRegistry maintains the task/user assignment edges.
type AssignmentRegistry struct {
	store  database.Store
	ledger *HistoryLedger
}

// NewAssignmentRegistry creates a registry that records new edges in ledger.
func NewAssignmentRegistry(store database.Store, ledger *HistoryLedger) *AssignmentRegistry {
	return &AssignmentRegistry{store: store, ledger: ledger}
}

// Assign adds the (task, user) edge inside tx. Assigning an already
// assigned user is a no-op that reports created=false and writes no
// history. A new edge gets one "assigned" entry attributed to actorID.
func (r *AssignmentRegistry) Assign(ctx context.Context, tx database.Tx, taskID, userID, actorID int64) (bool, error) {
	created, err := tx.InsertAssignment(ctx, taskID, userID)
	if err != nil || !created {
		return false, err
	}
	if _, err := r.ledger.Record(ctx, tx, taskID, actorID, history.ActionAssigned, history.AssignedDetails(userID)); err != nil {
		return false, err
	}
	return true, nil
}

// Link adds the (task, user) edge inside tx without a history entry. It is
// used for the creator edge, which the "created" entry already covers.
func (r *AssignmentRegistry) Link(ctx context.Context, tx database.Tx, taskID, userID int64) (bool, error) {
	return tx.InsertAssignment(ctx, taskID, userID)
}

// ListAssignees returns the users assigned to a task in assignment order.
func (r *AssignmentRegistry) ListAssignees(ctx context.Context, taskID int64) ([]user.Summary, error) {
	return r.store.ListAssignees(ctx, taskID)
}

// IsAssigned reports whether userID is assigned to taskID.
func (r *AssignmentRegistry) IsAssigned(ctx context.Context, taskID, userID int64) (bool, error) {
	return r.store.IsAssigned(ctx, taskID, userID)
}
