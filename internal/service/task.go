package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/metric"

	tmotel "github.com/TheOliver413/taskmanager-back/internal/adapter/otel"
	"github.com/TheOliver413/taskmanager-back/internal/domain"
	"github.com/TheOliver413/taskmanager-back/internal/domain/history"
	"github.com/TheOliver413/taskmanager-back/internal/domain/task"
	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
	"github.com/TheOliver413/taskmanager-back/internal/port/database"
)

// TaskService implements the task operations of the API. Every mutation
// runs in one transaction; the change notification is sent only after it
// commits.
type TaskService struct {
	store    database.Store
	tasks    *TaskStore
	registry *AssignmentRegistry
	ledger   *HistoryLedger
	identity *IdentityService
	notifier *ChangeNotifier
	metrics  *tmotel.Metrics
}

// NewTaskService wires the task service. notifier and metrics may be nil.
func NewTaskService(store database.Store, identity *IdentityService, notifier *ChangeNotifier, metrics *tmotel.Metrics) *TaskService {
	ledger := NewHistoryLedger(store)
	registry := NewAssignmentRegistry(store, ledger)
	return &TaskService{
		store:    store,
		tasks:    NewTaskStore(store, registry, ledger),
		registry: registry,
		ledger:   ledger,
		identity: identity,
		notifier: notifier,
		metrics:  metrics,
	}
}

// UpdateResult is the outcome of Update. Changed is false when every
// submitted value equaled the stored one.
type UpdateResult struct {
	Task    task.View
	Changed bool
}

// AssignResult is the outcome of Assign. Created counts the edges that did
// not exist before.
type AssignResult struct {
	Task          task.View
	AssignedUsers []user.Summary
	Created       int
}

// List returns the tasks visible to actorID, newest first.
func (s *TaskService) List(ctx context.Context, actorID int64) (_ []task.View, err error) {
	ctx, span := tmotel.StartTaskSpan(ctx, "list", 0, actorID)
	defer func() { tmotel.EndSpan(span, err) }()

	views, err := s.tasks.ListVisible(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return views, nil
}

// Get returns one task if actorID can see it.
func (s *TaskService) Get(ctx context.Context, id, actorID int64) (_ *task.View, err error) {
	ctx, span := tmotel.StartTaskSpan(ctx, "get", id, actorID)
	defer func() { tmotel.EndSpan(span, err) }()

	v, err := s.tasks.GetVisible(ctx, id, actorID)
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return v, nil
}

// Create inserts a task owned by actorID, assigns the creator to it and
// records the creation.
func (s *TaskService) Create(ctx context.Context, actorID int64, req *task.CreateRequest) (_ *task.View, err error) {
	ctx, span := tmotel.StartTaskSpan(ctx, "create", 0, actorID)
	defer func() { tmotel.EndSpan(span, err) }()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var view *task.View
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		t, err := s.tasks.Create(ctx, tx, actorID, req)
		if err != nil {
			return err
		}
		view, err = tx.LoadView(ctx, t.ID, actorID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	slog.InfoContext(ctx, "task created", "task_id", view.ID, "actor_id", actorID)
	s.count(ctx, tasksCreated, 1)
	s.notify(ctx, view)
	return view, nil
}

// Update applies a partial update. Only fields whose value differs are
// written; an update with no effective change writes nothing and sends no
// notification. Deleted tasks can still be updated.
func (s *TaskService) Update(ctx context.Context, id, actorID int64, req *task.UpdateRequest) (_ *UpdateResult, err error) {
	ctx, span := tmotel.StartTaskSpan(ctx, "update", id, actorID)
	defer func() { tmotel.EndSpan(span, err) }()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	res := &UpdateResult{}
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		t, err := tx.LockVisibleTask(ctx, id, actorID)
		if err != nil {
			return err
		}
		cs := task.Diff(t, req)
		if err := s.tasks.Update(ctx, tx, t, cs, actorID); err != nil {
			return err
		}
		res.Changed = !cs.Empty()

		v, err := tx.LoadView(ctx, id, actorID)
		if err != nil {
			return err
		}
		res.Task = *v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}

	if !res.Changed {
		return res, nil
	}
	slog.InfoContext(ctx, "task updated", "task_id", id, "actor_id", actorID)
	s.count(ctx, tasksUpdated, 1)
	s.notify(ctx, &res.Task)
	return res, nil
}

// Delete soft-deletes a task. Only its creator may delete it; deleting an
// already deleted task succeeds without side effects.
func (s *TaskService) Delete(ctx context.Context, id, actorID int64) (err error) {
	ctx, span := tmotel.StartTaskSpan(ctx, "delete", id, actorID)
	defer func() { tmotel.EndSpan(span, err) }()

	var view *task.View
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		t, err := tx.LockVisibleTask(ctx, id, actorID)
		if err != nil {
			return err
		}
		if t.CreatorID != actorID {
			return fmt.Errorf("only the creator can delete task %d: %w", id, domain.ErrForbidden)
		}
		if t.IsDeleted() {
			return nil
		}
		if err := s.tasks.SoftDelete(ctx, tx, t, actorID); err != nil {
			return err
		}
		view, err = tx.LoadView(ctx, id, actorID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	if view == nil {
		return nil
	}

	slog.InfoContext(ctx, "task deleted", "task_id", id, "actor_id", actorID)
	s.count(ctx, tasksDeleted, 1)
	s.notify(ctx, view)
	return nil
}

// Assign adds users to a task the actor can see. The task is checked
// before the request body. Every id must name an existing user; otherwise
// nothing is written. Users already assigned are
// skipped without a history entry.
func (s *TaskService) Assign(ctx context.Context, id, actorID int64, req *task.AssignRequest) (_ *AssignResult, err error) {
	ctx, span := tmotel.StartTaskSpan(ctx, "assign", id, actorID)
	defer func() { tmotel.EndSpan(span, err) }()

	req.Normalize()

	res := &AssignResult{}
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		if _, err := tx.LockVisibleTask(ctx, id, actorID); err != nil {
			return err
		}
		if err := req.Validate(); err != nil {
			return err
		}
		if err := s.checkUsersExist(ctx, req.UserIDs); err != nil {
			return err
		}

		created := 0
		for _, uid := range req.UserIDs {
			ok, err := s.registry.Assign(ctx, tx, id, uid, actorID)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}

		v, err := tx.LoadView(ctx, id, actorID)
		if err != nil {
			return err
		}
		res.Task = *v
		res.AssignedUsers = v.AssignedUsers
		res.Created = created
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("assign users to task %d: %w", id, err)
	}

	slog.InfoContext(ctx, "users assigned", "task_id", id, "actor_id", actorID, "requested", len(req.UserIDs), "created", res.Created)
	s.count(ctx, usersAssigned, int64(res.Created))
	s.notify(ctx, &res.Task)
	return res, nil
}

// History returns the full ledger, newest first.
func (s *TaskService) History(ctx context.Context) ([]history.Record, error) {
	records, err := s.ledger.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return records, nil
}

func (s *TaskService) checkUsersExist(ctx context.Context, ids []int64) error {
	if s.identity == nil {
		return nil
	}
	missing, err := s.identity.MissingUsers(ctx, ids)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	v := domain.NewValidationError()
	for _, id := range missing {
		v.Add("user_ids", "user "+strconv.FormatInt(id, 10)+" does not exist")
	}
	return v
}

func (s *TaskService) notify(ctx context.Context, v *task.View) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, &v.Task, v.AssignedUsers)
}

func (s *TaskService) count(ctx context.Context, pick func(*tmotel.Metrics) metric.Int64Counter, n int64) {
	if s.metrics == nil || n == 0 {
		return
	}
	pick(s.metrics).Add(ctx, n)
}

func tasksCreated(m *tmotel.Metrics) metric.Int64Counter { return m.TasksCreated }
func tasksUpdated(m *tmotel.Metrics) metric.Int64Counter { return m.TasksUpdated }
func tasksDeleted(m *tmotel.Metrics) metric.Int64Counter { return m.TasksDeleted }
func usersAssigned(m *tmotel.Metrics) metric.Int64Counter { return m.UsersAssigned }
