// Package databasetest provides an in-memory database.Store for tests.
package databasetest

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/TheOliver413/taskmanager-back/internal/domain"
	"github.com/TheOliver413/taskmanager-back/internal/domain/history"
	"github.com/TheOliver413/taskmanager-back/internal/domain/task"
	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
	"github.com/TheOliver413/taskmanager-back/internal/port/database"
)

var (
	_ database.Store = (*Store)(nil)
	_ database.Tx    = (*memTx)(nil)
)

type edge struct {
	taskID int64
	userID int64
}

// Store is an in-memory database.Store with the same visibility and
// transaction semantics as the Postgres adapter. Transactions are
// serialized and roll back by restoring a snapshot.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users   map[int64]user.Summary
	tasks   map[int64]task.Task
	edges   []edge
	history []history.Entry

	lastTaskID    int64
	lastHistoryID int64
	clock         time.Time

	// Error hooks, set before use.
	FailOn       string // Tx method name
	FailErr      error
	FindUsersErr error

	findUsersCalls int
}

// NewStore returns an empty store seeded with users.
func NewStore(users ...user.Summary) *Store {
	s := &Store{
		users: make(map[int64]user.Summary),
		tasks: make(map[int64]task.Task),
		clock: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

// Users returns four sample users with ids 1 to 4.
func Users() []user.Summary {
	return []user.Summary{
		{ID: 1, Name: "Ana", Email: "ana@example.com"},
		{ID: 2, Name: "Bruno", Email: "bruno@example.com"},
		{ID: 3, Name: "Carla", Email: "carla@example.com"},
		{ID: 4, Name: "Diego", Email: "diego@example.com"},
	}
}

// now must be called with s.mu held.
func (s *Store) now() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

// RemoveUser mimics deleting a users row: assignments cascade and history
// keeps the entry with a NULL user.
func (s *Store) RemoveUser(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	s.edges = slices.DeleteFunc(s.edges, func(e edge) bool { return e.userID == id })
	for i := range s.history {
		if h := s.history[i].UserID; h != nil && *h == id {
			s.history[i].UserID = nil
		}
	}
}

// HistoryFor returns the entries of one task, oldest first.
func (s *Store) HistoryFor(taskID int64) []history.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []history.Entry
	for _, e := range s.history {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
}

// HistoryCount returns the total number of entries.
func (s *Store) HistoryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// EdgeCount returns the number of assignments of a task.
func (s *Store) EdgeCount(taskID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.edges {
		if e.taskID == taskID {
			n++
		}
	}
	return n
}

// RawTask returns a task without visibility checks.
func (s *Store) RawTask(id int64) task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id]
}

// visible must be called with s.mu held.
func (s *Store) visible(t task.Task, userID int64) bool {
	return t.CreatorID == userID || s.assigned(t.ID, userID)
}

// assigned must be called with s.mu held.
func (s *Store) assigned(taskID, userID int64) bool {
	for _, e := range s.edges {
		if e.taskID == taskID && e.userID == userID {
			return true
		}
	}
	return false
}

// assignees must be called with s.mu held.
func (s *Store) assignees(taskID int64) []user.Summary {
	out := []user.Summary{}
	for _, e := range s.edges {
		if e.taskID == taskID {
			out = append(out, s.users[e.userID])
		}
	}
	return out
}

// view must be called with s.mu held.
func (s *Store) view(taskID, userID int64) (*task.View, error) {
	t, ok := s.tasks[taskID]
	if !ok || !s.visible(t, userID) {
		return nil, domain.ErrNotFound
	}
	return &task.View{
		Task:          t,
		AssignedToMe:  s.assigned(taskID, userID),
		CreatedByMe:   t.CreatorID == userID,
		AssignedUsers: s.assignees(taskID),
	}, nil
}

func (s *Store) ListVisibleTasks(_ context.Context, userID int64) ([]task.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []task.View{}
	for id := range s.tasks {
		if v, err := s.view(id, userID); err == nil {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) GetVisibleTask(_ context.Context, taskID, userID int64) (*task.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(taskID, userID)
}

func (s *Store) ListAssignees(_ context.Context, taskID int64) ([]user.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignees(taskID), nil
}

func (s *Store) IsAssigned(_ context.Context, taskID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assigned(taskID, userID), nil
}

func (s *Store) ListHistory(_ context.Context) ([]history.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.Record, 0, len(s.history))
	for _, e := range s.history {
		t, ok := s.tasks[e.TaskID]
		if !ok {
			continue
		}
		r := history.Record{
			Entry: e,
			Task:  history.TaskSummary{ID: t.ID, Title: t.Title, Description: t.Description, Status: t.Status},
		}
		if e.UserID != nil {
			if u, ok := s.users[*e.UserID]; ok {
				r.User = &u
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) FindUsers(_ context.Context, ids []int64) ([]user.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findUsersCalls++
	if s.FindUsersErr != nil {
		return nil, s.FindUsersErr
	}
	var out []user.Summary
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx database.Tx) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memTx{s: s})
}

// FindUsersCalls returns how many times FindUsers ran.
func (s *Store) FindUsersCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findUsersCalls
}

func (s *Store) Ping(_ context.Context) error { return nil }

type snapshot struct {
	tasks         map[int64]task.Task
	edges         []edge
	history       []history.Entry
	lastTaskID    int64
	lastHistoryID int64
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make(map[int64]task.Task, len(s.tasks))
	for k, v := range s.tasks {
		tasks[k] = v
	}
	return snapshot{
		tasks:         tasks,
		edges:         slices.Clone(s.edges),
		history:       slices.Clone(s.history),
		lastTaskID:    s.lastTaskID,
		lastHistoryID: s.lastHistoryID,
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = snap.tasks
	s.edges = snap.edges
	s.history = snap.history
	s.lastTaskID = snap.lastTaskID
	s.lastHistoryID = snap.lastHistoryID
}

// memTx writes straight into the store; InTx undoes them on error.
type memTx struct {
	s *Store
}

// ErrInjected is returned by the method named in FailOn when FailErr is nil.
var ErrInjected = errors.New("injected failure")

// fail must be called with s.mu held.
func (tx *memTx) fail(method string) error {
	if tx.s.FailOn != method {
		return nil
	}
	if tx.s.FailErr != nil {
		return tx.s.FailErr
	}
	return ErrInjected
}

func (tx *memTx) LockVisibleTask(_ context.Context, taskID, userID int64) (*task.Task, error) {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := tx.fail("LockVisibleTask"); err != nil {
		return nil, err
	}
	t, ok := s.tasks[taskID]
	if !ok || !s.visible(t, userID) {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (tx *memTx) InsertTask(_ context.Context, t *task.Task) error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := tx.fail("InsertTask"); err != nil {
		return err
	}
	s.lastTaskID++
	t.ID = s.lastTaskID
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt
	s.tasks[t.ID] = *t
	return nil
}

func (tx *memTx) UpdateTask(_ context.Context, t *task.Task) error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := tx.fail("UpdateTask"); err != nil {
		return err
	}
	cur, ok := s.tasks[t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cur.Title, cur.Description, cur.Status = t.Title, t.Description, t.Status
	cur.UpdatedAt = s.now()
	s.tasks[t.ID] = cur
	t.UpdatedAt = cur.UpdatedAt
	return nil
}

func (tx *memTx) SoftDeleteTask(_ context.Context, t *task.Task) error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := tx.fail("SoftDeleteTask"); err != nil {
		return err
	}
	cur, ok := s.tasks[t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cur.Status = task.StatusDeleted
	cur.UpdatedAt = s.now()
	s.tasks[t.ID] = cur
	t.Status, t.UpdatedAt = cur.Status, cur.UpdatedAt
	return nil
}

func (tx *memTx) InsertAssignment(_ context.Context, taskID, userID int64) (bool, error) {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := tx.fail("InsertAssignment"); err != nil {
		return false, err
	}
	if _, ok := s.users[userID]; !ok {
		return false, domain.FieldError("user_ids", "unknown user")
	}
	if s.assigned(taskID, userID) {
		return false, nil
	}
	s.edges = append(s.edges, edge{taskID: taskID, userID: userID})
	return true, nil
}

func (tx *memTx) InsertHistory(_ context.Context, e *history.Entry) error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := tx.fail("InsertHistory"); err != nil {
		return err
	}
	s.lastHistoryID++
	e.ID = s.lastHistoryID
	e.Timestamp = s.now()
	s.history = append(s.history, *e)
	return nil
}

func (tx *memTx) LoadView(_ context.Context, taskID, userID int64) (*task.View, error) {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := tx.fail("LoadView"); err != nil {
		return nil, err
	}
	return s.view(taskID, userID)
}
