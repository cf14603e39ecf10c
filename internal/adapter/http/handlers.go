package http

import (
	"context"
	"net/http"
	"time"

	"github.com/TheOliver413/taskmanager-back/internal/domain/history"
	"github.com/TheOliver413/taskmanager-back/internal/domain/task"
	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
	"github.com/TheOliver413/taskmanager-back/internal/middleware"
	"github.com/TheOliver413/taskmanager-back/internal/port/messagequeue"
	"github.com/TheOliver413/taskmanager-back/internal/service"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the HTTP handlers and their service dependencies.
type Handlers struct {
	Tasks     *service.TaskService
	DB        Pinger
	Queue     messagequeue.Queue // optional
	WS        http.Handler       // optional
	BodyLimit int64
}

type updateResponse struct {
	Message string    `json:"message"`
	Changed bool      `json:"changed"`
	Task    task.View `json:"task"`
}

type assignResponse struct {
	Message       string         `json:"message"`
	Task          task.View      `json:"task"`
	AssignedUsers []user.Summary `json:"assigned_users"`
}

func actor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return id, ok
}

// ListTasks handles GET /tasks.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	views, err := h.Tasks.List(r.Context(), actorID)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if views == nil {
		views = []task.View{}
	}
	writeJSON(w, http.StatusOK, views)
}

// GetTask handles GET /tasks/{id}.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	v, err := h.Tasks.Get(r.Context(), id, actorID)
	if err != nil {
		writeDomainError(w, r, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// CreateTask handles POST /tasks.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[task.CreateRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}
	v, err := h.Tasks.Create(r.Context(), actorID, &req)
	if err != nil {
		writeDomainError(w, r, err, "task not found")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// UpdateTask handles PUT /tasks/{id}.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[task.UpdateRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}
	res, err := h.Tasks.Update(r.Context(), id, actorID, &req)
	if err != nil {
		writeDomainError(w, r, err, "task not found")
		return
	}
	msg := "task updated"
	if !res.Changed {
		msg = "no changes"
	}
	writeJSON(w, http.StatusOK, updateResponse{Message: msg, Changed: res.Changed, Task: res.Task})
}

// DeleteTask handles DELETE /tasks/{id}.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	if err := h.Tasks.Delete(r.Context(), id, actorID); err != nil {
		writeDomainError(w, r, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "task deleted"})
}

// AssignUsers handles POST /tasks/{id}/assign.
func (h *Handlers) AssignUsers(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[task.AssignRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}
	res, err := h.Tasks.Assign(r.Context(), id, actorID, &req)
	if err != nil {
		writeDomainError(w, r, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, assignResponse{
		Message:       "users assigned",
		Task:          res.Task,
		AssignedUsers: res.AssignedUsers,
	})
}

// ListHistory handles GET /task-history.
func (h *Handlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.Tasks.History(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

type healthStatus struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres,omitempty"`
	NATS     string `json:"nats,omitempty"`
}

// Health handles GET /health. It only reports that the process is serving.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthStatus{Status: "ok"})
}

// Ready handles GET /health/ready. Only Postgres affects the status code;
// NATS state is reported as is.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := healthStatus{Status: "ok", Postgres: "up"}
	code := http.StatusOK
	if h.DB != nil {
		if err := h.DB.Ping(ctx); err != nil {
			status.Status = "unavailable"
			status.Postgres = "down"
			code = http.StatusServiceUnavailable
		}
	}
	if h.Queue != nil {
		status.NATS = "up"
		if !h.Queue.IsConnected() {
			status.NATS = "down"
		}
	}
	writeJSON(w, code, status)
}
