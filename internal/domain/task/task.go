// Package task defines the Task domain entity and its request types.
package task

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TheOliver413/taskmanager-back/internal/domain"
	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
)

// Status is an open-ended task state. Only StatusPending and StatusDeleted
// carry meaning to the core.
type Status string

const (
	// StatusPending is assigned on create when no status is given.
	StatusPending Status = "pendiente"
	// StatusDeleted marks a soft-deleted task. The row is never removed.
	StatusDeleted Status = "eliminada"
)

// Field limits, matching the column sizes of the tasks table. The
// description column is unbounded text.
const (
	MaxTitleLength  = 255
	MaxStatusLength = 50
)

// Task is a unit of work created by one user and shared with its assignees.
type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatorID   int64     `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsDeleted reports whether the task has been soft-deleted.
func (t *Task) IsDeleted() bool {
	return t.Status == StatusDeleted
}

// View is a task as seen by one user: visibility flags plus the current
// assignee list in assignment order.
type View struct {
	Task
	AssignedToMe  bool           `json:"assigned_to_me"`
	CreatedByMe   bool           `json:"created_by_me"`
	AssignedUsers []user.Summary `json:"assigned_users"`
}

// CreateRequest holds the fields accepted when creating a task.
type CreateRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      *string `json:"status"`
}

// Normalize trims input and fills the default status.
func (r *CreateRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	trimPtr(&r.Status)
	if r.Status == nil || *r.Status == "" {
		s := string(StatusPending)
		r.Status = &s
	}
}

// Validate checks a normalized CreateRequest.
func (r *CreateRequest) Validate() error {
	v := domain.NewValidationError()
	checkTitle(v, r.Title)
	if r.Status != nil {
		checkStatus(v, *r.Status)
	}
	return v.OrNil()
}

// UpdateRequest holds a partial update. Nil fields were absent from the
// request (or explicitly null) and are left untouched.
type UpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

// Normalize trims every present field.
func (r *UpdateRequest) Normalize() {
	trimPtr(&r.Title)
	trimPtr(&r.Description)
	trimPtr(&r.Status)
}

// Validate checks a normalized UpdateRequest.
func (r *UpdateRequest) Validate() error {
	v := domain.NewValidationError()
	if r.Title != nil {
		checkTitle(v, *r.Title)
	}
	if r.Status != nil {
		if *r.Status == "" {
			v.Add("status", "must not be empty")
		} else {
			checkStatus(v, *r.Status)
		}
	}
	return v.OrNil()
}

// Change is a single field transition.
type Change struct {
	Field string
	From  string
	To    string
}

func (c Change) String() string {
	return fmt.Sprintf("%s changed from '%s' to '%s'", c.Field, c.From, c.To)
}

// Changeset is the ordered list of effective changes of an update:
// title, description, status.
type Changeset []Change

// Diff returns the fields of req whose value differs from current.
func Diff(current *Task, req *UpdateRequest) Changeset {
	var cs Changeset
	if req.Title != nil && *req.Title != current.Title {
		cs = append(cs, Change{Field: "title", From: current.Title, To: *req.Title})
	}
	if req.Description != nil && *req.Description != current.Description {
		cs = append(cs, Change{Field: "description", From: current.Description, To: *req.Description})
	}
	if req.Status != nil && Status(*req.Status) != current.Status {
		cs = append(cs, Change{Field: "status", From: string(current.Status), To: *req.Status})
	}
	return cs
}

// Empty reports whether nothing would change.
func (cs Changeset) Empty() bool {
	return len(cs) == 0
}

// Details renders the history line for an update.
func (cs Changeset) Details() string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, " | ")
}

// Apply writes the changes onto t.
func (cs Changeset) Apply(t *Task) {
	for _, c := range cs {
		switch c.Field {
		case "title":
			t.Title = c.To
		case "description":
			t.Description = c.To
		case "status":
			t.Status = Status(c.To)
		}
	}
}

// AssignRequest is the body of a bulk assignment.
type AssignRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

// Normalize drops duplicate ids while keeping request order.
func (r *AssignRequest) Normalize() {
	seen := make(map[int64]bool, len(r.UserIDs))
	out := make([]int64, 0, len(r.UserIDs))
	for _, id := range r.UserIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	r.UserIDs = out
}

// Validate checks the shape of the request. Whether the users exist is
// checked separately against the identity provider.
func (r *AssignRequest) Validate() error {
	v := domain.NewValidationError()
	if len(r.UserIDs) == 0 {
		v.Add("user_ids", "must contain at least one user id")
	}
	for _, id := range r.UserIDs {
		if id <= 0 {
			v.Add("user_ids", fmt.Sprintf("invalid user id %d", id))
		}
	}
	return v.OrNil()
}

func checkTitle(v *domain.ValidationError, title string) {
	switch {
	case title == "":
		v.Add("title", "is required")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		v.Add("title", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
	}
}

func checkStatus(v *domain.ValidationError, status string) {
	if utf8.RuneCountInString(status) > MaxStatusLength {
		v.Add("status", fmt.Sprintf("must be at most %d characters", MaxStatusLength))
	}
}

func trimPtr(p **string) {
	if *p == nil {
		return
	}
	s := strings.TrimSpace(**p)
	*p = &s
}
