package messagequeue

import (
	"github.com/TheOliver413/taskmanager-back/internal/domain/task"
	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
)

// EventTaskUpdated is the event name carried on the tasks channel.
const EventTaskUpdated = "TaskUpdatedEvent"

// TaskUpdatedPayload is the schema of messages on the tasks channel:
// the fresh task plus its assignees in assignment order.
type TaskUpdatedPayload struct {
	Event         string         `json:"event"`
	Task          task.Task      `json:"task"`
	AssignedUsers []user.Summary `json:"assigned_users"`
}
