package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
)

// DecodeTaskUpdated parses and checks a tasks channel message.
func DecodeTaskUpdated(data []byte) (*TaskUpdatedPayload, error) {
	if !json.Valid(data) {
		return nil, errors.New("invalid JSON on tasks channel")
	}

	var p TaskUpdatedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	if p.Event != EventTaskUpdated {
		return nil, fmt.Errorf("unexpected event %q", p.Event)
	}
	if p.Task.ID <= 0 {
		return nil, errors.New("missing task id")
	}
	if p.AssignedUsers == nil {
		p.AssignedUsers = []user.Summary{}
	}
	return &p, nil
}
