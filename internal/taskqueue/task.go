// Package taskqueue carries background work between the send path and the
// workers that generate persona replies and persona profiles.
package taskqueue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type identifies the kind of background work a task requests.
type Type string

const (
	// TypeOrchestrate asks for persona replies to a delivered message.
	TypeOrchestrate Type = "orchestrate"
	// TypePersona asks for persona fields to be generated for a profile.
	TypePersona Type = "persona"
)

// ErrInvalidTask is returned for tasks missing the fields their type needs.
var ErrInvalidTask = errors.New("invalid task")

// Task is the queued payload. Only the fields relevant to Type are set.
type Task struct {
	Type      Type   `json:"type"`
	MessageID string `json:"messageId,omitempty"`
	ProfileID string `json:"profileId,omitempty"`
	Context   string `json:"context,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Orchestrate returns the task that triggers reply orchestration for messageID.
func Orchestrate(messageID string) Task {
	return Task{Type: TypeOrchestrate, MessageID: messageID}
}

// GeneratePersona returns the task that fills in persona fields for profileID.
func GeneratePersona(profileID, context, email string) Task {
	return Task{Type: TypePersona, ProfileID: profileID, Context: context, Email: email}
}

// IdempotencyKey identifies duplicate submissions of the same work.
func (t Task) IdempotencyKey() string {
	switch t.Type {
	case TypeOrchestrate:
		return "orchestrate:" + t.MessageID
	case TypePersona:
		return "persona:" + t.ProfileID
	default:
		return string(t.Type)
	}
}

// Validate checks that the task carries what its type needs.
func (t Task) Validate() error {
	switch t.Type {
	case TypeOrchestrate:
		if t.MessageID == "" {
			return fmt.Errorf("%w: orchestrate task without message id", ErrInvalidTask)
		}
	case TypePersona:
		if t.ProfileID == "" {
			return fmt.Errorf("%w: persona task without profile id", ErrInvalidTask)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTask, t.Type)
	}
	return nil
}

// Encode returns the JSON body of the task.
func (t Task) Encode() ([]byte, error) {
	return json.Marshal(t)
}

// Decode parses and validates a JSON task body.
func Decode(body []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}
