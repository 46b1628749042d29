// Package conversation keeps the model-side conversation threads personas
// speak through and calls the language model for structured answers.
package conversation

import (
	"fmt"
	"time"

	"github.com/ryandotelliott/dead-internet/internal/dynamo"
)

// Role is the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Thread is a conversation handle owned by one persona.
type Thread struct {
	ID        string
	ProfileID string
	CreatedAt time.Time
}

// Turn is one stored exchange step of a conversation.
type Turn struct {
	Role      Role
	Content   string
	CreatedAt time.Time
}

const skMeta = "META"

// PK returns the partition key for this conversation.
func (t *Thread) PK() string {
	return dynamo.PrefixConversation + t.ID
}

// SK returns the sort key of the conversation record.
func (t *Thread) SK() string {
	return skMeta
}

// turnSK orders turns by creation time and position within one append.
func turnSK(turn Turn, seq int) string {
	return fmt.Sprintf("%s%s#%04d", dynamo.PrefixTurn, dynamo.SortTime(turn.CreatedAt), seq)
}
