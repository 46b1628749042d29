// Package email stores the canonical message log and the per-owner mailbox
// entries that project it into folders.
package email

import (
	"fmt"
	"time"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
)

// Folder is the mailbox folder an entry lives in.
type Folder string

const (
	FolderInbox Folder = "inbox"
	FolderSent  Folder = "sent"
	FolderTrash Folder = "trash"
)

// ParseFolder validates a folder name.
func ParseFolder(s string) (Folder, error) {
	switch f := Folder(s); f {
	case FolderInbox, FolderSent, FolderTrash:
		return f, nil
	}
	return "", apperr.Validation(fmt.Sprintf("unknown folder %q", s))
}

// Role is how an entry's owner was addressed.
type Role string

const (
	RoleSender Role = "sender"
	RoleTo     Role = "to"
	RoleCC     Role = "cc"
)

// Message is one immutable message in a thread.
type Message struct {
	ID        string
	SenderID  string
	Subject   string
	Body      string
	ThreadID  string
	CreatedAt time.Time
}

// Entry is one owner's view of a message.
type Entry struct {
	ID        string
	SenderID  string
	OwnerID   string
	MessageID string
	Role      Role
	Folder    Folder
	Read      bool
	Subject   string
	ThreadID  string
	CreatedAt time.Time
}

// Participant records that an owner holds an entry for a message.
type Participant struct {
	OwnerID string
	EntryID string
	Role    Role
}

// ReplyMarker records that a persona has replied to a message.
type ReplyMarker struct {
	MessageID string
	ProfileID string
	ReplyID   string
}

// Delivery is everything written for one sent message.
type Delivery struct {
	Message *Message
	Entries []*Entry
	// Marker is set for persona replies so a retried reply is rejected.
	Marker *ReplyMarker
}
