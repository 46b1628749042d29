// Package memstore holds in-memory implementations of the mail core stores.
// It backs local runs and tests; every store is safe for concurrent use and
// applies each write atomically, mirroring the conditional writes of the
// DynamoDB repositories.
package memstore

import (
	"sync"

	"github.com/ryandotelliott/dead-internet/internal/email"
	"github.com/ryandotelliott/dead-internet/internal/profile"
)

// Store keeps every table in memory behind a single lock.
type Store struct {
	mu sync.Mutex

	profiles map[string]*profile.Profile
	byEmail  map[string]string
	byAuth   map[string]string
	messages map[string]*email.Message
	entries  map[string]*email.Entry
	markers  map[string]*email.ReplyMarker
	links    map[string]string
	convs    map[string]*conversationRecord
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		profiles: make(map[string]*profile.Profile),
		byEmail:  make(map[string]string),
		byAuth:   make(map[string]string),
		messages: make(map[string]*email.Message),
		entries:  make(map[string]*email.Entry),
		markers:  make(map[string]*email.ReplyMarker),
		links:    make(map[string]string),
		convs:    make(map[string]*conversationRecord),
	}
}
