package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/dynamo"
	"github.com/ryandotelliott/dead-internet/internal/email"
)

func markerKey(messageID, profileID string) string {
	return messageID + "#" + profileID
}

// Deliver applies a delivery atomically. It fails with
// email.ErrReplyExists when the reply marker is already present.
func (s *Store) Deliver(_ context.Context, d *email.Delivery) error {
	items := 2 + 2*len(d.Entries)
	if d.Marker != nil {
		items++
	}
	if items > dynamo.MaxTransactItems {
		return apperr.Validation(fmt.Sprintf("delivery needs %d writes, limit is %d", items, dynamo.MaxTransactItems))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[d.Message.ID]; ok {
		return fmt.Errorf("%w: message %s exists", email.ErrTransactionFailed, d.Message.ID)
	}
	if d.Marker != nil {
		if _, ok := s.markers[markerKey(d.Marker.MessageID, d.Marker.ProfileID)]; ok {
			return email.ErrReplyExists
		}
		m := *d.Marker
		s.markers[markerKey(m.MessageID, m.ProfileID)] = &m
	}
	msg := *d.Message
	s.messages[msg.ID] = &msg
	for _, e := range d.Entries {
		cp := *e
		s.entries[cp.ID] = &cp
	}
	return nil
}

// GetMessage returns a message by ID.
func (s *Store) GetMessage(_ context.Context, messageID string) (*email.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return nil, email.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

// ThreadMessages returns a thread's messages, oldest first.
func (s *Store) ThreadMessages(_ context.Context, threadID string) ([]*email.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*email.Message
	for _, m := range s.messages {
		if m.ThreadID == threadID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ThreadSK() < out[j].ThreadSK()
	})
	return out, nil
}

// Participants returns the holders of entries for a message, ordered by
// entry ID.
func (s *Store) Participants(_ context.Context, messageID string) ([]email.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []email.Participant
	for _, e := range s.entries {
		if e.MessageID == messageID {
			out = append(out, email.Participant{OwnerID: e.OwnerID, EntryID: e.ID, Role: e.Role})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EntryID < out[j].EntryID
	})
	return out, nil
}

// ReplyExists reports whether profileID has replied to messageID.
func (s *Store) ReplyExists(_ context.Context, messageID, profileID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.markers[markerKey(messageID, profileID)]
	return ok, nil
}

// GetEntry returns a mailbox entry by ID.
func (s *Store) GetEntry(_ context.Context, entryID string) (*email.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return nil, email.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

// FolderEntries returns up to limit of an owner's entries in a folder,
// newest first.
func (s *Store) FolderEntries(_ context.Context, ownerID string, folder email.Folder, limit int) ([]*email.Entry, error) {
	out := s.selectEntries(func(e *email.Entry) bool {
		return e.OwnerID == ownerID && e.Folder == folder
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].IndexSK() > out[j].IndexSK()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ThreadEntries returns an owner's entries in a thread, oldest first.
func (s *Store) ThreadEntries(_ context.Context, ownerID, threadID string) ([]*email.Entry, error) {
	out := s.selectEntries(func(e *email.Entry) bool {
		return e.OwnerID == ownerID && e.ThreadID == threadID
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].IndexSK() < out[j].IndexSK()
	})
	return out, nil
}

func (s *Store) selectEntries(match func(*email.Entry) bool) []*email.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*email.Entry
	for _, e := range s.entries {
		if match(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// SetRead updates the read flag of an entry still owned by entry.OwnerID.
func (s *Store) SetRead(_ context.Context, entry *email.Entry, read bool) error {
	return s.updateEntry(entry, func(e *email.Entry) { e.Read = read })
}

// SetFolder moves an entry to folder.
func (s *Store) SetFolder(_ context.Context, entry *email.Entry, folder email.Folder) error {
	return s.updateEntry(entry, func(e *email.Entry) { e.Folder = folder })
}

func (s *Store) updateEntry(entry *email.Entry, apply func(*email.Entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entry.ID]
	if !ok || e.OwnerID != entry.OwnerID {
		return email.ErrEntryNotFound
	}
	apply(e)
	return nil
}

// DeleteEntry removes an entry.
func (s *Store) DeleteEntry(_ context.Context, entry *email.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entry.ID]
	if !ok || e.OwnerID != entry.OwnerID {
		return email.ErrEntryNotFound
	}
	delete(s.entries, entry.ID)
	return nil
}

var _ email.Store = (*Store)(nil)
