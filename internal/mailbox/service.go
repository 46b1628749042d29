// Package mailbox projects the message log into per-owner folders: it
// delivers messages to every participant and serves folder listings and
// entry mutations on behalf of the owner.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/email"
	"github.com/ryandotelliott/dead-internet/internal/profile"
)

const (
	// DefaultListLimit is the folder listing size when none is requested.
	DefaultListLimit = 50
	// MaxListLimit caps a folder listing.
	MaxListLimit = 200
	// MaxRecipients keeps one delivery within a single transaction.
	MaxRecipients = 45
)

// ProfileReader loads profiles by ID.
type ProfileReader interface {
	GetProfile(ctx context.Context, profileID string) (*profile.Profile, error)
}

// Service implements delivery and folder operations.
type Service struct {
	store    email.Store
	profiles ProfileReader
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewService creates a Service.
func NewService(store email.Store, profiles ProfileReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:    store,
		profiles: profiles,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Outgoing is a message to deliver.
type Outgoing struct {
	SenderID string
	To       []string
	CC       []string
	Subject  string
	Body     string
	// ThreadID continues an existing thread. Empty starts a new one.
	ThreadID string
}

// Receipt identifies a delivered message.
type Receipt struct {
	MessageID string
	ThreadID  string
}

// Deliver sends a message on behalf of its sender. Continuing a thread
// requires the sender to hold an entry in it.
func (s *Service) Deliver(ctx context.Context, out Outgoing) (*Receipt, error) {
	if out.ThreadID != "" {
		if err := s.authorizeThread(ctx, out.SenderID, out.ThreadID); err != nil {
			return nil, err
		}
	}
	return s.deliver(ctx, out, "")
}

// DeliverSystem sends a persona reply to replyTo without caller
// authorization. The delivery carries a reply marker, so a second reply by
// the same sender to the same message fails with email.ErrReplyExists.
func (s *Service) DeliverSystem(ctx context.Context, out Outgoing, replyTo string) (*Receipt, error) {
	return s.deliver(ctx, out, replyTo)
}

func (s *Service) authorizeThread(ctx context.Context, senderID, threadID string) error {
	entries, err := s.store.ThreadEntries(ctx, senderID, threadID)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return nil
	}
	msgs, err := s.store.ThreadMessages(ctx, threadID)
	if err != nil {
		return err
	}
	if len(msgs) > 0 {
		return apperr.Unauthorized("sender is not part of this thread")
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, out Outgoing, replyTo string) (*Receipt, error) {
	to := distinct(out.To, nil)
	cc := distinct(out.CC, to)
	if len(to) == 0 {
		return nil, apperr.Validation("at least one recipient is required")
	}
	if len(to)+len(cc) > MaxRecipients {
		return nil, apperr.Validation(fmt.Sprintf("at most %d recipients are allowed", MaxRecipients))
	}

	if _, err := s.profiles.GetProfile(ctx, out.SenderID); err != nil {
		return nil, fmt.Errorf("sender %s: %w", out.SenderID, err)
	}
	for _, id := range append(append([]string{}, to...), cc...) {
		if _, err := s.profiles.GetProfile(ctx, id); err != nil {
			return nil, fmt.Errorf("recipient %s: %w", id, err)
		}
	}

	threadID := out.ThreadID
	if threadID == "" {
		threadID = s.newID()
	}
	now := s.now().UTC()
	msg := &email.Message{
		ID:        s.newID(),
		SenderID:  out.SenderID,
		Subject:   out.Subject,
		Body:      out.Body,
		ThreadID:  threadID,
		CreatedAt: now,
	}

	d := &email.Delivery{Message: msg}
	d.Entries = append(d.Entries, s.entry(msg, out.SenderID, email.RoleSender))
	for _, id := range to {
		d.Entries = append(d.Entries, s.entry(msg, id, email.RoleTo))
	}
	for _, id := range cc {
		d.Entries = append(d.Entries, s.entry(msg, id, email.RoleCC))
	}
	if replyTo != "" {
		d.Marker = &email.ReplyMarker{MessageID: replyTo, ProfileID: out.SenderID, ReplyID: msg.ID}
	}

	if err := s.store.Deliver(ctx, d); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Delivered message",
		slog.String("message_id", msg.ID),
		slog.String("thread_id", threadID),
		slog.String("sender_id", out.SenderID),
		slog.Int("recipient_count", len(to)+len(cc)),
	)
	return &Receipt{MessageID: msg.ID, ThreadID: threadID}, nil
}

// entry builds the mailbox entry owned by ownerID. The sender's copy is
// filed as sent and already read.
func (s *Service) entry(msg *email.Message, ownerID string, role email.Role) *email.Entry {
	folder, read := email.FolderInbox, false
	if role == email.RoleSender {
		folder, read = email.FolderSent, true
	}
	return &email.Entry{
		ID:        s.newID(),
		SenderID:  msg.SenderID,
		OwnerID:   ownerID,
		MessageID: msg.ID,
		Role:      role,
		Folder:    folder,
		Read:      read,
		Subject:   msg.Subject,
		ThreadID:  msg.ThreadID,
		CreatedAt: msg.CreatedAt,
	}
}

// MarkRead sets the read flag of one of the owner's entries.
func (s *Service) MarkRead(ctx context.Context, ownerID, entryID string, read bool) error {
	entry, err := s.ownedEntry(ctx, ownerID, entryID)
	if err != nil {
		return err
	}
	if entry.Read == read {
		return nil
	}
	return s.store.SetRead(ctx, entry, read)
}

// Delete moves one of the owner's entries to trash, or removes it for good
// when it is already there.
func (s *Service) Delete(ctx context.Context, ownerID, entryID string) error {
	entry, err := s.ownedEntry(ctx, ownerID, entryID)
	if err != nil {
		return err
	}
	if entry.Folder != email.FolderTrash {
		return s.store.SetFolder(ctx, entry, email.FolderTrash)
	}
	if err := s.store.DeleteEntry(ctx, entry); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Removed mailbox entry",
		slog.String("entry_id", entryID),
		slog.String("owner_id", ownerID),
	)
	return nil
}

func (s *Service) ownedEntry(ctx context.Context, ownerID, entryID string) (*email.Entry, error) {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.OwnerID != ownerID {
		return nil, apperr.Unauthorized("entry belongs to another mailbox")
	}
	return entry, nil
}

// ListThread returns the owner's entries in a thread, oldest first.
func (s *Service) ListThread(ctx context.Context, ownerID, threadID string) ([]*email.Entry, error) {
	if threadID == "" {
		return nil, apperr.Validation("thread id is required")
	}
	return s.store.ThreadEntries(ctx, ownerID, threadID)
}

// MarkThreadRead marks every unread entry the owner holds in a thread as
// read and returns how many changed.
func (s *Service) MarkThreadRead(ctx context.Context, ownerID, threadID string) (int, error) {
	entries, err := s.ListThread(ctx, ownerID, threadID)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, entry := range entries {
		if entry.Read {
			continue
		}
		if err := s.store.SetRead(ctx, entry, true); err != nil {
			if errors.Is(err, email.ErrEntryNotFound) {
				continue
			}
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// distinct drops empty and repeated IDs, and any ID in exclude, keeping order.
func distinct(ids, exclude []string) []string {
	seen := make(map[string]bool, len(ids)+len(exclude))
	for _, id := range exclude {
		seen[id] = true
	}
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
