package agentthread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ryandotelliott/dead-internet/internal/conversation"
)

// Store is the link persistence used by Linker.
type Store interface {
	GetLink(ctx context.Context, threadID, profileID string) (*Link, error)
	PutLink(ctx context.Context, l *Link) error
}

// ConversationCreator creates conversation records.
type ConversationCreator interface {
	CreateThread(ctx context.Context, t *conversation.Thread) error
}

// Linker ensures each (thread, persona) pair has exactly one conversation.
type Linker struct {
	store  Store
	convs  ConversationCreator
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewLinker creates a Linker.
func NewLinker(store Store, convs ConversationCreator, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Linker{
		store:  store,
		convs:  convs,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Ensure returns the link for threadID and profileID, creating it and its
// conversation on first use. Concurrent callers all get the same handle.
func (l *Linker) Ensure(ctx context.Context, threadID, profileID string) (*Link, error) {
	link, err := l.store.GetLink(ctx, threadID, profileID)
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, ErrLinkNotFound) {
		return nil, err
	}

	link = &Link{
		ThreadID:      threadID,
		ProfileID:     profileID,
		AgentThreadID: l.newID(),
		CreatedAt:     l.now().UTC(),
	}
	if err := l.store.PutLink(ctx, link); err != nil {
		if !errors.Is(err, ErrLinkExists) {
			return nil, err
		}
		return l.store.GetLink(ctx, threadID, profileID)
	}

	// Only the winner creates the conversation record. Turns are keyed by the
	// handle alone, so a link whose record write failed still works.
	if err := l.convs.CreateThread(ctx, &conversation.Thread{
		ID:        link.AgentThreadID,
		ProfileID: profileID,
		CreatedAt: link.CreatedAt,
	}); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	l.logger.InfoContext(ctx, "Linked agent thread",
		slog.String("thread_id", threadID),
		slog.String("profile_id", profileID),
		slog.String("agent_thread_id", link.AgentThreadID),
	)
	return link, nil
}
