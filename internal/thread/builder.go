// Package thread assembles the chronological context of a thread for
// display and for persona reply drafting.
package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/bodytext"
	"github.com/ryandotelliott/dead-internet/internal/email"
	"github.com/ryandotelliott/dead-internet/internal/profile"
)

// DefaultLimit is the number of messages kept when no limit is given.
const DefaultLimit = 20

// MessageReader is the part of the message store the builder reads.
type MessageReader interface {
	ThreadMessages(ctx context.Context, threadID string) ([]*email.Message, error)
	Participants(ctx context.Context, messageID string) ([]email.Participant, error)
}

// ProfileReader loads profiles by ID.
type ProfileReader interface {
	GetProfile(ctx context.Context, profileID string) (*profile.Profile, error)
}

// Person is an author or recipient of a message.
type Person struct {
	ProfileID string
	Name      string
	Email     string
}

// Message is one message of a thread context.
type Message struct {
	ID         string
	Author     Person
	Body       string
	CreatedAt  time.Time
	Recipients []Person
}

// Context is the recent history of a thread.
type Context struct {
	ThreadID string
	Subject  string
	Messages []Message
}

// Transcript renders the context as "Name <email>: text" lines, oldest
// first.
func (c *Context) Transcript() string {
	var b strings.Builder
	for i, m := range c.Messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s <%s>: %s", m.Author.Name, m.Author.Email, bodytext.PlainText(m.Body))
	}
	return b.String()
}

// Builder builds thread contexts.
type Builder struct {
	messages MessageReader
	profiles ProfileReader
	logger   *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(messages MessageReader, profiles ProfileReader, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{messages: messages, profiles: profiles, logger: logger}
}

// GetContext returns the last limit messages of a thread whose senders still
// exist. The subject is taken from the newest message, before filtering.
func (b *Builder) GetContext(ctx context.Context, threadID string, limit int) (*Context, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	msgs, err := b.messages.ThreadMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, apperr.NotFound(fmt.Sprintf("thread %s", threadID))
	}

	result := &Context{
		ThreadID: threadID,
		Subject:  msgs[len(msgs)-1].Subject,
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	people := make(map[string]*Person)
	lookup := func(id string) (*Person, error) {
		if p, ok := people[id]; ok {
			return p, nil
		}
		prof, err := b.profiles.GetProfile(ctx, id)
		if errors.Is(err, profile.ErrProfileNotFound) {
			people[id] = nil
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		p := &Person{ProfileID: prof.ID, Name: prof.DisplayName(), Email: prof.Email}
		people[id] = p
		return p, nil
	}

	for _, m := range msgs {
		author, err := lookup(m.SenderID)
		if err != nil {
			return nil, err
		}
		if author == nil {
			b.logger.WarnContext(ctx, "Skipping message with missing sender",
				slog.String("thread_id", threadID),
				slog.String("message_id", m.ID),
				slog.String("sender_id", m.SenderID),
			)
			continue
		}

		recipients, err := b.recipients(ctx, m, lookup)
		if err != nil {
			return nil, err
		}
		result.Messages = append(result.Messages, Message{
			ID:         m.ID,
			Author:     *author,
			Body:       m.Body,
			CreatedAt:  m.CreatedAt,
			Recipients: recipients,
		})
	}
	return result, nil
}

func (b *Builder) recipients(ctx context.Context, m *email.Message, lookup func(string) (*Person, error)) ([]Person, error) {
	participants, err := b.messages.Participants(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{m.SenderID: true}
	var out []Person
	for _, p := range participants {
		if seen[p.OwnerID] {
			continue
		}
		seen[p.OwnerID] = true
		person, err := lookup(p.OwnerID)
		if err != nil {
			return nil, err
		}
		if person != nil {
			out = append(out, *person)
		}
	}
	return out, nil
}
