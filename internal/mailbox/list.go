package mailbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ryandotelliott/dead-internet/internal/bodytext"
	"github.com/ryandotelliott/dead-internet/internal/email"
	"github.com/ryandotelliott/dead-internet/internal/profile"
)

// enrichConcurrency bounds concurrent lookups while enriching a listing.
const enrichConcurrency = 8

// Recipient is a resolved recipient of a listed message.
type Recipient struct {
	ProfileID string
	Name      string
	Email     string
}

// FolderItem is one row of a folder listing.
type FolderItem struct {
	Entry       *email.Entry
	SenderName  string
	SenderEmail string
	Body        string
	Preview     string
	Recipients  []Recipient
}

// ListFolder returns the owner's entries in folder, newest first, with at
// most one row per thread. Rows whose message or sender profile is missing
// are left out.
func (s *Service) ListFolder(ctx context.Context, ownerID, folder string, limit int) ([]*FolderItem, error) {
	f, err := email.ParseFolder(folder)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	entries, err := s.store.FolderEntries(ctx, ownerID, f, limit)
	if err != nil {
		return nil, err
	}
	entries = latestPerThread(entries)

	cache := newProfileCache(s.profiles)
	items := make([]*FolderItem, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, entry := range entries {
		g.Go(func() error {
			item, err := s.enrich(gctx, cache, entry)
			if err != nil {
				return err
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*FolderItem, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, item)
		}
	}
	return out, nil
}

// latestPerThread keeps the first entry seen for each thread. Input is
// newest first, so the latest entry wins.
func latestPerThread(entries []*email.Entry) []*email.Entry {
	seen := make(map[string]bool, len(entries))
	out := make([]*email.Entry, 0, len(entries))
	for _, e := range entries {
		if seen[e.ThreadID] {
			continue
		}
		seen[e.ThreadID] = true
		out = append(out, e)
	}
	return out
}

// enrich returns nil, nil for an entry that must be skipped.
func (s *Service) enrich(ctx context.Context, cache *profileCache, entry *email.Entry) (*FolderItem, error) {
	sender, err := cache.get(ctx, entry.SenderID)
	if errors.Is(err, profile.ErrProfileNotFound) {
		s.logger.ErrorContext(ctx, "Sender profile not found",
			slog.String("entry_id", entry.ID),
			slog.String("sender_id", entry.SenderID),
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	msg, err := s.store.GetMessage(ctx, entry.MessageID)
	if errors.Is(err, email.ErrMessageNotFound) {
		s.logger.ErrorContext(ctx, "Message not found",
			slog.String("entry_id", entry.ID),
			slog.String("message_id", entry.MessageID),
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	recipients, err := s.recipients(ctx, cache, msg)
	if err != nil {
		return nil, err
	}

	return &FolderItem{
		Entry:       entry,
		SenderName:  sender.DisplayName(),
		SenderEmail: sender.Email,
		Body:        msg.Body,
		Preview:     bodytext.Preview(msg.Body, bodytext.DefaultPreviewLength),
		Recipients:  recipients,
	}, nil
}

// recipients resolves the distinct entry owners of msg other than its sender.
func (s *Service) recipients(ctx context.Context, cache *profileCache, msg *email.Message) ([]Recipient, error) {
	participants, err := s.store.Participants(ctx, msg.ID)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{msg.SenderID: true}
	var out []Recipient
	for _, p := range participants {
		if seen[p.OwnerID] {
			continue
		}
		seen[p.OwnerID] = true

		prof, err := cache.get(ctx, p.OwnerID)
		if errors.Is(err, profile.ErrProfileNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Recipient{ProfileID: prof.ID, Name: prof.DisplayName(), Email: prof.Email})
	}
	return out, nil
}

// profileCache memoizes profile lookups for the duration of one listing.
type profileCache struct {
	reader ProfileReader
	mu     sync.Mutex
	byID   map[string]*profile.Profile
}

func newProfileCache(reader ProfileReader) *profileCache {
	return &profileCache{reader: reader, byID: make(map[string]*profile.Profile)}
}

func (c *profileCache) get(ctx context.Context, id string) (*profile.Profile, error) {
	c.mu.Lock()
	p, ok := c.byID[id]
	c.mu.Unlock()
	if ok {
		return p, nil
	}

	p, err := c.reader.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byID[id] = p
	c.mu.Unlock()
	return p, nil
}
