package memstore

import (
	"context"
	"sort"

	"github.com/ryandotelliott/dead-internet/internal/agentthread"
	"github.com/ryandotelliott/dead-internet/internal/conversation"
)

type conversationRecord struct {
	thread conversation.Thread
	turns  []conversation.Turn
}

func linkKey(threadID, profileID string) string {
	return threadID + "#" + profileID
}

// GetLink returns the agent thread link of a thread and persona.
func (s *Store) GetLink(_ context.Context, threadID, profileID string) (*agentthread.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle, ok := s.links[linkKey(threadID, profileID)]
	if !ok {
		return nil, agentthread.ErrLinkNotFound
	}
	return &agentthread.Link{ThreadID: threadID, ProfileID: profileID, AgentThreadID: handle}, nil
}

// PutLink inserts a link unless the pair is already linked.
func (s *Store) PutLink(_ context.Context, l *agentthread.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := linkKey(l.ThreadID, l.ProfileID)
	if _, ok := s.links[key]; ok {
		return agentthread.ErrLinkExists
	}
	s.links[key] = l.AgentThreadID
	return nil
}

// LinkCount returns the number of agent thread links.
func (s *Store) LinkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

// CreateThread records a conversation unless it exists.
func (s *Store) CreateThread(_ context.Context, t *conversation.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[t.ID]; !ok {
		s.convs[t.ID] = &conversationRecord{thread: *t}
	}
	return nil
}

// ConversationCount returns the number of conversation records.
func (s *Store) ConversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.convs {
		if c.thread.ID != "" {
			n++
		}
	}
	return n
}

// Turns returns up to limit of the latest turns of a conversation, oldest
// first.
func (s *Store) Turns(_ context.Context, threadID string, limit int) ([]conversation.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[threadID]
	if !ok {
		return nil, nil
	}
	turns := c.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]conversation.Turn(nil), turns...), nil
}

// Append adds turns to a conversation.
func (s *Store) Append(_ context.Context, threadID string, turns ...conversation.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[threadID]
	if !ok {
		c = &conversationRecord{}
		s.convs[threadID] = c
	}
	c.turns = append(c.turns, turns...)
	sort.SliceStable(c.turns, func(i, j int) bool {
		return c.turns[i].CreatedAt.Before(c.turns[j].CreatedAt)
	})
	return nil
}

var (
	_ agentthread.Store               = (*Store)(nil)
	_ agentthread.ConversationCreator = (*Store)(nil)
	_ conversation.TurnStore          = (*Store)(nil)
)
