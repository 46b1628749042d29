package memstore

import (
	"context"
	"time"

	"github.com/ryandotelliott/dead-internet/internal/profile"
)

// GetProfile returns a copy of a profile by ID.
func (s *Store) GetProfile(_ context.Context, profileID string) (*profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileID]
	if !ok {
		return nil, profile.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

// GetByEmail returns the profile owning a normalized address.
func (s *Store) GetByEmail(ctx context.Context, email string) (*profile.Profile, error) {
	s.mu.Lock()
	id, ok := s.byEmail[email]
	s.mu.Unlock()
	if !ok {
		return nil, profile.ErrProfileNotFound
	}
	return s.GetProfile(ctx, id)
}

// GetByAuthUser returns the human profile bound to an authenticated user.
func (s *Store) GetByAuthUser(ctx context.Context, authUserID string) (*profile.Profile, error) {
	s.mu.Lock()
	id, ok := s.byAuth[authUserID]
	s.mu.Unlock()
	if !ok {
		return nil, profile.ErrProfileNotFound
	}
	return s.GetProfile(ctx, id)
}

// CreateProfile inserts p, failing when its address or auth user is taken.
func (s *Store) CreateProfile(_ context.Context, p *profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[p.Email]; ok {
		return profile.ErrEmailTaken
	}
	if p.AuthUserID != "" {
		if _, ok := s.byAuth[p.AuthUserID]; ok {
			return profile.ErrAuthUserTaken
		}
		s.byAuth[p.AuthUserID] = p.ID
	}
	cp := *p
	s.profiles[p.ID] = &cp
	s.byEmail[p.Email] = p.ID
	return nil
}

// SetPersona stores generated persona fields and marks the persona ready.
func (s *Store) SetPersona(_ context.Context, profileID string, fields profile.PersonaFields, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileID]
	if !ok || !p.IsPersona() {
		return profile.ErrProfileNotFound
	}
	p.Name = fields.Name
	p.PersonaSummary = fields.Summary
	p.PersonaCategory = fields.Category
	p.PersonaState = profile.PersonaReady
	p.UpdatedAt = updatedAt
	return nil
}

var _ profile.Store = (*Store)(nil)
