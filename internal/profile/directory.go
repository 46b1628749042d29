package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/taskqueue"
)

// Store is the profile persistence used by Directory.
type Store interface {
	GetProfile(ctx context.Context, profileID string) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	GetByAuthUser(ctx context.Context, authUserID string) (*Profile, error)
	CreateProfile(ctx context.Context, p *Profile) error
	SetPersona(ctx context.Context, profileID string, fields PersonaFields, updatedAt time.Time) error
}

// Directory resolves email addresses to profiles.
type Directory struct {
	store  Store
	tasks  taskqueue.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewDirectory creates a Directory. Persona generation for new profiles is
// published to tasks.
func NewDirectory(store Store, tasks taskqueue.Publisher, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Directory{
		store:  store,
		tasks:  tasks,
		logger: logger,
		now:    time.Now,
	}
}

// GetProfile returns a profile by ID.
func (d *Directory) GetProfile(ctx context.Context, profileID string) (*Profile, error) {
	return d.store.GetProfile(ctx, profileID)
}

// EnsureProfile returns the profile owning email. An unknown address gets a
// pending persona profile, and persona generation is scheduled with
// seedContext for every persona still missing its fields.
func (d *Directory) EnsureProfile(ctx context.Context, email, seedContext string) (*Profile, error) {
	email = NormalizeEmail(email)
	if err := ValidateAddress(email); err != nil {
		return nil, err
	}

	p, err := d.store.GetByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, ErrProfileNotFound):
		p, err = d.createPersona(ctx, email)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if p.NeedsGeneration() {
		d.schedulePersona(ctx, p, seedContext)
	}
	return p, nil
}

// createPersona inserts a pending persona. A concurrent caller that reserved
// the address first wins and its profile is returned.
func (d *Directory) createPersona(ctx context.Context, email string) (*Profile, error) {
	p := NewPersona(email, d.now())
	err := d.store.CreateProfile(ctx, p)
	if errors.Is(err, ErrEmailTaken) {
		d.logger.InfoContext(ctx, "Profile created concurrently, using existing",
			slog.String("email", email),
		)
		return d.store.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}

	d.logger.InfoContext(ctx, "Created persona profile",
		slog.String("profile_id", p.ID),
		slog.String("email", email),
	)
	return p, nil
}

func (d *Directory) schedulePersona(ctx context.Context, p *Profile, seedContext string) {
	if d.tasks == nil {
		return
	}
	if err := d.tasks.Publish(ctx, taskqueue.GeneratePersona(p.ID, seedContext, p.Email)); err != nil {
		// The profile stays pending; the next message to it schedules again.
		d.logger.WarnContext(ctx, "Failed to schedule persona generation",
			slog.String("profile_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

// EnsureHumanProfile returns the profile bound to authUserID, creating it on
// first use. An address already owned by a persona cannot be claimed.
func (d *Directory) EnsureHumanProfile(ctx context.Context, authUserID, name, email string) (*Profile, error) {
	if authUserID == "" {
		return nil, apperr.Unauthorized("missing account")
	}

	existing, err := d.store.GetByAuthUser(ctx, authUserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	p := NewHuman(authUserID, name, email, d.now())
	if p.Name == "" {
		return nil, apperr.Validation("name is required")
	}
	if err := ValidateAddress(p.Email); err != nil {
		return nil, err
	}

	err = d.store.CreateProfile(ctx, p)
	switch {
	case err == nil:
		d.logger.InfoContext(ctx, "Created human profile",
			slog.String("profile_id", p.ID),
			slog.String("auth_user_id", authUserID),
		)
		return p, nil
	case errors.Is(err, ErrAuthUserTaken):
		return d.store.GetByAuthUser(ctx, authUserID)
	case errors.Is(err, ErrEmailTaken):
		owner, lookupErr := d.store.GetByEmail(ctx, p.Email)
		if lookupErr == nil && owner.IsPersona() {
			return nil, apperr.Validation(fmt.Sprintf("%s belongs to a persona", p.Email))
		}
		return nil, err
	default:
		return nil, err
	}
}

// ResolveRecipients maps raw addresses to profile IDs in first-seen order.
// Blank entries are dropped and repeated addresses collapse to one.
func (d *Directory) ResolveRecipients(ctx context.Context, rawEmails []string, seedContext string) ([]string, error) {
	seen := make(map[string]bool, len(rawEmails))
	var emails []string
	for _, raw := range rawEmails {
		email := NormalizeEmail(raw)
		if email == "" || seen[email] {
			continue
		}
		if err := ValidateAddress(email); err != nil {
			return nil, err
		}
		seen[email] = true
		emails = append(emails, email)
	}
	if len(emails) == 0 {
		return nil, apperr.Validation("at least one recipient is required")
	}

	ids := make([]string, 0, len(emails))
	for _, email := range emails {
		p, err := d.EnsureProfile(ctx, email, seedContext)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", email, err)
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// ValidateAddress checks that email is a bare addr-spec.
func ValidateAddress(email string) error {
	if email == "" {
		return apperr.Validation("email address is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation(fmt.Sprintf("invalid email address %q", email))
	}
	return nil
}
