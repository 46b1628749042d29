// Package persona drafts names and summaries for persona profiles with the
// language model and writes them back to the profile directory.
package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/bodytext"
	"github.com/ryandotelliott/dead-internet/internal/conversation"
	"github.com/ryandotelliott/dead-internet/internal/profile"
)

const (
	minNameLength    = 3
	maxNameLength    = 80
	minSummaryLength = 24
	maxSummaryLength = 320
	// maxContextLength bounds the seed context offered to the model.
	maxContextLength = 2000

	// DefaultModelTimeout bounds a model call when no timeout is configured.
	DefaultModelTimeout = 30 * time.Second
)

const systemPrompt = `You simulate an aging corporate intranet directory inside a "dead internet" world.
Produce personas that feel plausible at a glance yet subtly uncanny, like fragments of
profiles that survived migrations, audits, and quiet data corruptions.

Tone and constraints:
- Professional, affectless, and corporate-first, with ossified jargon and softened euphemisms.
- Uncanny, but not comedic. No overt horror; prefer mild drift and bureaucratic menace.
- Allow 0-1 minor anomalies (e.g., obsolete job titles, slightly anachronistic phrasing,
  or a harmless bracketed tag like [REDACTED] once). Never break grammar or validity.
- Output must remain internally consistent and believable.
- Do not include markdown or lists in fields.`

// ProfileStore reads profiles and stores generated persona fields.
type ProfileStore interface {
	GetProfile(ctx context.Context, profileID string) (*profile.Profile, error)
	SetPersona(ctx context.Context, profileID string, fields profile.PersonaFields, updatedAt time.Time) error
}

// ObjectGenerator produces structured model answers.
type ObjectGenerator interface {
	GenerateObject(ctx context.Context, req conversation.Request, out any) (string, error)
}

// Generator fills in persona profiles.
type Generator struct {
	profiles ProfileStore
	model    ObjectGenerator
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
	category func() profile.Category
}

// NewGenerator creates a Generator.
// A timeout of zero or less uses DefaultModelTimeout.
func NewGenerator(profiles ProfileStore, model ObjectGenerator, timeout time.Duration, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}
	return &Generator{
		profiles: profiles,
		model:    model,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
		category: randomCategory,
	}
}

func randomCategory() profile.Category {
	return profile.Categories[rand.IntN(len(profile.Categories))]
}

// draft is the model's answer.
type draft struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Summary  string `json:"summary"`
	Category string `json:"category"`
}

// Generate drafts persona fields for profileID and stores them. seedContext
// is the message that introduced the persona, if any. A persona that is
// already complete is returned unchanged. Invalid model output is an
// apperr.ErrCollaborator and leaves the profile untouched.
func (g *Generator) Generate(ctx context.Context, profileID, seedContext, emailAddress string) (*profile.Profile, error) {
	p, err := g.profiles.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if !p.IsPersona() {
		return nil, apperr.Validation(fmt.Sprintf("profile %s is not a persona", profileID))
	}
	if !p.NeedsGeneration() {
		return p, nil
	}

	address := p.Email
	if address == "" {
		address = emailAddress
	}
	hint := g.category()

	var d draft
	if err := g.draft(ctx, conversation.Request{
		System: systemPrompt,
		Prompt: userPrompt(hint, seedContext, address),
	}, &d); err != nil {
		return nil, err
	}

	fields, err := validate(d, hint)
	if err != nil {
		g.logger.WarnContext(ctx, "Rejected persona draft",
			slog.String("profile_id", profileID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	now := g.now().UTC()
	if err := g.profiles.SetPersona(ctx, profileID, fields, now); err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "Generated persona",
		slog.String("profile_id", profileID),
		slog.String("category", string(fields.Category)),
	)

	p.Name = fields.Name
	p.PersonaSummary = fields.Summary
	p.PersonaCategory = fields.Category
	p.PersonaState = profile.PersonaReady
	p.UpdatedAt = now
	return p, nil
}

// draft runs the model call under the generator's timeout. Expiry of that
// timeout is a collaborator failure; cancellation by the caller is returned
// as is.
func (g *Generator) draft(ctx context.Context, req conversation.Request, d *draft) error {
	modelCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	_, err := g.model.GenerateObject(modelCtx, req, d)
	if err != nil && ctx.Err() == nil && errors.Is(modelCtx.Err(), context.DeadlineExceeded) {
		return apperr.Collaborator(fmt.Sprintf("model call exceeded %s", g.timeout), err)
	}
	return err
}

func userPrompt(hint profile.Category, seedContext, address string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a persona for the %s division within DeadNet.\n", hint)
	if address != "" {
		fmt.Fprintf(&b, "The persona's email address is %s.\n", address)
	}
	if seedContext != "" {
		text := bodytext.PlainText(seedContext)
		if utf8.RuneCountInString(text) > maxContextLength {
			text = string([]rune(text)[:maxContextLength])
		}
		fmt.Fprintf(&b, "Context: %s\n", text)
	}
	b.WriteString(`
Return an object with these fields:
- name: a realistic full name suitable for an enterprise directory (3-80 chars).
- email: valid and routable, using the @deadnet.com domain.
- summary: one sentence (24-320 chars) that hints at role, tone, and goals within DeadNet,
  touching on performance optics, risk management, or procedural escalation.
- category: one of security, compliance, growth, archives, liaison, operations, support,
  legal, engineering, unknown.
Subtle strangeness allowed, but keep it plausible and internally consistent.
No markdown, no lists, no meta commentary.`)
	return b.String()
}

var errInvalidDraft = errors.New("invalid persona draft")

// validate checks the model's draft. An absent category falls back to hint.
func validate(d draft, hint profile.Category) (profile.PersonaFields, error) {
	name := strings.TrimSpace(d.Name)
	summary := strings.TrimSpace(d.Summary)

	if n := utf8.RuneCountInString(name); n < minNameLength || n > maxNameLength {
		return profile.PersonaFields{}, apperr.Collaborator(fmt.Sprintf("name has %d chars", n), errInvalidDraft)
	}
	if n := utf8.RuneCountInString(summary); n < minSummaryLength || n > maxSummaryLength {
		return profile.PersonaFields{}, apperr.Collaborator(fmt.Sprintf("summary has %d chars", n), errInvalidDraft)
	}
	if err := profile.ValidateAddress(strings.TrimSpace(d.Email)); err != nil {
		return profile.PersonaFields{}, apperr.Collaborator("email is not a valid address", errInvalidDraft)
	}

	category := hint
	if strings.TrimSpace(d.Category) != "" {
		category = profile.ParseCategory(d.Category)
	}
	return profile.PersonaFields{Name: name, Summary: summary, Category: category}, nil
}
