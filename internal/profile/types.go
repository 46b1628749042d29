// Package profile stores participant identities and resolves recipients to
// profiles, creating persona profiles for unknown addresses.
package profile

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Kind distinguishes human-controlled profiles from personas.
type Kind string

const (
	KindHuman   Kind = "human"
	KindPersona Kind = "persona"
)

// PersonaState tracks whether persona fields have been generated.
type PersonaState string

const (
	// PersonaPending is a persona whose name and summary are not generated yet.
	PersonaPending PersonaState = "pending"
	// PersonaReady is a persona with generated fields, or any human.
	PersonaReady PersonaState = "ready"
)

// Category is the division a persona belongs to.
type Category string

const (
	CategorySecurity    Category = "security"
	CategoryCompliance  Category = "compliance"
	CategoryGrowth      Category = "growth"
	CategoryArchives    Category = "archives"
	CategoryLiaison     Category = "liaison"
	CategoryOperations  Category = "operations"
	CategorySupport     Category = "support"
	CategoryLegal       Category = "legal"
	CategoryEngineering Category = "engineering"
	CategoryUnknown     Category = "unknown"
)

// Categories lists every persona category.
var Categories = []Category{
	CategorySecurity, CategoryCompliance, CategoryGrowth, CategoryArchives, CategoryLiaison,
	CategoryOperations, CategorySupport, CategoryLegal, CategoryEngineering, CategoryUnknown,
}

// ParseCategory maps s onto a Category. Unrecognised values become CategoryUnknown.
func ParseCategory(s string) Category {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == s {
			return c
		}
	}
	return CategoryUnknown
}

// Profile is an identity record for a human or a persona.
type Profile struct {
	ID              string
	Kind            Kind
	AuthUserID      string
	Name            string
	Email           string
	PersonaSummary  string
	PersonaCategory Category
	PersonaState    PersonaState
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewHuman returns a profile bound to an authenticated user.
func NewHuman(authUserID, name, email string, now time.Time) *Profile {
	return &Profile{
		ID:           uuid.New().String(),
		Kind:         KindHuman,
		AuthUserID:   authUserID,
		Name:         strings.TrimSpace(name),
		Email:        NormalizeEmail(email),
		PersonaState: PersonaReady,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewPersona returns a bare persona profile awaiting generation.
func NewPersona(email string, now time.Time) *Profile {
	return &Profile{
		ID:           uuid.New().String(),
		Kind:         KindPersona,
		Email:        NormalizeEmail(email),
		PersonaState: PersonaPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsPersona reports whether the profile replies autonomously.
func (p *Profile) IsPersona() bool {
	return p.Kind == KindPersona
}

// NeedsGeneration reports whether persona fields are still missing.
func (p *Profile) NeedsGeneration() bool {
	if !p.IsPersona() {
		return false
	}
	return p.PersonaState != PersonaReady || p.Name == "" || p.PersonaSummary == ""
}

// DisplayName returns the name, falling back to the email address.
func (p *Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// PersonaFields are the generated persona attributes.
type PersonaFields struct {
	Name     string
	Summary  string
	Category Category
}

// NormalizeEmail trims surrounding whitespace and applies Unicode NFC.
// Case is preserved.
func NormalizeEmail(email string) string {
	return norm.NFC.String(strings.TrimSpace(email))
}
