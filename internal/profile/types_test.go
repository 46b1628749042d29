package profile

import (
	"testing"
	"time"
)

func TestNewPersona(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	p := NewPersona("  a@x.com \n", now)

	if !p.IsPersona() {
		t.Error("IsPersona() = false, want true")
	}
	if p.Email != "a@x.com" {
		t.Errorf("Email = %q, want %q", p.Email, "a@x.com")
	}
	if p.PersonaState != PersonaPending {
		t.Errorf("PersonaState = %q, want %q", p.PersonaState, PersonaPending)
	}
	if p.AuthUserID != "" {
		t.Errorf("AuthUserID = %q, want empty", p.AuthUserID)
	}
	if !p.NeedsGeneration() {
		t.Error("NeedsGeneration() = false, want true")
	}
	if p.ID == "" {
		t.Error("ID is empty")
	}
}

func TestNewHuman(t *testing.T) {
	p := NewHuman("user-1", " Ryan ", "ryan@x.com", time.Now())

	if p.IsPersona() {
		t.Error("IsPersona() = true, want false")
	}
	if p.Name != "Ryan" {
		t.Errorf("Name = %q, want %q", p.Name, "Ryan")
	}
	if p.PersonaState != PersonaReady {
		t.Errorf("PersonaState = %q, want %q", p.PersonaState, PersonaReady)
	}
	if p.NeedsGeneration() {
		t.Error("NeedsGeneration() = true for a human")
	}
}

func TestNeedsGeneration_ReadyButBlank(t *testing.T) {
	p := &Profile{Kind: KindPersona, PersonaState: PersonaReady, Name: "Ada Vell"}
	if !p.NeedsGeneration() {
		t.Error("NeedsGeneration() = false for persona without summary")
	}
}

func TestParseCategory(t *testing.T) {
	tests := map[string]Category{
		"security":    CategorySecurity,
		" Legal ":     CategoryLegal,
		"ENGINEERING": CategoryEngineering,
		"astrology":   CategoryUnknown,
		"":            CategoryUnknown,
	}
	for in, want := range tests {
		if got := ParseCategory(in); got != want {
			t.Errorf("ParseCategory(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	// "e" followed by a combining acute accent composes to "é".
	decomposed := "rene\u0301@x.com"
	composed := "ren\u00e9@x.com"

	if got := NormalizeEmail(decomposed); got != composed {
		t.Errorf("NormalizeEmail(%q) = %q, want %q", decomposed, got, composed)
	}
	if got := NormalizeEmail("Mixed@X.com"); got != "Mixed@X.com" {
		t.Errorf("NormalizeEmail changed case: %q", got)
	}
}

func TestDisplayName(t *testing.T) {
	if got := (&Profile{Email: "a@x.com"}).DisplayName(); got != "a@x.com" {
		t.Errorf("DisplayName() = %q, want %q", got, "a@x.com")
	}
	if got := (&Profile{Name: "Ada", Email: "a@x.com"}).DisplayName(); got != "Ada" {
		t.Errorf("DisplayName() = %q, want %q", got, "Ada")
	}
}
