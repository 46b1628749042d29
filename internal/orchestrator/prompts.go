package orchestrator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/profile"
)

const (
	maxSubjectLength = 120
	maxBodyLength    = 4000
	noSubject        = "(no subject)"
)

const replySystemPrompt = "You simulate an aging enterprise mail client within a dead-internet corporate network. " +
	"Replies should be concise, procedural, and faintly uncanny."

const outreachSystemPrompt = "You simulate an aging enterprise mail client within a dead-internet corporate network. " +
	"Draft emails that are plausible and precise with a faint bureaucratic eeriness."

// emailDraft is the model's answer for a reply or an outreach email.
type emailDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// systemPrompt frames base with the persona's identity so every turn of its
// conversation is written in the same voice.
func systemPrompt(base string, p *profile.Profile) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	writeIdentity(&b, p)
	fmt.Fprintf(&b, "Sign off as %s.", p.DisplayName())
	return b.String()
}

func writeIdentity(b *strings.Builder, p *profile.Profile) {
	fmt.Fprintf(b, "You are writing as %s <%s>.\n", p.DisplayName(), p.Email)
	if p.PersonaSummary != "" {
		fmt.Fprintf(b, "Summary: %s\n", p.PersonaSummary)
	}
	if p.PersonaCategory != "" {
		fmt.Fprintf(b, "Division: %s\n", p.PersonaCategory)
	}
}

func replyPrompt(subject, transcript string) string {
	var b strings.Builder
	b.WriteString("Draft a short reply to the latest message in this thread. ")
	b.WriteString("Maintain coherence and allow one subtle anomaly at most.\n")
	if subject == "" {
		fmt.Fprintf(&b, "Subject: %s\n", noSubject)
	} else {
		fmt.Fprintf(&b, "Subject: %s\n", subject)
	}
	b.WriteString("\nConversation context (oldest to newest):\n")
	b.WriteString(transcript)
	b.WriteString("\n\nReturn an object with a \"body\" field: a plain-text email, no markdown.")
	if subject == "" {
		b.WriteString(" Also include a \"subject\" field: a concise corporate subject without quotes, brackets or emojis.")
	}
	return b.String()
}

func outreachPrompt(recipients []*profile.Profile) string {
	var b strings.Builder
	b.WriteString("Compose an initial outreach email in the DeadNet style.\n")
	b.WriteString("Recipients (emails only):\n")
	for _, r := range recipients {
		fmt.Fprintf(&b, "- %s\n", r.Email)
	}
	b.WriteString(`Constraints:
- Keep it brief and task-oriented.
- Corporate tone with softened euphemisms; avoid warmth and jokes.
- Subtle strangeness permitted, but remain coherent and useful.
- No markdown, no bullets, no meta-references.
- Include a simple sign-off with the sender's name.
Return an object with "subject" (no quotes, brackets or emojis) and "body" (plain text) fields.`)
	return b.String()
}

// checkDraft validates a model draft. The subject may be empty unless
// requireSubject is set.
func checkDraft(d *emailDraft, requireSubject bool) error {
	d.Subject = strings.TrimSpace(d.Subject)
	d.Body = strings.TrimSpace(d.Body)

	if d.Body == "" {
		return apperr.Collaborator("draft has an empty body", nil)
	}
	if n := utf8.RuneCountInString(d.Body); n > maxBodyLength {
		return apperr.Collaborator(fmt.Sprintf("draft body has %d chars", n), nil)
	}
	if requireSubject && d.Subject == "" {
		return apperr.Collaborator("draft has an empty subject", nil)
	}
	if n := utf8.RuneCountInString(d.Subject); n > maxSubjectLength {
		return apperr.Collaborator(fmt.Sprintf("draft subject has %d chars", n), nil)
	}
	return nil
}

// replySubject prefixes subject with "Re: " unless it already has one.
func replySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ""
	}
	if len(subject) >= 3 && strings.EqualFold(subject[:3], "re:") {
		return subject
	}
	return "Re: " + subject
}
