package thread

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/email"
	"github.com/ryandotelliott/dead-internet/internal/profile"
)

type fakeMessages struct {
	messages     []*email.Message
	participants map[string][]email.Participant
	err          error
}

func (f *fakeMessages) ThreadMessages(_ context.Context, _ string) ([]*email.Message, error) {
	return f.messages, f.err
}

func (f *fakeMessages) Participants(_ context.Context, messageID string) ([]email.Participant, error) {
	return f.participants[messageID], nil
}

type fakeProfiles map[string]*profile.Profile

func (f fakeProfiles) GetProfile(_ context.Context, id string) (*profile.Profile, error) {
	p, ok := f[id]
	if !ok {
		return nil, profile.ErrProfileNotFound
	}
	return p, nil
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func msg(id, sender, subject, body string, i int) *email.Message {
	return &email.Message{ID: id, SenderID: sender, Subject: subject, Body: body, ThreadID: "t1", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
}

func people() fakeProfiles {
	return fakeProfiles{
		"alice": {ID: "alice", Name: "Alice Ward", Email: "alice@deadnet.com"},
		"bob":   {ID: "bob", Name: "Bob Lin", Email: "bob@deadnet.com", Kind: profile.KindPersona},
	}
}

func TestGetContext_OrdersAndResolves(t *testing.T) {
	msgs := &fakeMessages{
		messages: []*email.Message{
			msg("m1", "alice", "Budget", "Numbers attached.", 0),
			msg("m2", "bob", "Re: Budget", "<p>Received.</p>", 1),
		},
		participants: map[string][]email.Participant{
			"m1": {{OwnerID: "alice", Role: email.RoleSender}, {OwnerID: "bob", Role: email.RoleTo}},
			"m2": {{OwnerID: "bob", Role: email.RoleSender}, {OwnerID: "alice", Role: email.RoleTo}},
		},
	}
	b := NewBuilder(msgs, people(), nil)

	got, err := b.GetContext(context.Background(), "t1", 0)
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if got.Subject != "Re: Budget" {
		t.Errorf("Subject = %q, want %q", got.Subject, "Re: Budget")
	}
	if len(got.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2", len(got.Messages))
	}
	if got.Messages[0].Author.Name != "Alice Ward" {
		t.Errorf("Author = %q, want %q", got.Messages[0].Author.Name, "Alice Ward")
	}
	if len(got.Messages[0].Recipients) != 1 || got.Messages[0].Recipients[0].ProfileID != "bob" {
		t.Errorf("Recipients = %+v, want [bob]", got.Messages[0].Recipients)
	}

	want := "Alice Ward <alice@deadnet.com>: Numbers attached.\nBob Lin <bob@deadnet.com>: Received."
	if tr := got.Transcript(); tr != want {
		t.Errorf("Transcript = %q, want %q", tr, want)
	}
}

func TestGetContext_KeepsLastLimit(t *testing.T) {
	msgs := &fakeMessages{}
	for i := 0; i < 25; i++ {
		msgs.messages = append(msgs.messages, msg(fmt.Sprintf("m%02d", i), "alice", fmt.Sprintf("s%d", i), "x", i))
	}
	b := NewBuilder(msgs, people(), nil)

	got, err := b.GetContext(context.Background(), "t1", 0)
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if len(got.Messages) != DefaultLimit {
		t.Fatalf("Messages = %d, want %d", len(got.Messages), DefaultLimit)
	}
	if got.Messages[0].ID != "m05" {
		t.Errorf("first ID = %q, want %q", got.Messages[0].ID, "m05")
	}

	got, _ = b.GetContext(context.Background(), "t1", 3)
	if len(got.Messages) != 3 || got.Messages[2].ID != "m24" {
		t.Errorf("limited Messages = %+v, want last three", got.Messages)
	}
}

func TestGetContext_SkipsMissingSenderKeepsSubject(t *testing.T) {
	msgs := &fakeMessages{
		messages: []*email.Message{
			msg("m1", "alice", "Budget", "one", 0),
			msg("m2", "ghost", "Re: Budget (final)", "two", 1),
		},
	}
	b := NewBuilder(msgs, people(), nil)

	got, err := b.GetContext(context.Background(), "t1", 10)
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("Messages = %d, want 1", len(got.Messages))
	}
	if got.Subject != "Re: Budget (final)" {
		t.Errorf("Subject = %q, want subject of the newest message", got.Subject)
	}
}

func TestGetContext_EmptyThread(t *testing.T) {
	b := NewBuilder(&fakeMessages{}, people(), nil)
	_, err := b.GetContext(context.Background(), "t1", 0)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestGetContext_StoreError(t *testing.T) {
	boom := errors.New("boom")
	b := NewBuilder(&fakeMessages{err: boom}, people(), nil)
	_, err := b.GetContext(context.Background(), "t1", 0)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}
