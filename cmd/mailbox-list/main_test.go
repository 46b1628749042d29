package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jarrod-lowe/jmap-service-libs/plugincontract"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/email"
	"github.com/ryandotelliott/dead-internet/internal/mailbox"
	"github.com/ryandotelliott/dead-internet/internal/profile"
)

type mockProfileLookup struct {
	getByAuthUserFunc func(ctx context.Context, authUserID string) (*profile.Profile, error)
}

func (m *mockProfileLookup) GetByAuthUser(ctx context.Context, authUserID string) (*profile.Profile, error) {
	if m.getByAuthUserFunc != nil {
		return m.getByAuthUserFunc(ctx, authUserID)
	}
	return &profile.Profile{ID: "profile-1", Kind: profile.KindHuman}, nil
}

type mockFolderLister struct {
	listFolderFunc func(ctx context.Context, ownerID, folder string, limit int) ([]*mailbox.FolderItem, error)
}

func (m *mockFolderLister) ListFolder(ctx context.Context, ownerID, folder string, limit int) ([]*mailbox.FolderItem, error) {
	if m.listFolderFunc != nil {
		return m.listFolderFunc(ctx, ownerID, folder, limit)
	}
	return nil, nil
}

func TestHandler_ListInbox(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	lister := &mockFolderLister{
		listFolderFunc: func(ctx context.Context, ownerID, folder string, limit int) ([]*mailbox.FolderItem, error) {
			if ownerID != "profile-1" {
				t.Errorf("ownerID = %q, want %q", ownerID, "profile-1")
			}
			if folder != "inbox" {
				t.Errorf("folder = %q, want %q", folder, "inbox")
			}
			if limit != 25 {
				t.Errorf("limit = %d, want 25", limit)
			}
			return []*mailbox.FolderItem{{
				Entry: &email.Entry{
					ID: "entry-1", MessageID: "msg-1", ThreadID: "thread-1",
					Subject: "Re: Retention", Role: email.RoleTo, CreatedAt: created,
				},
				SenderName:  "Marion Keele",
				SenderEmail: "marion@deadnet.com",
				Body:        "<p>Noted.</p>",
				Preview:     "Noted.",
				Recipients:  []mailbox.Recipient{{ProfileID: "profile-1", Name: "Dana", Email: "dana@deadnet.com"}},
			}}, nil
		},
	}
	h := newHandler(&mockProfileLookup{}, lister)

	response, err := h.handle(context.Background(), plugincontract.PluginInvocationRequest{
		AccountID: "user-123",
		Method:    "Mailbox/list",
		ClientID:  "c0",
		Args:      plugincontract.Args{"limit": float64(25)},
	})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if response.MethodResponse.Name != "Mailbox/list" {
		t.Fatalf("Name = %q, want %q", response.MethodResponse.Name, "Mailbox/list")
	}

	list, ok := response.MethodResponse.Args["list"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("list = %v, want one item", response.MethodResponse.Args["list"])
	}
	item := list[0].(map[string]any)
	if item["id"] != "entry-1" || item["threadId"] != "thread-1" {
		t.Errorf("item ids = %v/%v, want entry-1/thread-1", item["id"], item["threadId"])
	}
	if item["senderName"] != "Marion Keele" {
		t.Errorf("senderName = %v, want %q", item["senderName"], "Marion Keele")
	}
	if item["preview"] != "Noted." {
		t.Errorf("preview = %v, want %q", item["preview"], "Noted.")
	}
	if item["createdAt"] != "2024-03-01T09:30:00Z" {
		t.Errorf("createdAt = %v, want %q", item["createdAt"], "2024-03-01T09:30:00Z")
	}
	if item["isRead"] != false {
		t.Errorf("isRead = %v, want false", item["isRead"])
	}
	recipients := item["recipients"].([]any)
	if len(recipients) != 1 {
		t.Errorf("recipients = %v, want one", recipients)
	}
}

func TestHandler_EmptyFolderReturnsEmptyList(t *testing.T) {
	h := newHandler(&mockProfileLookup{}, &mockFolderLister{})

	response, _ := h.handle(context.Background(), plugincontract.PluginInvocationRequest{
		AccountID: "user-123",
		Method:    "Mailbox/list",
		ClientID:  "c0",
		Args:      plugincontract.Args{"folder": "trash"},
	})

	list, ok := response.MethodResponse.Args["list"].([]any)
	if !ok || list == nil || len(list) != 0 {
		t.Errorf("list = %#v, want empty non-nil slice", response.MethodResponse.Args["list"])
	}
	if response.MethodResponse.Args["folder"] != "trash" {
		t.Errorf("folder = %v, want %q", response.MethodResponse.Args["folder"], "trash")
	}
}

func TestHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		args     plugincontract.Args
		profiles *mockProfileLookup
		lister   *mockFolderLister
		wantType string
	}{
		{name: "wrong method", method: "Mailbox/get", wantType: "unknownMethod"},
		{name: "negative limit", method: "Mailbox/list", args: plugincontract.Args{"limit": float64(-1)}, wantType: "invalidArguments"},
		{
			name:   "no profile",
			method: "Mailbox/list",
			profiles: &mockProfileLookup{getByAuthUserFunc: func(ctx context.Context, authUserID string) (*profile.Profile, error) {
				return nil, profile.ErrProfileNotFound
			}},
			wantType: "forbidden",
		},
		{
			name:   "unknown folder",
			method: "Mailbox/list",
			args:   plugincontract.Args{"folder": "spam"},
			lister: &mockFolderLister{listFolderFunc: func(ctx context.Context, ownerID, folder string, limit int) ([]*mailbox.FolderItem, error) {
				return nil, apperr.Validation("unknown folder")
			}},
			wantType: "invalidArguments",
		},
		{
			name:   "store failure",
			method: "Mailbox/list",
			lister: &mockFolderLister{listFolderFunc: func(ctx context.Context, ownerID, folder string, limit int) ([]*mailbox.FolderItem, error) {
				return nil, errors.New("throttled")
			}},
			wantType: "serverFail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := tt.profiles
			if profiles == nil {
				profiles = &mockProfileLookup{}
			}
			lister := tt.lister
			if lister == nil {
				lister = &mockFolderLister{}
			}
			h := newHandler(profiles, lister)

			response, err := h.handle(context.Background(), plugincontract.PluginInvocationRequest{
				AccountID: "user-123",
				Method:    tt.method,
				ClientID:  "c1",
				Args:      tt.args,
			})
			if err != nil {
				t.Fatalf("handle failed: %v", err)
			}
			if got := response.MethodResponse.Args["type"]; got != tt.wantType {
				t.Errorf("type = %v, want %q", got, tt.wantType)
			}
		})
	}
}
