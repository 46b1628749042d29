package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jarrod-lowe/jmap-service-libs/plugincontract"

	"github.com/ryandotelliott/dead-internet/internal/email"
	"github.com/ryandotelliott/dead-internet/internal/profile"
	"github.com/ryandotelliott/dead-internet/internal/thread"
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

type mockThreadEntries struct {
	listThreadFunc     func(ctx context.Context, ownerID, threadID string) ([]*email.Entry, error)
	markThreadReadFunc func(ctx context.Context, ownerID, threadID string) (int, error)
}

func (m *mockThreadEntries) ListThread(ctx context.Context, ownerID, threadID string) ([]*email.Entry, error) {
	if m.listThreadFunc != nil {
		return m.listThreadFunc(ctx, ownerID, threadID)
	}
	return []*email.Entry{{ID: "entry-1", OwnerID: ownerID, ThreadID: threadID}}, nil
}

func (m *mockThreadEntries) MarkThreadRead(ctx context.Context, ownerID, threadID string) (int, error) {
	if m.markThreadReadFunc != nil {
		return m.markThreadReadFunc(ctx, ownerID, threadID)
	}
	return 0, nil
}

type mockContextBuilder struct {
	getContextFunc func(ctx context.Context, threadID string, limit int) (*thread.Context, error)
}

func (m *mockContextBuilder) GetContext(ctx context.Context, threadID string, limit int) (*thread.Context, error) {
	if m.getContextFunc != nil {
		return m.getContextFunc(ctx, threadID, limit)
	}
	return &thread.Context{ThreadID: threadID}, nil
}

func threadRequest(args plugincontract.Args) plugincontract.PluginInvocationRequest {
	return plugincontract.PluginInvocationRequest{
		AccountID: "user-123",
		Method:    "Thread/get",
		ClientID:  "c0",
		Args:      args,
	}
}

func TestHandler_ReturnsMessages(t *testing.T) {
	dana := thread.Person{ProfileID: "profile-1", Name: "Dana", Email: "dana@deadnet.com"}
	marion := thread.Person{ProfileID: "profile-2", Name: "Marion Keele", Email: "marion@deadnet.com"}
	builder := &mockContextBuilder{
		getContextFunc: func(ctx context.Context, threadID string, limit int) (*thread.Context, error) {
			if limit != 5 {
				t.Errorf("limit = %d, want 5", limit)
			}
			return &thread.Context{
				ThreadID: threadID,
				Subject:  "Re: Retention",
				Messages: []thread.Message{
					{ID: "msg-1", Author: dana, Body: "Who owns it?", CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), Recipients: []thread.Person{marion}},
					{ID: "msg-2", Author: marion, Body: "Archives.", CreatedAt: time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC), Recipients: []thread.Person{dana}},
				},
			}, nil
		},
	}
	marked := false
	entries := &mockThreadEntries{
		markThreadReadFunc: func(ctx context.Context, ownerID, threadID string) (int, error) {
			marked = true
			return 1, nil
		},
	}
	h := newHandler(&mockProfileLookup{}, entries, builder)

	response, err := h.handle(context.Background(), threadRequest(plugincontract.Args{
		"threadId": "thread-1",
		"limit":    float64(5),
		"markRead": true,
	}))
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if response.MethodResponse.Name != "Thread/get" {
		t.Fatalf("Name = %q, want %q (args %v)", response.MethodResponse.Name, "Thread/get", response.MethodResponse.Args)
	}

	args := response.MethodResponse.Args
	if args["subject"] != "Re: Retention" {
		t.Errorf("subject = %v, want %q", args["subject"], "Re: Retention")
	}
	messages := args["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	last := messages[1].(map[string]any)
	if last["id"] != "msg-2" {
		t.Errorf("last id = %v, want %q", last["id"], "msg-2")
	}
	author := last["author"].(map[string]any)
	if author["name"] != "Marion Keele" {
		t.Errorf("author = %v, want Marion Keele", author)
	}
	if !marked {
		t.Error("MarkThreadRead not called")
	}
	if args["markedRead"] != 1 {
		t.Errorf("markedRead = %v, want 1", args["markedRead"])
	}
	ids := args["entryIds"].([]string)
	if len(ids) != 1 || ids[0] != "entry-1" {
		t.Errorf("entryIds = %v, want [entry-1]", ids)
	}
}

func TestHandler_DoesNotMarkReadByDefault(t *testing.T) {
	entries := &mockThreadEntries{
		markThreadReadFunc: func(ctx context.Context, ownerID, threadID string) (int, error) {
			t.Error("MarkThreadRead should not be called")
			return 0, nil
		},
	}
	h := newHandler(&mockProfileLookup{}, entries, &mockContextBuilder{})

	response, _ := h.handle(context.Background(), threadRequest(plugincontract.Args{"threadId": "thread-1"}))
	if response.MethodResponse.Name != "Thread/get" {
		t.Errorf("Name = %q, want %q", response.MethodResponse.Name, "Thread/get")
	}
}

func TestHandler_NonParticipantGetsNotFound(t *testing.T) {
	entries := &mockThreadEntries{
		listThreadFunc: func(ctx context.Context, ownerID, threadID string) ([]*email.Entry, error) {
			return nil, nil
		},
	}
	builder := &mockContextBuilder{
		getContextFunc: func(ctx context.Context, threadID string, limit int) (*thread.Context, error) {
			t.Error("GetContext should not be called for a non-participant")
			return nil, nil
		},
	}
	h := newHandler(&mockProfileLookup{}, entries, builder)

	response, _ := h.handle(context.Background(), threadRequest(plugincontract.Args{"threadId": "thread-1"}))
	if got := response.MethodResponse.Args["type"]; got != "notFound" {
		t.Errorf("type = %v, want %q", got, "notFound")
	}
}

func TestHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		req      plugincontract.PluginInvocationRequest
		entries  *mockThreadEntries
		builder  *mockContextBuilder
		wantType string
	}{
		{
			name:     "wrong method",
			req:      plugincontract.PluginInvocationRequest{Method: "Thread/changes", ClientID: "c0"},
			wantType: "unknownMethod",
		},
		{
			name:     "missing threadId",
			req:      threadRequest(plugincontract.Args{}),
			wantType: "invalidArguments",
		},
		{
			name:     "negative limit",
			req:      threadRequest(plugincontract.Args{"threadId": "thread-1", "limit": float64(-2)}),
			wantType: "invalidArguments",
		},
		{
			name: "entry store failure",
			req:  threadRequest(plugincontract.Args{"threadId": "thread-1"}),
			entries: &mockThreadEntries{listThreadFunc: func(ctx context.Context, ownerID, threadID string) ([]*email.Entry, error) {
				return nil, errors.New("throttled")
			}},
			wantType: "serverFail",
		},
		{
			name: "context failure",
			req:  threadRequest(plugincontract.Args{"threadId": "thread-1"}),
			builder: &mockContextBuilder{getContextFunc: func(ctx context.Context, threadID string, limit int) (*thread.Context, error) {
				return nil, errors.New("throttled")
			}},
			wantType: "serverFail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := tt.entries
			if entries == nil {
				entries = &mockThreadEntries{}
			}
			builder := tt.builder
			if builder == nil {
				builder = &mockContextBuilder{}
			}
			h := newHandler(&mockProfileLookup{}, entries, builder)

			response, err := h.handle(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("handle failed: %v", err)
			}
			if got := response.MethodResponse.Args["type"]; got != tt.wantType {
				t.Errorf("type = %v, want %q", got, tt.wantType)
			}
		})
	}
}
