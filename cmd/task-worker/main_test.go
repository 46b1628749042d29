package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/taskqueue"
)

type mockTaskHandler struct {
	handleFunc func(ctx context.Context, task taskqueue.Task) error
	handled    []taskqueue.Task
}

func (m *mockTaskHandler) Handle(ctx context.Context, task taskqueue.Task) error {
	m.handled = append(m.handled, task)
	if m.handleFunc != nil {
		return m.handleFunc(ctx, task)
	}
	return nil
}

func record(t *testing.T, id string, task taskqueue.Task) events.SQSMessage {
	t.Helper()
	body, err := task.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func TestHandler_DispatchesTasks(t *testing.T) {
	tasks := &mockTaskHandler{}
	h := newHandler(tasks)

	resp, err := h.handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		record(t, "r1", taskqueue.Orchestrate("msg-1")),
		record(t, "r2", taskqueue.GeneratePersona("profile-1", "Hi", "p@deadnet.com")),
	}})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("failures = %v, want none", resp.BatchItemFailures)
	}
	if len(tasks.handled) != 2 {
		t.Fatalf("handled = %d, want 2", len(tasks.handled))
	}
	if tasks.handled[0].MessageID != "msg-1" {
		t.Errorf("first task = %+v, want orchestrate msg-1", tasks.handled[0])
	}
	if tasks.handled[1].Context != "Hi" || tasks.handled[1].Email != "p@deadnet.com" {
		t.Errorf("second task = %+v, want persona seed fields", tasks.handled[1])
	}
}

func TestHandler_FailureClassification(t *testing.T) {
	tasks := &mockTaskHandler{
		handleFunc: func(ctx context.Context, task taskqueue.Task) error {
			switch task.MessageID {
			case "gone":
				return apperr.NotFound("message not found")
			case "throttled":
				return errors.New("throttled")
			case "model":
				return apperr.Collaborator("empty body", nil)
			}
			return nil
		},
	}
	h := newHandler(tasks)

	resp, err := h.handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "garbage", Body: "{"},
		{MessageId: "no-type", Body: `{"messageId":"m"}`},
		record(t, "gone", taskqueue.Orchestrate("gone")),
		record(t, "throttled", taskqueue.Orchestrate("throttled")),
		record(t, "model", taskqueue.Orchestrate("model")),
		record(t, "ok", taskqueue.Orchestrate("ok")),
	}})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	got := map[string]bool{}
	for _, f := range resp.BatchItemFailures {
		got[f.ItemIdentifier] = true
	}
	want := []string{"garbage", "no-type", "throttled", "model"}
	if len(got) != len(want) {
		t.Errorf("failures = %v, want %v", resp.BatchItemFailures, want)
	}
	for _, id := range want {
		if !got[id] {
			t.Errorf("%s not reported as failure", id)
		}
	}
}
