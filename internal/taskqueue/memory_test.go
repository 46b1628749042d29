package taskqueue

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryQueue_DrainRunsChainedTasks(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	if err := q.Publish(ctx, Orchestrate("m1")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	var order []string
	q.Drain(ctx, func(ctx context.Context, task Task) error {
		order = append(order, task.MessageID)
		if task.MessageID == "m1" {
			return q.Publish(ctx, Orchestrate("m2"))
		}
		return nil
	}, nil)

	if len(order) != 2 || order[0] != "m1" || order[1] != "m2" {
		t.Errorf("order = %v, want [m1 m2]", order)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestMemoryQueue_DropsPendingDuplicates(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	_ = q.Publish(ctx, GeneratePersona("p1", "first", ""))
	_ = q.Publish(ctx, GeneratePersona("p1", "second", ""))
	_ = q.Publish(ctx, GeneratePersona("p2", "", ""))

	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}

	var contexts []string
	q.Drain(ctx, func(ctx context.Context, task Task) error {
		contexts = append(contexts, task.Context)
		return nil
	}, nil)
	if contexts[0] != "first" {
		t.Errorf("first task context = %q, want %q", contexts[0], "first")
	}

	// Once processed, the same key may be queued again.
	_ = q.Publish(ctx, GeneratePersona("p1", "again", ""))
	if q.Len() != 1 {
		t.Errorf("Len() after re-publish = %d, want 1", q.Len())
	}
}

func TestMemoryQueue_DrainReportsErrors(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	_ = q.Publish(ctx, Orchestrate("bad"))
	_ = q.Publish(ctx, Orchestrate("good"))

	var failed []string
	var handled int
	q.Drain(ctx, func(ctx context.Context, task Task) error {
		handled++
		if task.MessageID == "bad" {
			return errors.New("boom")
		}
		return nil
	}, func(task Task, err error) {
		failed = append(failed, task.MessageID)
	})

	if handled != 2 {
		t.Errorf("handled = %d, want 2", handled)
	}
	if len(failed) != 1 || failed[0] != "bad" {
		t.Errorf("failed = %v, want [bad]", failed)
	}
}

func TestMemoryQueue_RejectsInvalidTask(t *testing.T) {
	q := NewMemoryQueue()
	if err := q.Publish(context.Background(), Task{Type: TypePersona}); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("Publish() error = %v, want ErrInvalidTask", err)
	}
}
