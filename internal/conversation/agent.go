package conversation

import (
	"context"
	"fmt"
	"time"
)

// HistoryLimit is how many stored turns are replayed to the model.
const HistoryLimit = 20

// TurnStore reads and extends conversation turns.
type TurnStore interface {
	Turns(ctx context.Context, threadID string, limit int) ([]Turn, error)
	Append(ctx context.Context, threadID string, turns ...Turn) error
}

// ObjectGenerator produces structured model answers.
type ObjectGenerator interface {
	GenerateObject(ctx context.Context, req Request, out any) (string, error)
}

// Agent speaks through a stored conversation so a persona keeps its
// multi-turn context.
type Agent struct {
	store TurnStore
	gen   ObjectGenerator
	now   func() time.Time
}

// NewAgent creates an Agent.
func NewAgent(store TurnStore, gen ObjectGenerator) *Agent {
	return &Agent{store: store, gen: gen, now: time.Now}
}

// Generate asks the model for an object on the conversation handle and
// records the prompt and the answer as new turns. Nothing is recorded when
// generation fails.
func (a *Agent) Generate(ctx context.Context, handle, system, prompt string, out any) error {
	history, err := a.store.Turns(ctx, handle, HistoryLimit)
	if err != nil {
		return fmt.Errorf("load turns: %w", err)
	}

	raw, err := a.gen.GenerateObject(ctx, Request{System: system, History: history, Prompt: prompt}, out)
	if err != nil {
		return err
	}

	now := a.now().UTC()
	return a.store.Append(ctx, handle,
		Turn{Role: RoleUser, Content: prompt, CreatedAt: now},
		Turn{Role: RoleAssistant, Content: raw, CreatedAt: now},
	)
}
