package orchestrator

import (
	"context"

	"github.com/ryandotelliott/dead-internet/internal/profile"
	"github.com/ryandotelliott/dead-internet/internal/taskqueue"
)

// PersonaGenerator fills in persona profiles.
type PersonaGenerator interface {
	Generate(ctx context.Context, profileID, seedContext, emailAddress string) (*profile.Profile, error)
}

// NewDispatcher routes orchestration tasks to o and persona tasks to
// personas.
func NewDispatcher(o *Orchestrator, personas PersonaGenerator) *taskqueue.Dispatcher {
	d := taskqueue.NewDispatcher()
	d.Register(taskqueue.TypeOrchestrate, func(ctx context.Context, task taskqueue.Task) error {
		return o.OnMessageDelivered(ctx, task.MessageID)
	})
	d.Register(taskqueue.TypePersona, func(ctx context.Context, task taskqueue.Task) error {
		_, err := personas.Generate(ctx, task.ProfileID, task.Context, task.Email)
		return err
	})
	return d
}
