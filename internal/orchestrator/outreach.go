package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/mailbox"
	"github.com/ryandotelliott/dead-internet/internal/profile"
)

// Outreach has a persona start a new thread with the given recipients. The
// persona drafts subject and body through the thread's conversation, and the
// email then enters orchestration like any other send.
func (o *Orchestrator) Outreach(ctx context.Context, personaID string, recipientIDs []string) (*mailbox.Receipt, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "Outreach",
		trace.WithAttributes(attribute.String("profile_id", personaID)))
	defer span.End()

	if len(recipientIDs) == 0 {
		return nil, apperr.Validation("at least one recipient is required")
	}
	sender, err := o.profiles.GetProfile(ctx, personaID)
	if err != nil {
		return nil, err
	}
	if !sender.IsPersona() {
		return nil, apperr.Validation(fmt.Sprintf("profile %s is not a persona", personaID))
	}

	recipients := make([]*profile.Profile, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		p, err := o.profiles.GetProfile(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("recipient %s: %w", id, err)
		}
		recipients = append(recipients, p)
	}

	threadID := uuid.New().String()
	link, err := o.linker.Ensure(ctx, threadID, sender.ID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("ensure agent thread: %w", err)
	}

	var d emailDraft
	if err := o.draft(ctx, link.AgentThreadID, systemPrompt(outreachSystemPrompt, sender), outreachPrompt(recipients), &d); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if err := checkDraft(&d, true); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	receipt, err := o.mailer.Deliver(ctx, mailbox.Outgoing{
		SenderID: sender.ID,
		To:       recipientIDs,
		Subject:  d.Subject,
		Body:     d.Body,
		ThreadID: threadID,
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	o.schedule(ctx, receipt.MessageID)
	return receipt, nil
}
