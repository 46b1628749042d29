// Package compose implements the user send path: recipient addresses are
// resolved to profiles, the message is delivered, and reply orchestration is
// scheduled.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/mailbox"
	"github.com/ryandotelliott/dead-internet/internal/taskqueue"
)

// Resolver maps addresses to profile IDs, creating personas as needed.
type Resolver interface {
	ResolveRecipients(ctx context.Context, rawEmails []string, seedContext string) ([]string, error)
}

// Deliverer delivers a message on behalf of its sender.
type Deliverer interface {
	Deliver(ctx context.Context, out mailbox.Outgoing) (*mailbox.Receipt, error)
}

// Draft is a message as composed by a user, addressed by email.
type Draft struct {
	To       []string
	CC       []string
	Subject  string
	Body     string
	ThreadID string
}

// Composer sends user drafts.
type Composer struct {
	resolver Resolver
	mailer   Deliverer
	tasks    taskqueue.Publisher
	logger   *slog.Logger
}

// New creates a Composer.
func New(resolver Resolver, mailer Deliverer, tasks taskqueue.Publisher, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Composer{resolver: resolver, mailer: mailer, tasks: tasks, logger: logger}
}

// Send delivers d from senderID and schedules persona replies. Unknown
// addresses become persona profiles seeded with the body. A failure to
// schedule is logged and does not fail the send.
func (c *Composer) Send(ctx context.Context, senderID string, d Draft) (*mailbox.Receipt, error) {
	ctx, span := tracing.Tracer("deadnet-compose").Start(ctx, "Send",
		trace.WithAttributes(attribute.String("sender_id", senderID)))
	defer span.End()

	if !hasAddress(d.To) {
		return nil, apperr.Validation("at least one recipient is required")
	}

	to, err := c.resolver.ResolveRecipients(ctx, d.To, d.Body)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	var cc []string
	if hasAddress(d.CC) {
		cc, err = c.resolver.ResolveRecipients(ctx, d.CC, d.Body)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, fmt.Errorf("resolve cc: %w", err)
		}
	}

	receipt, err := c.mailer.Deliver(ctx, mailbox.Outgoing{
		SenderID: senderID,
		To:       to,
		CC:       cc,
		Subject:  strings.TrimSpace(d.Subject),
		Body:     d.Body,
		ThreadID: d.ThreadID,
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	if err := c.tasks.Publish(ctx, taskqueue.Orchestrate(receipt.MessageID)); err != nil {
		c.logger.WarnContext(ctx, "Failed to schedule orchestration",
			slog.String("message_id", receipt.MessageID),
			slog.String("error", err.Error()),
		)
	}
	return receipt, nil
}

func hasAddress(addrs []string) bool {
	for _, a := range addrs {
		if strings.TrimSpace(a) != "" {
			return true
		}
	}
	return false
}
