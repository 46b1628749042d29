// Package orchestrator decides which recipients of a delivered message are
// personas that must reply, and drives drafting and delivery of those
// replies. Each reply is delivered through the same path as a user send and
// schedules the next orchestration step.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ryandotelliott/dead-internet/internal/agentthread"
	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/email"
	"github.com/ryandotelliott/dead-internet/internal/mailbox"
	"github.com/ryandotelliott/dead-internet/internal/profile"
	"github.com/ryandotelliott/dead-internet/internal/taskqueue"
	"github.com/ryandotelliott/dead-internet/internal/thread"
)

const tracerName = "deadnet-orchestrator"

// Defaults for Config fields left zero.
const (
	DefaultMaxRepliesPerMessage = 2
	DefaultMaxThreadMessages    = 40
	DefaultTranscriptLimit      = 10
	DefaultModelTimeout         = 30 * time.Second
)

// MessageStore is the part of the message store the orchestrator reads.
type MessageStore interface {
	GetMessage(ctx context.Context, messageID string) (*email.Message, error)
	ThreadMessages(ctx context.Context, threadID string) ([]*email.Message, error)
	Participants(ctx context.Context, messageID string) ([]email.Participant, error)
	ReplyExists(ctx context.Context, messageID, profileID string) (bool, error)
}

// ProfileReader loads profiles by ID.
type ProfileReader interface {
	GetProfile(ctx context.Context, profileID string) (*profile.Profile, error)
}

// ThreadLinker maps a thread and persona to a conversation handle.
type ThreadLinker interface {
	Ensure(ctx context.Context, threadID, profileID string) (*agentthread.Link, error)
}

// ContextBuilder builds thread transcripts.
type ContextBuilder interface {
	GetContext(ctx context.Context, threadID string, limit int) (*thread.Context, error)
}

// Drafter asks the model for an object on a conversation handle.
type Drafter interface {
	Generate(ctx context.Context, handle, system, prompt string, out any) error
}

// Mailer delivers messages.
type Mailer interface {
	Deliver(ctx context.Context, out mailbox.Outgoing) (*mailbox.Receipt, error)
	DeliverSystem(ctx context.Context, out mailbox.Outgoing, replyTo string) (*mailbox.Receipt, error)
}

// Config bounds reply fan-out and model calls.
type Config struct {
	// MaxRepliesPerMessage caps how many personas answer one message.
	MaxRepliesPerMessage int
	// MaxThreadMessages stops all replies once a thread is this long.
	MaxThreadMessages int
	// TranscriptLimit is the number of messages shown to the model.
	TranscriptLimit int
	// ModelTimeout bounds each drafting call.
	ModelTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRepliesPerMessage <= 0 {
		c.MaxRepliesPerMessage = DefaultMaxRepliesPerMessage
	}
	if c.MaxThreadMessages <= 0 {
		c.MaxThreadMessages = DefaultMaxThreadMessages
	}
	if c.TranscriptLimit <= 0 {
		c.TranscriptLimit = DefaultTranscriptLimit
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = DefaultModelTimeout
	}
	return c
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Messages MessageStore
	Profiles ProfileReader
	Linker   ThreadLinker
	Threads  ContextBuilder
	Drafter  Drafter
	Mailer   Mailer
	Tasks    taskqueue.Publisher
	Logger   *slog.Logger
}

// Orchestrator runs reply orchestration steps.
type Orchestrator struct {
	messages MessageStore
	profiles ProfileReader
	linker   ThreadLinker
	threads  ContextBuilder
	drafter  Drafter
	mailer   Mailer
	tasks    taskqueue.Publisher
	logger   *slog.Logger
	cfg      Config
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		messages: deps.Messages,
		profiles: deps.Profiles,
		linker:   deps.Linker,
		threads:  deps.Threads,
		drafter:  deps.Drafter,
		mailer:   deps.Mailer,
		tasks:    deps.Tasks,
		logger:   logger,
		cfg:      cfg.withDefaults(),
	}
}

// OnMessageDelivered drafts and delivers a reply from each persona the
// message was addressed to. A message that no longer exists is ignored.
// Failures of one persona do not stop the others; only infrastructure
// failures are returned, so that the step is retried.
func (o *Orchestrator) OnMessageDelivered(ctx context.Context, messageID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "OnMessageDelivered",
		trace.WithAttributes(attribute.String("message_id", messageID)))
	defer span.End()

	msg, err := o.messages.GetMessage(ctx, messageID)
	if errors.Is(err, email.ErrMessageNotFound) {
		o.logger.InfoContext(ctx, "Message gone, nothing to orchestrate",
			slog.String("message_id", messageID),
		)
		return nil
	}
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	span.SetAttributes(attribute.String("thread_id", msg.ThreadID))
	o.stage(ctx, StageDelivered, msg, "")

	personas, err := o.personaRecipients(ctx, msg)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	o.stage(ctx, StageRecipientsResolved, msg, "")
	if len(personas) == 0 {
		return nil
	}

	threadMsgs, err := o.messages.ThreadMessages(ctx, msg.ThreadID)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if len(threadMsgs) >= o.cfg.MaxThreadMessages {
		o.logger.InfoContext(ctx, "Thread reached reply limit",
			slog.String("message_id", msg.ID),
			slog.String("thread_id", msg.ThreadID),
			slog.Int("thread_messages", len(threadMsgs)),
		)
		return nil
	}

	personas = o.limitReplies(ctx, msg, personas)

	var failures []error
	for _, p := range personas {
		err := o.replyAs(ctx, msg, p)
		if err == nil {
			continue
		}
		o.logger.ErrorContext(ctx, "Persona reply failed",
			slog.String("message_id", msg.ID),
			slog.String("profile_id", p.ID),
			slog.String("error", err.Error()),
		)
		if retryable(err) {
			failures = append(failures, fmt.Errorf("persona %s: %w", p.ID, err))
		}
	}

	if err := errors.Join(failures...); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// retryable reports whether a failed reply is worth retrying the step for.
// Caller and model errors will fail the same way again.
func retryable(err error) bool {
	switch {
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrUnauthorized),
		errors.Is(err, apperr.ErrCollaborator):
		return false
	}
	return true
}

// personaRecipients returns the personas the message was addressed to.
func (o *Orchestrator) personaRecipients(ctx context.Context, msg *email.Message) ([]*profile.Profile, error) {
	participants, err := o.messages.Participants(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		o.logger.ErrorContext(ctx, "Message has no mailbox entries",
			slog.String("message_id", msg.ID),
			slog.String("error", apperr.ErrConsistency.Error()),
		)
		return nil, nil
	}

	seen := map[string]bool{msg.SenderID: true}
	var personas []*profile.Profile
	for _, part := range participants {
		if part.Role != email.RoleTo || seen[part.OwnerID] {
			continue
		}
		seen[part.OwnerID] = true

		p, err := o.profiles.GetProfile(ctx, part.OwnerID)
		if errors.Is(err, profile.ErrProfileNotFound) {
			o.logger.WarnContext(ctx, "Recipient profile not found",
				slog.String("message_id", msg.ID),
				slog.String("profile_id", part.OwnerID),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		if p.IsPersona() {
			personas = append(personas, p)
		}
	}
	return personas, nil
}

// limitReplies keeps at most MaxRepliesPerMessage personas, preferring
// personas that are ready and then lower profile IDs.
func (o *Orchestrator) limitReplies(ctx context.Context, msg *email.Message, personas []*profile.Profile) []*profile.Profile {
	sort.SliceStable(personas, func(i, j int) bool {
		ri := personas[i].PersonaState == profile.PersonaReady
		rj := personas[j].PersonaState == profile.PersonaReady
		if ri != rj {
			return ri
		}
		return personas[i].ID < personas[j].ID
	})
	if len(personas) <= o.cfg.MaxRepliesPerMessage {
		return personas
	}
	for _, p := range personas[o.cfg.MaxRepliesPerMessage:] {
		o.logger.InfoContext(ctx, "Skipping persona over reply limit",
			slog.String("message_id", msg.ID),
			slog.String("profile_id", p.ID),
		)
	}
	return personas[:o.cfg.MaxRepliesPerMessage]
}

func (o *Orchestrator) replyAs(ctx context.Context, msg *email.Message, persona *profile.Profile) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "ReplyAsPersona",
		trace.WithAttributes(
			attribute.String("message_id", msg.ID),
			attribute.String("profile_id", persona.ID),
		))
	defer span.End()

	link, err := o.linker.Ensure(ctx, msg.ThreadID, persona.ID)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("ensure agent thread: %w", err)
	}
	o.stage(ctx, StageAgentThreadReady, msg, persona.ID)

	replied, err := o.messages.ReplyExists(ctx, msg.ID, persona.ID)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if replied {
		o.logger.InfoContext(ctx, "Persona already replied",
			slog.String("message_id", msg.ID),
			slog.String("profile_id", persona.ID),
		)
		return nil
	}

	tc, err := o.threads.GetContext(ctx, msg.ThreadID, o.cfg.TranscriptLimit)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("thread context: %w", err)
	}

	threadSubject := tc.Subject
	if threadSubject == "" {
		threadSubject = msg.Subject
	}
	var d emailDraft
	if err := o.draft(ctx, link.AgentThreadID, systemPrompt(replySystemPrompt, persona), replyPrompt(threadSubject, tc.Transcript()), &d); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if err := checkDraft(&d, false); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	o.stage(ctx, StageReplyDrafted, msg, persona.ID)

	subject := replySubject(msg.Subject)
	if subject == "" {
		subject = d.Subject
	}
	receipt, err := o.mailer.DeliverSystem(ctx, mailbox.Outgoing{
		SenderID: persona.ID,
		To:       []string{msg.SenderID},
		Subject:  subject,
		Body:     d.Body,
		ThreadID: msg.ThreadID,
	}, msg.ID)
	if errors.Is(err, email.ErrReplyExists) {
		o.logger.InfoContext(ctx, "Reply delivered concurrently",
			slog.String("message_id", msg.ID),
			slog.String("profile_id", persona.ID),
		)
		return nil
	}
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("deliver reply: %w", err)
	}
	o.stage(ctx, StageReplyDelivered, msg, persona.ID)

	o.schedule(ctx, receipt.MessageID)
	return nil
}

// draft runs one model call under the model timeout.
func (o *Orchestrator) draft(ctx context.Context, handle, system, prompt string, out *emailDraft) error {
	modelCtx, cancel := context.WithTimeout(ctx, o.cfg.ModelTimeout)
	defer cancel()

	err := o.drafter.Generate(modelCtx, handle, system, prompt, out)
	if err != nil && ctx.Err() == nil && errors.Is(modelCtx.Err(), context.DeadlineExceeded) {
		return apperr.Collaborator(fmt.Sprintf("model call exceeded %s", o.cfg.ModelTimeout), err)
	}
	return err
}

// schedule publishes the next orchestration step. The reply is already
// delivered, so a failure is only logged.
func (o *Orchestrator) schedule(ctx context.Context, messageID string) {
	if err := o.tasks.Publish(ctx, taskqueue.Orchestrate(messageID)); err != nil {
		o.logger.WarnContext(ctx, "Failed to schedule orchestration",
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) stage(ctx context.Context, s Stage, msg *email.Message, profileID string) {
	attrs := []any{
		slog.String("stage", string(s)),
		slog.String("message_id", msg.ID),
		slog.String("thread_id", msg.ThreadID),
	}
	if profileID != "" {
		attrs = append(attrs, slog.String("profile_id", profileID))
	}
	o.logger.InfoContext(ctx, "Orchestration stage", attrs...)
}
