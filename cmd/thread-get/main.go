// Package main implements the Thread/get Lambda handler. It returns the
// recent messages of a thread the caller participates in.
package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jarrod-lowe/jmap-service-libs/awsinit"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"
	"github.com/jarrod-lowe/jmap-service-libs/jmaperror"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/jarrod-lowe/jmap-service-libs/plugincontract"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"

	"github.com/ryandotelliott/dead-internet/internal/app"
	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/config"
	"github.com/ryandotelliott/dead-internet/internal/email"
	"github.com/ryandotelliott/dead-internet/internal/mailbox"
	"github.com/ryandotelliott/dead-internet/internal/profile"
	"github.com/ryandotelliott/dead-internet/internal/thread"
)

var logger = logging.New()

// ProfileLookup resolves the calling account to its profile.
type ProfileLookup interface {
	GetByAuthUser(ctx context.Context, authUserID string) (*profile.Profile, error)
}

// ThreadEntries reads and updates the caller's entries in a thread.
type ThreadEntries interface {
	ListThread(ctx context.Context, ownerID, threadID string) ([]*email.Entry, error)
	MarkThreadRead(ctx context.Context, ownerID, threadID string) (int, error)
}

// ContextBuilder builds thread contexts.
type ContextBuilder interface {
	GetContext(ctx context.Context, threadID string, limit int) (*thread.Context, error)
}

type handler struct {
	profiles ProfileLookup
	entries  ThreadEntries
	threads  ContextBuilder
}

func newHandler(profiles ProfileLookup, entries ThreadEntries, threads ContextBuilder) *handler {
	return &handler{profiles: profiles, entries: entries, threads: threads}
}

// handle processes a Thread/get request.
func (h *handler) handle(ctx context.Context, request plugincontract.PluginInvocationRequest) (plugincontract.PluginInvocationResponse, error) {
	tracer := tracing.Tracer("deadnet-thread-get")
	ctx, span := tracer.Start(ctx, "ThreadGetHandler")
	defer span.End()

	if request.Method != "Thread/get" {
		return errorResponse(request.ClientID, jmaperror.UnknownMethod("This handler only supports Thread/get")), nil
	}

	accountID := request.Args.StringOr("accountId", request.AccountID)

	threadID, ok := request.Args.String("threadId")
	if !ok || threadID == "" {
		return errorResponse(request.ClientID, jmaperror.InvalidArguments("threadId argument is required")), nil
	}
	limit := request.Args.IntOr("limit", 0)
	if limit < 0 {
		return errorResponse(request.ClientID, jmaperror.InvalidArguments("limit must not be negative")), nil
	}
	markRead := request.Args.BoolOr("markRead", false)

	owner, err := h.profiles.GetByAuthUser(ctx, accountID)
	if errors.Is(err, profile.ErrProfileNotFound) {
		return errorResponse(request.ClientID, jmaperror.Forbidden("Account has no profile")), nil
	}
	if err != nil {
		return h.serverFail(ctx, request.ClientID, accountID, threadID, err), nil
	}

	// Only participants may read a thread. Unknown and foreign threads look
	// the same to the caller.
	entries, err := h.entries.ListThread(ctx, owner.ID, threadID)
	if err != nil {
		return h.serverFail(ctx, request.ClientID, accountID, threadID, err), nil
	}
	if len(entries) == 0 {
		return errorResponse(request.ClientID, apperr.ToMethodError(apperr.NotFound("thread not found"))), nil
	}

	tc, err := h.threads.GetContext(ctx, threadID, int(limit))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return errorResponse(request.ClientID, apperr.ToMethodError(err)), nil
		}
		return h.serverFail(ctx, request.ClientID, accountID, threadID, err), nil
	}

	marked := 0
	if markRead {
		if marked, err = h.entries.MarkThreadRead(ctx, owner.ID, threadID); err != nil {
			return h.serverFail(ctx, request.ClientID, accountID, threadID, err), nil
		}
	}

	entryIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		entryIDs = append(entryIDs, e.ID)
	}
	messages := make([]any, 0, len(tc.Messages))
	for _, m := range tc.Messages {
		messages = append(messages, messageToMap(m))
	}

	logger.InfoContext(ctx, "Thread/get completed",
		slog.String("account_id", accountID),
		slog.String("thread_id", threadID),
		slog.Int("message_count", len(messages)),
		slog.Int("marked_read", marked),
	)

	return plugincontract.PluginInvocationResponse{
		MethodResponse: plugincontract.MethodResponse{
			Name: "Thread/get",
			Args: map[string]any{
				"accountId":  accountID,
				"id":         tc.ThreadID,
				"subject":    tc.Subject,
				"entryIds":   entryIDs,
				"messages":   messages,
				"markedRead": marked,
			},
			ClientID: request.ClientID,
		},
	}, nil
}

func (h *handler) serverFail(ctx context.Context, clientID, accountID, threadID string, err error) plugincontract.PluginInvocationResponse {
	logger.ErrorContext(ctx, "Thread/get failed",
		slog.String("account_id", accountID),
		slog.String("thread_id", threadID),
		slog.String("error", err.Error()),
	)
	return errorResponse(clientID, apperr.ToMethodError(err))
}

func personToMap(p thread.Person) map[string]any {
	return map[string]any{
		"profileId": p.ProfileID,
		"name":      p.Name,
		"email":     p.Email,
	}
}

func messageToMap(m thread.Message) map[string]any {
	recipients := make([]any, 0, len(m.Recipients))
	for _, r := range m.Recipients {
		recipients = append(recipients, personToMap(r))
	}
	return map[string]any{
		"id":         m.ID,
		"author":     personToMap(m.Author),
		"body":       m.Body,
		"createdAt":  m.CreatedAt.UTC().Format(time.RFC3339),
		"recipients": recipients,
	}
}

// errorResponse creates an error response from a jmaperror.MethodError.
func errorResponse(clientID string, err *jmaperror.MethodError) plugincontract.PluginInvocationResponse {
	return plugincontract.PluginInvocationResponse{
		MethodResponse: plugincontract.MethodResponse{
			Name:     "error",
			Args:     err.ToMap(),
			ClientID: clientID,
		},
	}
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("FATAL: Invalid configuration", slog.String("error", err.Error()))
		panic(err)
	}

	result, err := awsinit.Init(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize", slog.String("error", err.Error()))
		panic(err)
	}

	dynamoClient := dbclient.NewClient(result.Config)
	app.WarmDynamoDB(ctx, dynamoClient, cfg.TableName)

	stores := app.DynamoDBStores(dynamoClient, cfg.TableName)
	h := newHandler(
		stores.Profiles,
		mailbox.NewService(stores.Messages, stores.Profiles, logger),
		thread.NewBuilder(stores.Messages, stores.Profiles, logger),
	)
	result.Start(h.handle)
}
