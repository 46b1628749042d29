// Package main implements the MailboxEntry/set Lambda handler. Updates change
// an entry's read flag; destroy moves an entry to trash, or removes it when
// it is already there.
package main

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/jarrod-lowe/jmap-service-libs/awsinit"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"
	"github.com/jarrod-lowe/jmap-service-libs/jmaperror"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/jarrod-lowe/jmap-service-libs/plugincontract"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"

	"github.com/ryandotelliott/dead-internet/internal/app"
	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/config"
	"github.com/ryandotelliott/dead-internet/internal/mailbox"
	"github.com/ryandotelliott/dead-internet/internal/profile"
)

var logger = logging.New()

// ProfileLookup resolves the calling account to its profile.
type ProfileLookup interface {
	GetByAuthUser(ctx context.Context, authUserID string) (*profile.Profile, error)
}

// EntryUpdater changes mailbox entries.
type EntryUpdater interface {
	MarkRead(ctx context.Context, ownerID, entryID string, read bool) error
	Delete(ctx context.Context, ownerID, entryID string) error
}

type handler struct {
	profiles ProfileLookup
	entries  EntryUpdater
}

func newHandler(profiles ProfileLookup, entries EntryUpdater) *handler {
	return &handler{profiles: profiles, entries: entries}
}

// handle processes a MailboxEntry/set request.
func (h *handler) handle(ctx context.Context, request plugincontract.PluginInvocationRequest) (plugincontract.PluginInvocationResponse, error) {
	tracer := tracing.Tracer("deadnet-mailbox-set")
	ctx, span := tracer.Start(ctx, "MailboxEntrySetHandler")
	defer span.End()

	if request.Method != "MailboxEntry/set" {
		return errorResponse(request.ClientID, jmaperror.UnknownMethod("This handler only supports MailboxEntry/set")), nil
	}

	accountID := request.Args.StringOr("accountId", request.AccountID)

	var destroyIDs []string
	if request.Args.Has("destroy") {
		ids, ok := request.Args.StringSlice("destroy")
		if !ok {
			return errorResponse(request.ClientID, jmaperror.InvalidArguments("destroy must be an array of strings")), nil
		}
		destroyIDs = ids
	}
	var update plugincontract.Args
	if request.Args.Has("update") {
		u, ok := request.Args.Object("update")
		if !ok {
			return errorResponse(request.ClientID, jmaperror.InvalidArguments("update must be an object")), nil
		}
		update = u
	}

	owner, err := h.profiles.GetByAuthUser(ctx, accountID)
	if errors.Is(err, profile.ErrProfileNotFound) {
		return errorResponse(request.ClientID, jmaperror.Forbidden("Account has no profile")), nil
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load profile",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		tracing.RecordError(span, err)
		return errorResponse(request.ClientID, jmaperror.ServerFail(err.Error(), err)), nil
	}

	updated := map[string]any{}
	notUpdated := map[string]any{}
	for _, entryID := range sortedKeys(update) {
		patch, ok := update.Object(entryID)
		if !ok {
			notUpdated[entryID] = jmaperror.InvalidPatch("update data must be an object").ToMap()
			continue
		}
		read, ok := patch.Bool("isRead")
		if !ok {
			notUpdated[entryID] = jmaperror.InvalidProperties("isRead must be a boolean", []string{"isRead"}).ToMap()
			continue
		}
		if err := h.entries.MarkRead(ctx, owner.ID, entryID, read); err != nil {
			notUpdated[entryID] = h.setError(ctx, entryID, err)
			continue
		}
		updated[entryID] = nil
	}

	destroyed := []string{}
	notDestroyed := map[string]any{}
	for _, entryID := range destroyIDs {
		if err := h.entries.Delete(ctx, owner.ID, entryID); err != nil {
			notDestroyed[entryID] = h.setError(ctx, entryID, err)
			continue
		}
		destroyed = append(destroyed, entryID)
	}

	logger.InfoContext(ctx, "MailboxEntry/set completed",
		slog.String("account_id", accountID),
		slog.Int("updated_count", len(updated)),
		slog.Int("destroyed_count", len(destroyed)),
		slog.Int("failed_count", len(notUpdated)+len(notDestroyed)),
	)

	return plugincontract.PluginInvocationResponse{
		MethodResponse: plugincontract.MethodResponse{
			Name: "MailboxEntry/set",
			Args: map[string]any{
				"accountId":    accountID,
				"updated":      updated,
				"notUpdated":   notUpdated,
				"destroyed":    destroyed,
				"notDestroyed": notDestroyed,
			},
			ClientID: request.ClientID,
		},
	}, nil
}

// setError maps a per-entry failure onto a set error.
func (h *handler) setError(ctx context.Context, entryID string, err error) map[string]any {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return jmaperror.NotFound(err.Error()).ToMap()
	case errors.Is(err, apperr.ErrUnauthorized):
		return jmaperror.SetForbidden(err.Error()).ToMap()
	}
	logger.ErrorContext(ctx, "Failed to change mailbox entry",
		slog.String("entry_id", entryID),
		slog.String("error", err.Error()),
	)
	return jmaperror.SetServerFail(err.Error()).ToMap()
}

func sortedKeys(a plugincontract.Args) []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
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
	h := newHandler(stores.Profiles, mailbox.NewService(stores.Messages, stores.Profiles, logger))
	result.Start(h.handle)
}
