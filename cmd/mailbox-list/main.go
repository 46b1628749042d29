// Package main implements the Mailbox/list Lambda handler. It returns the
// newest entry of each thread in one of the caller's folders.
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
)

var logger = logging.New()

// ProfileLookup resolves the calling account to its profile.
type ProfileLookup interface {
	GetByAuthUser(ctx context.Context, authUserID string) (*profile.Profile, error)
}

// FolderLister lists folder contents.
type FolderLister interface {
	ListFolder(ctx context.Context, ownerID, folder string, limit int) ([]*mailbox.FolderItem, error)
}

type handler struct {
	profiles ProfileLookup
	folders  FolderLister
}

func newHandler(profiles ProfileLookup, folders FolderLister) *handler {
	return &handler{profiles: profiles, folders: folders}
}

// handle processes a Mailbox/list request.
func (h *handler) handle(ctx context.Context, request plugincontract.PluginInvocationRequest) (plugincontract.PluginInvocationResponse, error) {
	tracer := tracing.Tracer("deadnet-mailbox-list")
	ctx, span := tracer.Start(ctx, "MailboxListHandler")
	defer span.End()

	if request.Method != "Mailbox/list" {
		return errorResponse(request.ClientID, jmaperror.UnknownMethod("This handler only supports Mailbox/list")), nil
	}

	accountID := request.Args.StringOr("accountId", request.AccountID)
	folder := request.Args.StringOr("folder", string(email.FolderInbox))
	limit := request.Args.IntOr("limit", 0)
	if limit < 0 {
		return errorResponse(request.ClientID, jmaperror.InvalidArguments("limit must not be negative")), nil
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

	items, err := h.folders.ListFolder(ctx, owner.ID, folder, int(limit))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list folder",
			slog.String("account_id", accountID),
			slog.String("folder", folder),
			slog.String("error", err.Error()),
		)
		tracing.RecordError(span, err)
		return errorResponse(request.ClientID, apperr.ToMethodError(err)), nil
	}

	list := make([]any, 0, len(items))
	for _, item := range items {
		list = append(list, itemToMap(item))
	}

	logger.InfoContext(ctx, "Mailbox/list completed",
		slog.String("account_id", accountID),
		slog.String("folder", folder),
		slog.Int("list_count", len(list)),
	)

	return plugincontract.PluginInvocationResponse{
		MethodResponse: plugincontract.MethodResponse{
			Name: "Mailbox/list",
			Args: map[string]any{
				"accountId": accountID,
				"folder":    folder,
				"list":      list,
			},
			ClientID: request.ClientID,
		},
	}, nil
}

func itemToMap(item *mailbox.FolderItem) map[string]any {
	recipients := make([]any, 0, len(item.Recipients))
	for _, r := range item.Recipients {
		recipients = append(recipients, map[string]any{
			"profileId": r.ProfileID,
			"name":      r.Name,
			"email":     r.Email,
		})
	}
	return map[string]any{
		"id":          item.Entry.ID,
		"messageId":   item.Entry.MessageID,
		"threadId":    item.Entry.ThreadID,
		"subject":     item.Entry.Subject,
		"isRead":      item.Entry.Read,
		"role":        string(item.Entry.Role),
		"createdAt":   item.Entry.CreatedAt.UTC().Format(time.RFC3339),
		"senderName":  item.SenderName,
		"senderEmail": item.SenderEmail,
		"body":        item.Body,
		"preview":     item.Preview,
		"recipients":  recipients,
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
	mb := mailbox.NewService(stores.Messages, stores.Profiles, logger)

	h := newHandler(stores.Profiles, mb)
	result.Start(h.handle)
}
