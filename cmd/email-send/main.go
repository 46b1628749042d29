// Package main implements the Email/send Lambda handler.
package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jarrod-lowe/jmap-service-libs/awsinit"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"
	"github.com/jarrod-lowe/jmap-service-libs/jmaperror"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/jarrod-lowe/jmap-service-libs/plugincontract"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ryandotelliott/dead-internet/internal/app"
	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/compose"
	"github.com/ryandotelliott/dead-internet/internal/config"
	"github.com/ryandotelliott/dead-internet/internal/mailbox"
	"github.com/ryandotelliott/dead-internet/internal/profile"
)

var logger = logging.New()

// ProfileLookup resolves the calling account to its profile.
type ProfileLookup interface {
	GetByAuthUser(ctx context.Context, authUserID string) (*profile.Profile, error)
}

// Sender sends drafts.
type Sender interface {
	Send(ctx context.Context, senderID string, d compose.Draft) (*mailbox.Receipt, error)
}

type handler struct {
	profiles ProfileLookup
	sender   Sender
}

func newHandler(profiles ProfileLookup, sender Sender) *handler {
	return &handler{profiles: profiles, sender: sender}
}

// handle processes an Email/send request.
func (h *handler) handle(ctx context.Context, request plugincontract.PluginInvocationRequest) (plugincontract.PluginInvocationResponse, error) {
	tracer := tracing.Tracer("deadnet-email-send")
	ctx, span := tracer.Start(ctx, "EmailSendHandler")
	defer span.End()

	if request.Method != "Email/send" {
		return errorResponse(request.ClientID, jmaperror.UnknownMethod("This handler only supports Email/send")), nil
	}

	accountID := request.Args.StringOr("accountId", request.AccountID)
	span.SetAttributes(attribute.String("account_id", accountID))

	if !request.Args.Has("to") {
		return errorResponse(request.ClientID, jmaperror.InvalidArguments("to argument is required")), nil
	}
	to, ok := request.Args.StringSlice("to")
	if !ok {
		return errorResponse(request.ClientID, jmaperror.InvalidArguments("to must be an array of strings")), nil
	}
	var cc []string
	if request.Args.Has("cc") {
		if cc, ok = request.Args.StringSlice("cc"); !ok {
			return errorResponse(request.ClientID, jmaperror.InvalidArguments("cc must be an array of strings")), nil
		}
	}
	subject, _ := request.Args.String("subject")
	body, _ := request.Args.String("body")
	threadID, _ := request.Args.String("threadId")

	sender, err := h.profiles.GetByAuthUser(ctx, accountID)
	if errors.Is(err, profile.ErrProfileNotFound) {
		return errorResponse(request.ClientID, jmaperror.Forbidden("Account has no profile")), nil
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load sender profile",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		tracing.RecordError(span, err)
		return errorResponse(request.ClientID, jmaperror.ServerFail(err.Error(), err)), nil
	}

	receipt, err := h.sender.Send(ctx, sender.ID, compose.Draft{
		To:       to,
		CC:       cc,
		Subject:  subject,
		Body:     body,
		ThreadID: threadID,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to send email",
			slog.String("account_id", accountID),
			slog.String("profile_id", sender.ID),
			slog.String("error", err.Error()),
		)
		tracing.RecordError(span, err)
		return errorResponse(request.ClientID, apperr.ToMethodError(err)), nil
	}

	logger.InfoContext(ctx, "Email/send completed",
		slog.String("account_id", accountID),
		slog.String("message_id", receipt.MessageID),
		slog.String("thread_id", receipt.ThreadID),
	)

	return plugincontract.PluginInvocationResponse{
		MethodResponse: plugincontract.MethodResponse{
			Name: "Email/send",
			Args: map[string]any{
				"accountId": accountID,
				"messageId": receipt.MessageID,
				"threadId":  receipt.ThreadID,
			},
			ClientID: request.ClientID,
		},
	}, nil
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
	if err == nil {
		err = cfg.Validate()
	}
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

	tasks, _, err := app.NewPublisher(ctx, cfg, result.Config)
	if err != nil {
		logger.Error("FATAL: Failed to create task publisher", slog.String("error", err.Error()))
		panic(err)
	}

	stores := app.DynamoDBStores(dynamoClient, cfg.TableName)
	services := app.New(cfg, stores, app.NewModel(cfg, result.Config), tasks, logger)

	h := newHandler(stores.Profiles, services.Composer)
	result.Start(h.handle)
}
