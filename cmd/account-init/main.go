// Package main implements the account-init SQS consumer Lambda handler.
// It listens to account.created events and binds each new account to a
// human profile in the directory.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jarrod-lowe/jmap-service-libs/awsinit"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/jarrod-lowe/jmap-service-libs/plugincontract"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"

	"github.com/ryandotelliott/dead-internet/internal/app"
	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/config"
	"github.com/ryandotelliott/dead-internet/internal/profile"
)

const eventAccountCreated = "account.created"

var logger = logging.New()

// HumanProvisioner creates human profiles.
type HumanProvisioner interface {
	EnsureHumanProfile(ctx context.Context, authUserID, name, email string) (*profile.Profile, error)
}

type handler struct {
	directory HumanProvisioner
}

func newHandler(directory HumanProvisioner) *handler {
	return &handler{directory: directory}
}

// handle provisions a profile for every account.created event in the batch.
// Records that may succeed on redelivery are reported as batch failures.
func (h *handler) handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	ctx, span := tracing.Tracer("deadnet-account-init").Start(ctx, "AccountInitHandler")
	defer span.End()

	var resp events.SQSEventResponse
	for _, record := range event.Records {
		if err := h.provision(ctx, record); err != nil {
			tracing.RecordError(span, err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}

	logger.InfoContext(ctx, "Account init batch completed",
		slog.Int("total", len(event.Records)),
		slog.Int("failures", len(resp.BatchItemFailures)),
	)
	return resp, nil
}

// provision handles one record. Other event types and accounts that can
// never become a profile return nil.
func (h *handler) provision(ctx context.Context, record events.SQSMessage) error {
	var payload plugincontract.EventPayload
	if err := json.Unmarshal([]byte(record.Body), &payload); err != nil {
		logger.ErrorContext(ctx, "Failed to parse SQS message",
			slog.String("message_id", record.MessageId),
			slog.String("error", err.Error()),
		)
		return err
	}
	if payload.EventType != eventAccountCreated {
		logger.DebugContext(ctx, "Ignoring event", slog.String("event_type", payload.EventType))
		return nil
	}

	log := logger.With(slog.String("account_id", payload.AccountID))
	p, err := h.directory.EnsureHumanProfile(ctx, payload.AccountID,
		payload.Data.StringOr("name", ""), payload.Data.StringOr("email", ""))
	switch {
	case errors.Is(err, apperr.ErrValidation):
		log.WarnContext(ctx, "Rejected account profile", slog.String("error", err.Error()))
		return nil
	case err != nil:
		log.ErrorContext(ctx, "Failed to provision profile", slog.String("error", err.Error()))
		return err
	}
	log.InfoContext(ctx, "Provisioned profile", slog.String("profile_id", p.ID))
	return nil
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
	// Human profiles never schedule persona work.
	directory := profile.NewDirectory(stores.Profiles, nil, logger)

	h := newHandler(directory)
	result.Start(h.handle)
}
