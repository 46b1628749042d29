// Package main implements the task worker Lambda handler. It consumes the
// task queue and runs reply orchestration and persona generation.
package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jarrod-lowe/jmap-service-libs/awsinit"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ryandotelliott/dead-internet/internal/app"
	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/config"
	"github.com/ryandotelliott/dead-internet/internal/taskqueue"
)

var logger = logging.New()

// TaskHandler runs one task.
type TaskHandler interface {
	Handle(ctx context.Context, task taskqueue.Task) error
}

type handler struct {
	tasks TaskHandler
}

func newHandler(tasks TaskHandler) *handler {
	return &handler{tasks: tasks}
}

// handle processes an SQS event containing queued tasks.
func (h *handler) handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	tracer := tracing.Tracer("deadnet-task-worker")
	ctx, span := tracer.Start(ctx, "TaskWorkerHandler")
	defer span.End()

	var failures []events.SQSBatchItemFailure

	for _, record := range event.Records {
		task, err := taskqueue.Decode([]byte(record.Body))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to parse SQS message",
				slog.String("message_id", record.MessageId),
				slog.String("error", err.Error()),
			)
			failures = append(failures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
			continue
		}

		if err := h.run(ctx, tracer, task); err != nil {
			if permanent(err) {
				logger.WarnContext(ctx, "Dropping task that cannot succeed",
					slog.String("type", string(task.Type)),
					slog.String("key", task.IdempotencyKey()),
					slog.String("error", err.Error()),
				)
				continue
			}
			logger.ErrorContext(ctx, "Failed to process task",
				slog.String("type", string(task.Type)),
				slog.String("key", task.IdempotencyKey()),
				slog.String("error", err.Error()),
			)
			failures = append(failures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}

	logger.InfoContext(ctx, "Task batch completed",
		slog.Int("total", len(event.Records)),
		slog.Int("failures", len(failures)),
	)

	return events.SQSEventResponse{
		BatchItemFailures: failures,
	}, nil
}

func (h *handler) run(ctx context.Context, tracer trace.Tracer, task taskqueue.Task) error {
	ctx, span := tracer.Start(ctx, "Task",
		trace.WithAttributes(
			attribute.String("task_type", string(task.Type)),
			attribute.String("task_key", task.IdempotencyKey()),
		))
	defer span.End()

	err := h.tasks.Handle(ctx, task)
	if err != nil {
		tracing.RecordError(span, err)
	}
	return err
}

// permanent reports whether a retry would fail the same way. Model failures
// are retried because a fresh draft may pass validation.
func permanent(err error) bool {
	return errors.Is(err, apperr.ErrValidation) ||
		errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, taskqueue.ErrInvalidTask)
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

	services := app.New(cfg, app.DynamoDBStores(dynamoClient, cfg.TableName), app.NewModel(cfg, result.Config), tasks, logger)

	h := newHandler(services.Dispatcher)
	result.Start(h.handle)
}
