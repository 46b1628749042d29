package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// DefaultMaxRetry is the retry budget for tasks enqueued through asynq.
const DefaultMaxRetry = 5

// AsynqEnqueuer abstracts the asynq client for dependency inversion.
type AsynqEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqPublisher publishes tasks to a Redis-backed asynq queue.
type AsynqPublisher struct {
	client   AsynqEnqueuer
	maxRetry int
}

// NewAsynqPublisher creates a new AsynqPublisher.
func NewAsynqPublisher(client AsynqEnqueuer) *AsynqPublisher {
	return &AsynqPublisher{client: client, maxRetry: DefaultMaxRetry}
}

// NewAsynqClient connects an asynq client to redisURL.
func NewAsynqClient(redisURL string) (*asynq.Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return asynq.NewClient(opt), nil
}

// Publish enqueues the task. The idempotency key is the asynq task id, so a
// task that is already queued is not queued twice.
func (p *AsynqPublisher) Publish(ctx context.Context, task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	body, err := task.Encode()
	if err != nil {
		return err
	}

	_, err = p.client.EnqueueContext(ctx, asynq.NewTask(string(task.Type), body),
		asynq.TaskID(task.IdempotencyKey()),
		asynq.MaxRetry(p.maxRetry),
		asynq.Timeout(2*time.Minute),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// NewServeMux routes every task type known to d through an asynq mux.
func NewServeMux(d *Dispatcher) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, typ := range d.Types() {
		mux.HandleFunc(string(typ), func(ctx context.Context, t *asynq.Task) error {
			task, err := Decode(t.Payload())
			if err != nil {
				return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
			}
			return d.Handle(ctx, task)
		})
	}
	return mux
}

// NewAsynqServer builds an asynq server consuming the default queue.
func NewAsynqServer(redisURL string, concurrency int, onError func(ctx context.Context, taskType string, err error)) (*asynq.Server, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			if onError != nil {
				onError(ctx, task.Type(), err)
			}
		}),
	}), nil
}
