package taskqueue

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Publisher enqueues background tasks.
type Publisher interface {
	Publish(ctx context.Context, task Task) error
}

// SQSSender abstracts SQS send operations for dependency inversion.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher publishes tasks to an SQS queue. On a FIFO queue the task's
// idempotency key is used as the deduplication id.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	fifo     bool
}

// NewSQSPublisher creates a new SQSPublisher.
func NewSQSPublisher(client SQSSender, queueURL string) *SQSPublisher {
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// Publish sends the task as a JSON message body.
func (p *SQSPublisher) Publish(ctx context.Context, task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	body, err := task.Encode()
	if err != nil {
		return err
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}
	if p.fifo {
		input.MessageDeduplicationId = aws.String(task.IdempotencyKey())
		input.MessageGroupId = aws.String(groupID(task))
	}

	_, err = p.client.SendMessage(ctx, input)
	return err
}

// groupID orders orchestration per message and persona work per profile.
func groupID(task Task) string {
	if task.Type == TypePersona {
		return "persona-" + task.ProfileID
	}
	return "orchestrate-" + task.MessageID
}
