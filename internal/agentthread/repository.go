// Package agentthread links a mail thread and a persona to the persona's
// model-side conversation handle.
package agentthread

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ryandotelliott/dead-internet/internal/dynamo"
)

// Error types for link operations.
var (
	ErrLinkNotFound = errors.New("agent thread link not found")
	ErrLinkExists   = errors.New("agent thread link already exists")
)

const (
	attrThreadID      = "threadId"
	attrProfileID     = "profileId"
	attrAgentThreadID = "agentThreadId"
	attrCreatedAt     = "createdAt"
)

// Link maps (thread, persona) to a conversation handle.
type Link struct {
	ThreadID      string
	ProfileID     string
	AgentThreadID string
	CreatedAt     time.Time
}

// PK returns the partition key for this link.
func (l *Link) PK() string {
	return dynamo.PrefixThread + l.ThreadID
}

// SK returns the sort key for this link.
func (l *Link) SK() string {
	return dynamo.PrefixAgent + l.ProfileID
}

// DynamoDBClient defines the interface for DynamoDB operations.
type DynamoDBClient interface {
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Repository stores links in DynamoDB.
type Repository struct {
	client    DynamoDBClient
	tableName string
}

// NewRepository creates a new Repository.
func NewRepository(client DynamoDBClient, tableName string) *Repository {
	return &Repository{client: client, tableName: tableName}
}

// GetLink returns the link for a thread and persona.
func (r *Repository) GetLink(ctx context.Context, threadID, profileID string) (*Link, error) {
	l := &Link{ThreadID: threadID, ProfileID: profileID}
	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            dynamo.Key(l.PK(), l.SK()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if output.Item == nil {
		return nil, ErrLinkNotFound
	}
	l.AgentThreadID = dynamo.StringAttr(output.Item, attrAgentThreadID)
	l.CreatedAt = dynamo.TimeAttr(output.Item, attrCreatedAt)
	return l, nil
}

// PutLink inserts a link. Returns ErrLinkExists if the pair is already
// linked.
func (r *Repository) PutLink(ctx context.Context, l *Link) error {
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			dynamo.AttrPK:     &types.AttributeValueMemberS{Value: l.PK()},
			dynamo.AttrSK:     &types.AttributeValueMemberS{Value: l.SK()},
			attrThreadID:      &types.AttributeValueMemberS{Value: l.ThreadID},
			attrProfileID:     &types.AttributeValueMemberS{Value: l.ProfileID},
			attrAgentThreadID: &types.AttributeValueMemberS{Value: l.AgentThreadID},
			attrCreatedAt:     &types.AttributeValueMemberS{Value: dynamo.FormatTime(l.CreatedAt)},
		},
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		if dynamo.IsConditionFailed(err) {
			return ErrLinkExists
		}
		return err
	}
	return nil
}
