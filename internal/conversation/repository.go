package conversation

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ryandotelliott/dead-internet/internal/dynamo"
)

const (
	attrProfileID = "profileId"
	attrRole      = "role"
	attrContent   = "content"
	attrCreatedAt = "createdAt"
)

// DynamoDBClient defines the interface for DynamoDB operations.
type DynamoDBClient interface {
	PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Repository stores conversations and their turns in DynamoDB.
type Repository struct {
	client    DynamoDBClient
	tableName string
}

// NewRepository creates a new Repository.
func NewRepository(client DynamoDBClient, tableName string) *Repository {
	return &Repository{client: client, tableName: tableName}
}

// CreateThread writes the conversation record. An existing record is left
// untouched.
func (r *Repository) CreateThread(ctx context.Context, t *Thread) error {
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: t.PK()},
			dynamo.AttrSK: &types.AttributeValueMemberS{Value: t.SK()},
			attrProfileID: &types.AttributeValueMemberS{Value: t.ProfileID},
			attrCreatedAt: &types.AttributeValueMemberS{Value: dynamo.FormatTime(t.CreatedAt)},
		},
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil && !dynamo.IsConditionFailed(err) {
		return err
	}
	return nil
}

// Turns returns up to limit of the most recent turns, oldest first.
func (r *Repository) Turns(ctx context.Context, threadID string, limit int) ([]Turn, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: dynamo.PrefixConversation + threadID},
			":prefix": &types.AttributeValueMemberS{Value: dynamo.PrefixTurn},
		},
		ConsistentRead:   aws.Bool(true),
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	output, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, err
	}

	turns := make([]Turn, len(output.Items))
	for i, item := range output.Items {
		turns[len(turns)-1-i] = Turn{
			Role:      Role(dynamo.StringAttr(item, attrRole)),
			Content:   dynamo.StringAttr(item, attrContent),
			CreatedAt: dynamo.TimeAttr(item, attrCreatedAt),
		}
	}
	return turns, nil
}

// Append adds turns to a conversation in one transaction.
func (r *Repository) Append(ctx context.Context, threadID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	if len(turns) > dynamo.MaxTransactItems {
		return fmt.Errorf("append %d turns: limit is %d", len(turns), dynamo.MaxTransactItems)
	}

	pk := dynamo.PrefixConversation + threadID
	items := make([]types.TransactWriteItem, len(turns))
	for i, turn := range turns {
		items[i] = types.TransactWriteItem{Put: &types.Put{
			TableName: aws.String(r.tableName),
			Item: map[string]types.AttributeValue{
				dynamo.AttrPK: &types.AttributeValueMemberS{Value: pk},
				dynamo.AttrSK: &types.AttributeValueMemberS{Value: turnSK(turn, i)},
				attrRole:      &types.AttributeValueMemberS{Value: string(turn.Role)},
				attrContent:   &types.AttributeValueMemberS{Value: turn.Content},
				attrCreatedAt: &types.AttributeValueMemberS{Value: dynamo.FormatTime(turn.CreatedAt)},
			},
		}}
	}

	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return fmt.Errorf("append turns: %w", err)
	}
	return nil
}
