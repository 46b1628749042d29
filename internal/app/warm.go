package app

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ItemGetter reads one item.
type ItemGetter interface {
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// WarmDynamoDB opens the connection to the table during cold start so the
// first request does not pay for TCP and TLS setup. The read result is
// ignored.
func WarmDynamoDB(ctx context.Context, client ItemGetter, tableName string) {
	warmCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, _ = client.GetItem(warmCtx, &dynamodb.GetItemInput{
		TableName: aws.String(tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "WARMUP"},
			"sk": &types.AttributeValueMemberS{Value: "WARMUP"},
		},
	})
}
