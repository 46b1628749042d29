package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
)

// mockDynamoDBClient is a test double for DynamoDB operations.
type mockDynamoDBClient struct {
	getItemFunc            func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	queryFunc              func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	updateItemFunc         func(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	transactWriteItemsFunc func(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

func (m *mockDynamoDBClient) GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getItemFunc != nil {
		return m.getItemFunc(ctx, input, opts...)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDynamoDBClient) Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, input, opts...)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockDynamoDBClient) UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if m.updateItemFunc != nil {
		return m.updateItemFunc(ctx, input, opts...)
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamoDBClient) TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if m.transactWriteItemsFunc != nil {
		return m.transactWriteItemsFunc(ctx, input, opts...)
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func attrS(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func testDelivery(recipients int, marker bool) *Delivery {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	msg := &Message{ID: "msg-1", SenderID: "sender", Subject: "Audit", Body: "Hi", ThreadID: "thread-1", CreatedAt: now}
	d := &Delivery{Message: msg}
	d.Entries = append(d.Entries, &Entry{ID: "e-sent", SenderID: "sender", OwnerID: "sender", MessageID: msg.ID, Role: RoleSender, Folder: FolderSent, Read: true, Subject: msg.Subject, ThreadID: msg.ThreadID, CreatedAt: now})
	for i := 0; i < recipients; i++ {
		id := string(rune('a' + i))
		d.Entries = append(d.Entries, &Entry{ID: "e-" + id, SenderID: "sender", OwnerID: "owner-" + id, MessageID: msg.ID, Role: RoleTo, Folder: FolderInbox, Subject: msg.Subject, ThreadID: msg.ThreadID, CreatedAt: now})
	}
	if marker {
		d.Marker = &ReplyMarker{MessageID: "msg-0", ProfileID: "sender", ReplyID: msg.ID}
	}
	return d
}

func TestRepository_Deliver_WritesEverythingInOneTransaction(t *testing.T) {
	var captured *dynamodb.TransactWriteItemsInput
	calls := 0
	mock := &mockDynamoDBClient{
		transactWriteItemsFunc: func(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
			calls++
			captured = input
			return &dynamodb.TransactWriteItemsOutput{}, nil
		},
	}

	repo := NewRepository(mock, "deadnet")
	if err := repo.Deliver(context.Background(), testDelivery(2, false)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("TransactWriteItems calls = %d, want 1", calls)
	}
	// message + thread copy + 3 entries + 3 participants
	if len(captured.TransactItems) != 8 {
		t.Fatalf("TransactItems = %d, want 8", len(captured.TransactItems))
	}

	msg := captured.TransactItems[0].Put.Item
	if attrS(msg, "pk") != "MSG#msg-1" || attrS(msg, "sk") != "MSG" {
		t.Errorf("message key = %s/%s", attrS(msg, "pk"), attrS(msg, "sk"))
	}
	threadCopy := captured.TransactItems[1].Put.Item
	if attrS(threadCopy, "pk") != "THREAD#thread-1" {
		t.Errorf("thread copy pk = %q", attrS(threadCopy, "pk"))
	}
	if sk := attrS(threadCopy, "sk"); sk != "MSG#2025-03-01T09:00:00.000000000Z#msg-1" {
		t.Errorf("thread copy sk = %q", sk)
	}

	sent := captured.TransactItems[2].Put.Item
	if attrS(sent, "gsi1pk") != "OWNER#sender#FOLDER#sent" {
		t.Errorf("sent gsi1pk = %q", attrS(sent, "gsi1pk"))
	}
	if v, ok := sent["read"].(*types.AttributeValueMemberBOOL); !ok || !v.Value {
		t.Error("sent entry should be read")
	}
	participant := captured.TransactItems[3].Put.Item
	if attrS(participant, "pk") != "MSG#msg-1" || attrS(participant, "sk") != "PARTICIPANT#e-sent" {
		t.Errorf("participant key = %s/%s", attrS(participant, "pk"), attrS(participant, "sk"))
	}

	inbox := captured.TransactItems[4].Put.Item
	if attrS(inbox, "gsi1pk") != "OWNER#owner-a#FOLDER#inbox" {
		t.Errorf("inbox gsi1pk = %q", attrS(inbox, "gsi1pk"))
	}
	if attrS(inbox, "gsi2pk") != "OWNER#owner-a#THREAD#thread-1" {
		t.Errorf("inbox gsi2pk = %q", attrS(inbox, "gsi2pk"))
	}
	if v, ok := inbox["read"].(*types.AttributeValueMemberBOOL); !ok || v.Value {
		t.Error("inbox entry should be unread")
	}
}

func TestRepository_Deliver_WithMarker(t *testing.T) {
	var captured *dynamodb.TransactWriteItemsInput
	mock := &mockDynamoDBClient{
		transactWriteItemsFunc: func(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
			captured = input
			return &dynamodb.TransactWriteItemsOutput{}, nil
		},
	}

	if err := NewRepository(mock, "deadnet").Deliver(context.Background(), testDelivery(1, true)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	last := captured.TransactItems[len(captured.TransactItems)-1].Put
	if attrS(last.Item, "pk") != "MSG#msg-0" || attrS(last.Item, "sk") != "REPLY#sender" {
		t.Errorf("marker key = %s/%s", attrS(last.Item, "pk"), attrS(last.Item, "sk"))
	}
	if last.ConditionExpression == nil || *last.ConditionExpression != "attribute_not_exists(pk)" {
		t.Error("marker must be insert-if-absent")
	}
}

func TestRepository_Deliver_ReplyExists(t *testing.T) {
	mock := &mockDynamoDBClient{
		transactWriteItemsFunc: func(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
			reasons := make([]types.CancellationReason, len(input.TransactItems))
			for i := range reasons {
				reasons[i].Code = aws.String("None")
			}
			reasons[len(reasons)-1].Code = aws.String("ConditionalCheckFailed")
			return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
		},
	}

	err := NewRepository(mock, "deadnet").Deliver(context.Background(), testDelivery(1, true))
	if !errors.Is(err, ErrReplyExists) {
		t.Errorf("error = %v, want ErrReplyExists", err)
	}
}

func TestRepository_Deliver_TransactionFailed(t *testing.T) {
	mock := &mockDynamoDBClient{
		transactWriteItemsFunc: func(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
			return nil, errors.New("transaction cancelled")
		},
	}

	err := NewRepository(mock, "deadnet").Deliver(context.Background(), testDelivery(1, false))
	if !errors.Is(err, ErrTransactionFailed) {
		t.Errorf("error = %v, want ErrTransactionFailed", err)
	}
}

func TestRepository_Deliver_TooManyItems(t *testing.T) {
	called := false
	mock := &mockDynamoDBClient{
		transactWriteItemsFunc: func(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
			called = true
			return &dynamodb.TransactWriteItemsOutput{}, nil
		},
	}

	d := testDelivery(0, false)
	for i := 0; i < 60; i++ {
		d.Entries = append(d.Entries, &Entry{ID: strings.Repeat("x", i+1), MessageID: "msg-1", OwnerID: "o", Folder: FolderInbox})
	}
	err := NewRepository(mock, "deadnet").Deliver(context.Background(), d)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("error = %v, want validation error", err)
	}
	if called {
		t.Error("TransactWriteItems called for oversized delivery")
	}
}

func TestRepository_GetMessage_NotFound(t *testing.T) {
	_, err := NewRepository(&mockDynamoDBClient{}, "deadnet").GetMessage(context.Background(), "missing")
	if !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("error = %v, want ErrMessageNotFound", err)
	}
}

func TestRepository_ThreadMessages_Paginates(t *testing.T) {
	calls := 0
	mock := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			calls++
			if pk := attrS(input.ExpressionAttributeValues, ":pk"); pk != "THREAD#thread-1" {
				t.Errorf(":pk = %q", pk)
			}
			if input.ConsistentRead == nil || !*input.ConsistentRead {
				t.Error("expected consistent read")
			}
			if calls == 1 {
				return &dynamodb.QueryOutput{
					Items: []map[string]types.AttributeValue{
						{"messageId": &types.AttributeValueMemberS{Value: "m1"}},
					},
					LastEvaluatedKey: map[string]types.AttributeValue{
						"pk": &types.AttributeValueMemberS{Value: "THREAD#thread-1"},
					},
				}, nil
			}
			if input.ExclusiveStartKey == nil {
				t.Error("second page without ExclusiveStartKey")
			}
			return &dynamodb.QueryOutput{
				Items: []map[string]types.AttributeValue{
					{"messageId": &types.AttributeValueMemberS{Value: "m2"}},
				},
			}, nil
		},
	}

	msgs, err := NewRepository(mock, "deadnet").ThreadMessages(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("ThreadMessages() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestRepository_Participants(t *testing.T) {
	mock := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			if prefix := attrS(input.ExpressionAttributeValues, ":prefix"); prefix != "PARTICIPANT#" {
				t.Errorf(":prefix = %q", prefix)
			}
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
				{"ownerId": &types.AttributeValueMemberS{Value: "sender"}, "entryId": &types.AttributeValueMemberS{Value: "e1"}, "role": &types.AttributeValueMemberS{Value: "sender"}},
				{"ownerId": &types.AttributeValueMemberS{Value: "p1"}, "entryId": &types.AttributeValueMemberS{Value: "e2"}, "role": &types.AttributeValueMemberS{Value: "to"}},
			}}, nil
		},
	}

	ps, err := NewRepository(mock, "deadnet").Participants(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("Participants() error = %v", err)
	}
	if len(ps) != 2 || ps[1].OwnerID != "p1" || ps[1].Role != RoleTo {
		t.Errorf("participants = %+v", ps)
	}
}

func TestRepository_FolderEntries_UsesFolderIndex(t *testing.T) {
	mock := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			if input.IndexName == nil || *input.IndexName != "gsi1" {
				t.Errorf("IndexName = %v, want gsi1", input.IndexName)
			}
			if pk := attrS(input.ExpressionAttributeValues, ":pk"); pk != "OWNER#owner-1#FOLDER#inbox" {
				t.Errorf(":pk = %q", pk)
			}
			if input.ScanIndexForward == nil || *input.ScanIndexForward {
				t.Error("expected newest first")
			}
			if input.Limit == nil || *input.Limit != 50 {
				t.Errorf("Limit = %v, want 50", input.Limit)
			}
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
				{
					"entryId":   &types.AttributeValueMemberS{Value: "e1"},
					"folder":    &types.AttributeValueMemberS{Value: "inbox"},
					"read":      &types.AttributeValueMemberBOOL{Value: true},
					"createdAt": &types.AttributeValueMemberS{Value: "2025-03-01T09:00:00Z"},
				},
			}}, nil
		},
	}

	entries, err := NewRepository(mock, "deadnet").FolderEntries(context.Background(), "owner-1", FolderInbox, 50)
	if err != nil {
		t.Fatalf("FolderEntries() error = %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "e1" || !entries[0].Read || entries[0].Folder != FolderInbox {
		t.Errorf("entries = %+v", entries)
	}
}

func TestRepository_SetRead_ConditionFailed(t *testing.T) {
	mock := &mockDynamoDBClient{
		updateItemFunc: func(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			if owner := attrS(input.ExpressionAttributeValues, ":owner"); owner != "owner-1" {
				t.Errorf(":owner = %q", owner)
			}
			return nil, &types.ConditionalCheckFailedException{}
		},
	}

	err := NewRepository(mock, "deadnet").SetRead(context.Background(), &Entry{ID: "e1", OwnerID: "owner-1"}, true)
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("error = %v, want ErrEntryNotFound", err)
	}
}

func TestRepository_SetFolder_MovesIndexKey(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	mock := &mockDynamoDBClient{
		updateItemFunc: func(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = input
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}

	if err := NewRepository(mock, "deadnet").SetFolder(context.Background(), &Entry{ID: "e1", OwnerID: "owner-1"}, FolderTrash); err != nil {
		t.Fatalf("SetFolder() error = %v", err)
	}
	if got := attrS(captured.ExpressionAttributeValues, ":gsi1pk"); got != "OWNER#owner-1#FOLDER#trash" {
		t.Errorf(":gsi1pk = %q", got)
	}
}

func TestRepository_DeleteEntry(t *testing.T) {
	var captured *dynamodb.TransactWriteItemsInput
	mock := &mockDynamoDBClient{
		transactWriteItemsFunc: func(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
			captured = input
			return &dynamodb.TransactWriteItemsOutput{}, nil
		},
	}

	entry := &Entry{ID: "e1", OwnerID: "owner-1", MessageID: "msg-1"}
	if err := NewRepository(mock, "deadnet").DeleteEntry(context.Background(), entry); err != nil {
		t.Fatalf("DeleteEntry() error = %v", err)
	}
	if len(captured.TransactItems) != 2 {
		t.Fatalf("TransactItems = %d, want 2", len(captured.TransactItems))
	}
	participant := captured.TransactItems[1].Delete.Key
	if attrS(participant, "pk") != "MSG#msg-1" || attrS(participant, "sk") != "PARTICIPANT#e1" {
		t.Errorf("participant key = %s/%s", attrS(participant, "pk"), attrS(participant, "sk"))
	}
}

func TestRepository_ReplyExists(t *testing.T) {
	mock := &mockDynamoDBClient{
		getItemFunc: func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			if sk := attrS(input.Key, "sk"); sk != "REPLY#persona-1" {
				t.Errorf("sk = %q", sk)
			}
			return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
				"pk": &types.AttributeValueMemberS{Value: "MSG#msg-1"},
			}}, nil
		},
	}

	exists, err := NewRepository(mock, "deadnet").ReplyExists(context.Background(), "msg-1", "persona-1")
	if err != nil {
		t.Fatalf("ReplyExists() error = %v", err)
	}
	if !exists {
		t.Error("ReplyExists() = false, want true")
	}
}

func TestParseFolder(t *testing.T) {
	for _, s := range []string{"inbox", "sent", "trash"} {
		if f, err := ParseFolder(s); err != nil || string(f) != s {
			t.Errorf("ParseFolder(%q) = %q, %v", s, f, err)
		}
	}
	if _, err := ParseFolder("spam"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("ParseFolder(spam) error = %v, want validation error", err)
	}
}
