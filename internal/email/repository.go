package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/dynamo"
)

// Error types for repository operations.
var (
	ErrTransactionFailed = errors.New("transaction failed")
	ErrMessageNotFound   = apperr.NotFound("message not found")
	ErrEntryNotFound     = apperr.NotFound("mailbox entry not found")
	ErrReplyExists       = errors.New("reply already delivered")
)

// Store is the message log and mailbox entry persistence.
type Store interface {
	Deliver(ctx context.Context, d *Delivery) error
	GetMessage(ctx context.Context, messageID string) (*Message, error)
	ThreadMessages(ctx context.Context, threadID string) ([]*Message, error)
	Participants(ctx context.Context, messageID string) ([]Participant, error)
	ReplyExists(ctx context.Context, messageID, profileID string) (bool, error)
	GetEntry(ctx context.Context, entryID string) (*Entry, error)
	FolderEntries(ctx context.Context, ownerID string, folder Folder, limit int) ([]*Entry, error)
	ThreadEntries(ctx context.Context, ownerID, threadID string) ([]*Entry, error)
	SetRead(ctx context.Context, entry *Entry, read bool) error
	SetFolder(ctx context.Context, entry *Entry, folder Folder) error
	DeleteEntry(ctx context.Context, entry *Entry) error
}

// DynamoDBClient defines the interface for DynamoDB operations.
type DynamoDBClient interface {
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Repository handles message and mailbox entry storage in DynamoDB.
type Repository struct {
	client    DynamoDBClient
	tableName string
}

// NewRepository creates a new Repository.
func NewRepository(client DynamoDBClient, tableName string) *Repository {
	return &Repository{
		client:    client,
		tableName: tableName,
	}
}

// Deliver writes the message, its thread copy, every entry with its
// participant item and the optional reply marker in one transaction.
// Returns ErrReplyExists when the marker is already present.
func (r *Repository) Deliver(ctx context.Context, d *Delivery) error {
	notExists := aws.String("attribute_not_exists(pk)")
	transactItems := make([]types.TransactWriteItem, 0, 3+2*len(d.Entries))

	transactItems = append(transactItems,
		types.TransactWriteItem{Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                r.marshalMessage(d.Message, d.Message.PK(), d.Message.SK()),
			ConditionExpression: notExists,
		}},
		types.TransactWriteItem{Put: &types.Put{
			TableName: aws.String(r.tableName),
			Item:      r.marshalMessage(d.Message, d.Message.ThreadPK(), d.Message.ThreadSK()),
		}},
	)

	for _, entry := range d.Entries {
		transactItems = append(transactItems,
			types.TransactWriteItem{Put: &types.Put{
				TableName: aws.String(r.tableName),
				Item:      r.marshalEntry(entry),
			}},
			types.TransactWriteItem{Put: &types.Put{
				TableName: aws.String(r.tableName),
				Item:      r.marshalParticipant(entry),
			}},
		)
	}

	if d.Marker != nil {
		transactItems = append(transactItems, types.TransactWriteItem{Put: &types.Put{
			TableName: aws.String(r.tableName),
			Item: map[string]types.AttributeValue{
				dynamo.AttrPK: &types.AttributeValueMemberS{Value: dynamo.PrefixMessage + d.Marker.MessageID},
				dynamo.AttrSK: &types.AttributeValueMemberS{Value: d.Marker.SK()},
				AttrProfileID: &types.AttributeValueMemberS{Value: d.Marker.ProfileID},
				AttrReplyID:   &types.AttributeValueMemberS{Value: d.Marker.ReplyID},
			},
			ConditionExpression: notExists,
		}})
	}

	if len(transactItems) > dynamo.MaxTransactItems {
		return apperr.Validation(fmt.Sprintf("delivery needs %d writes, limit is %d", len(transactItems), dynamo.MaxTransactItems))
	}

	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		if d.Marker != nil && dynamo.CanceledByCondition(err, len(transactItems)-1) {
			return ErrReplyExists
		}
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (r *Repository) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	m := &Message{ID: messageID}
	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            dynamo.Key(m.PK(), m.SK()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if output.Item == nil {
		return nil, ErrMessageNotFound
	}
	return unmarshalMessage(output.Item), nil
}

// ThreadMessages returns every message in a thread, oldest first.
func (r *Repository) ThreadMessages(ctx context.Context, threadID string) ([]*Message, error) {
	items, err := r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: dynamo.PrefixThread + threadID},
			":prefix": &types.AttributeValueMemberS{Value: dynamo.PrefixMessage},
		},
		ConsistentRead:   aws.Bool(true),
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	messages := make([]*Message, len(items))
	for i, item := range items {
		messages[i] = unmarshalMessage(item)
	}
	return messages, nil
}

// Participants returns the owners holding an entry for a message.
func (r *Repository) Participants(ctx context.Context, messageID string) ([]Participant, error) {
	items, err := r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: dynamo.PrefixMessage + messageID},
			":prefix": &types.AttributeValueMemberS{Value: dynamo.PrefixParticipant},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	participants := make([]Participant, len(items))
	for i, item := range items {
		participants[i] = Participant{
			OwnerID: dynamo.StringAttr(item, AttrOwnerID),
			EntryID: dynamo.StringAttr(item, AttrEntryID),
			Role:    Role(dynamo.StringAttr(item, AttrRole)),
		}
	}
	return participants, nil
}

// ReplyExists reports whether profileID has already replied to messageID.
func (r *Repository) ReplyExists(ctx context.Context, messageID, profileID string) (bool, error) {
	marker := &ReplyMarker{MessageID: messageID, ProfileID: profileID}
	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(r.tableName),
		Key:                  dynamo.Key(dynamo.PrefixMessage+messageID, marker.SK()),
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("pk"),
	})
	if err != nil {
		return false, err
	}
	return output.Item != nil, nil
}

// GetEntry retrieves a mailbox entry by ID.
func (r *Repository) GetEntry(ctx context.Context, entryID string) (*Entry, error) {
	e := &Entry{ID: entryID}
	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            dynamo.Key(e.PK(), e.SK()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if output.Item == nil {
		return nil, ErrEntryNotFound
	}
	return unmarshalEntry(output.Item), nil
}

// FolderEntries returns up to limit of an owner's entries in a folder,
// newest first.
func (r *Repository) FolderEntries(ctx context.Context, ownerID string, folder Folder, limit int) ([]*Entry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(dynamo.IndexGSI1),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: FolderIndexPK(ownerID, folder)},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	output, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, len(output.Items))
	for i, item := range output.Items {
		entries[i] = unmarshalEntry(item)
	}
	return entries, nil
}

// ThreadEntries returns an owner's entries in a thread, oldest first.
func (r *Repository) ThreadEntries(ctx context.Context, ownerID, threadID string) ([]*Entry, error) {
	items, err := r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(dynamo.IndexGSI2),
		KeyConditionExpression: aws.String("gsi2pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: ThreadIndexPK(ownerID, threadID)},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, len(items))
	for i, item := range items {
		entries[i] = unmarshalEntry(item)
	}
	return entries, nil
}

// SetRead updates the read flag of an entry still owned by entry.OwnerID.
func (r *Repository) SetRead(ctx context.Context, entry *Entry, read bool) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              dynamo.Key(entry.PK(), entry.SK()),
		UpdateExpression: aws.String("SET #read = :read"),
		ExpressionAttributeNames: map[string]string{
			"#read": AttrRead,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":read":  &types.AttributeValueMemberBOOL{Value: read},
			":owner": &types.AttributeValueMemberS{Value: entry.OwnerID},
		},
		ConditionExpression: aws.String("attribute_exists(pk) AND ownerId = :owner"),
	})
	if err != nil {
		if dynamo.IsConditionFailed(err) {
			return ErrEntryNotFound
		}
		return err
	}
	return nil
}

// SetFolder moves an entry to folder, keeping the folder index in step.
func (r *Repository) SetFolder(ctx context.Context, entry *Entry, folder Folder) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              dynamo.Key(entry.PK(), entry.SK()),
		UpdateExpression: aws.String("SET folder = :folder, gsi1pk = :gsi1pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":folder": &types.AttributeValueMemberS{Value: string(folder)},
			":gsi1pk": &types.AttributeValueMemberS{Value: FolderIndexPK(entry.OwnerID, folder)},
			":owner":  &types.AttributeValueMemberS{Value: entry.OwnerID},
		},
		ConditionExpression: aws.String("attribute_exists(pk) AND ownerId = :owner"),
	})
	if err != nil {
		if dynamo.IsConditionFailed(err) {
			return ErrEntryNotFound
		}
		return err
	}
	return nil
}

// DeleteEntry removes an entry and its participant item.
func (r *Repository) DeleteEntry(ctx context.Context, entry *Entry) error {
	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:           aws.String(r.tableName),
				Key:                 dynamo.Key(entry.PK(), entry.SK()),
				ConditionExpression: aws.String("attribute_exists(pk) AND ownerId = :owner"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":owner": &types.AttributeValueMemberS{Value: entry.OwnerID},
				},
			}},
			{Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       dynamo.Key(dynamo.PrefixMessage+entry.MessageID, entry.ParticipantSK()),
			}},
		},
	})
	if err != nil {
		if dynamo.CanceledByCondition(err, 0) {
			return ErrEntryNotFound
		}
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	return nil
}

// queryAll follows LastEvaluatedKey until the query is exhausted.
func (r *Repository) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		output, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		items = append(items, output.Items...)
		if len(output.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
}

func (r *Repository) marshalMessage(m *Message, pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamo.AttrPK: &types.AttributeValueMemberS{Value: pk},
		dynamo.AttrSK: &types.AttributeValueMemberS{Value: sk},
		AttrMessageID: &types.AttributeValueMemberS{Value: m.ID},
		AttrSenderID:  &types.AttributeValueMemberS{Value: m.SenderID},
		AttrSubject:   &types.AttributeValueMemberS{Value: m.Subject},
		AttrBody:      &types.AttributeValueMemberS{Value: m.Body},
		AttrThreadID:  &types.AttributeValueMemberS{Value: m.ThreadID},
		AttrCreatedAt: &types.AttributeValueMemberS{Value: dynamo.FormatTime(m.CreatedAt)},
	}
}

func (r *Repository) marshalEntry(e *Entry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamo.AttrPK:     &types.AttributeValueMemberS{Value: e.PK()},
		dynamo.AttrSK:     &types.AttributeValueMemberS{Value: e.SK()},
		dynamo.AttrGSI1PK: &types.AttributeValueMemberS{Value: FolderIndexPK(e.OwnerID, e.Folder)},
		dynamo.AttrGSI1SK: &types.AttributeValueMemberS{Value: e.IndexSK()},
		dynamo.AttrGSI2PK: &types.AttributeValueMemberS{Value: ThreadIndexPK(e.OwnerID, e.ThreadID)},
		dynamo.AttrGSI2SK: &types.AttributeValueMemberS{Value: e.IndexSK()},
		AttrEntryID:       &types.AttributeValueMemberS{Value: e.ID},
		AttrSenderID:      &types.AttributeValueMemberS{Value: e.SenderID},
		AttrOwnerID:       &types.AttributeValueMemberS{Value: e.OwnerID},
		AttrMessageID:     &types.AttributeValueMemberS{Value: e.MessageID},
		AttrRole:          &types.AttributeValueMemberS{Value: string(e.Role)},
		AttrFolder:        &types.AttributeValueMemberS{Value: string(e.Folder)},
		AttrRead:          &types.AttributeValueMemberBOOL{Value: e.Read},
		AttrSubject:       &types.AttributeValueMemberS{Value: e.Subject},
		AttrThreadID:      &types.AttributeValueMemberS{Value: e.ThreadID},
		AttrCreatedAt:     &types.AttributeValueMemberS{Value: dynamo.FormatTime(e.CreatedAt)},
	}
}

func (r *Repository) marshalParticipant(e *Entry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamo.AttrPK: &types.AttributeValueMemberS{Value: dynamo.PrefixMessage + e.MessageID},
		dynamo.AttrSK: &types.AttributeValueMemberS{Value: e.ParticipantSK()},
		AttrOwnerID:   &types.AttributeValueMemberS{Value: e.OwnerID},
		AttrEntryID:   &types.AttributeValueMemberS{Value: e.ID},
		AttrRole:      &types.AttributeValueMemberS{Value: string(e.Role)},
	}
}

func unmarshalMessage(item map[string]types.AttributeValue) *Message {
	return &Message{
		ID:        dynamo.StringAttr(item, AttrMessageID),
		SenderID:  dynamo.StringAttr(item, AttrSenderID),
		Subject:   dynamo.StringAttr(item, AttrSubject),
		Body:      dynamo.StringAttr(item, AttrBody),
		ThreadID:  dynamo.StringAttr(item, AttrThreadID),
		CreatedAt: dynamo.TimeAttr(item, AttrCreatedAt),
	}
}

func unmarshalEntry(item map[string]types.AttributeValue) *Entry {
	return &Entry{
		ID:        dynamo.StringAttr(item, AttrEntryID),
		SenderID:  dynamo.StringAttr(item, AttrSenderID),
		OwnerID:   dynamo.StringAttr(item, AttrOwnerID),
		MessageID: dynamo.StringAttr(item, AttrMessageID),
		Role:      Role(dynamo.StringAttr(item, AttrRole)),
		Folder:    Folder(dynamo.StringAttr(item, AttrFolder)),
		Read:      dynamo.BoolAttr(item, AttrRead),
		Subject:   dynamo.StringAttr(item, AttrSubject),
		ThreadID:  dynamo.StringAttr(item, AttrThreadID),
		CreatedAt: dynamo.TimeAttr(item, AttrCreatedAt),
	}
}
