package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/dynamo"
)

// Error types for repository operations.
var (
	ErrProfileNotFound   = apperr.NotFound("profile not found")
	ErrEmailTaken        = apperr.Validation("email address already belongs to a profile")
	ErrAuthUserTaken     = apperr.Validation("auth user already has a profile")
	ErrTransactionFailed = errors.New("transaction failed")
)

// DynamoDBClient defines the interface for DynamoDB operations.
type DynamoDBClient interface {
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Repository handles profile storage operations.
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

// GetProfile retrieves a profile by ID.
func (r *Repository) GetProfile(ctx context.Context, profileID string) (*Profile, error) {
	p := &Profile{ID: profileID}
	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            dynamo.Key(p.PK(), p.SK()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if output.Item == nil {
		return nil, ErrProfileNotFound
	}
	return unmarshalProfile(output.Item), nil
}

// GetByEmail retrieves the profile that owns an email address.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	return r.lookup(ctx, emailLockPK(NormalizeEmail(email)), skProfileEmail)
}

// GetByAuthUser retrieves the profile bound to an authenticated user.
func (r *Repository) GetByAuthUser(ctx context.Context, authUserID string) (*Profile, error) {
	return r.lookup(ctx, authUserPK(authUserID), skAuthUser)
}

// lookup follows a pointer item to the profile it names.
func (r *Repository) lookup(ctx context.Context, pk, sk string) (*Profile, error) {
	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            dynamo.Key(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if output.Item == nil {
		return nil, ErrProfileNotFound
	}
	profileID := dynamo.StringAttr(output.Item, "profileId")
	if profileID == "" {
		return nil, ErrProfileNotFound
	}
	return r.GetProfile(ctx, profileID)
}

// CreateProfile stores a new profile together with the item reserving its
// email address and, for humans, the auth user lookup item. Returns
// ErrEmailTaken when another profile already owns the address.
func (r *Repository) CreateProfile(ctx context.Context, p *Profile) error {
	notExists := aws.String("attribute_not_exists(pk)")
	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                marshalProfile(p),
				ConditionExpression: notExists,
			},
		},
		{
			Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                pointerItem(emailLockPK(p.Email), skProfileEmail, p.ID),
				ConditionExpression: notExists,
			},
		},
	}
	if p.Kind == KindHuman {
		transactItems = append(transactItems, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                pointerItem(authUserPK(p.AuthUserID), skAuthUser, p.ID),
				ConditionExpression: notExists,
			},
		})
	}

	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		switch {
		case dynamo.CanceledByCondition(err, 1):
			return ErrEmailTaken
		case dynamo.CanceledByCondition(err, 2):
			return ErrAuthUserTaken
		}
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	return nil
}

// SetPersona writes generated persona fields and marks the persona ready.
func (r *Repository) SetPersona(ctx context.Context, profileID string, fields PersonaFields, updatedAt time.Time) error {
	p := &Profile{ID: profileID}
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              dynamo.Key(p.PK(), p.SK()),
		UpdateExpression: aws.String("SET #name = :name, personaSummary = :summary, personaCategory = :category, personaState = :ready, updatedAt = :updatedAt"),
		ExpressionAttributeNames: map[string]string{
			"#name": "name",
			"#kind": "kind",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name":      &types.AttributeValueMemberS{Value: fields.Name},
			":summary":   &types.AttributeValueMemberS{Value: fields.Summary},
			":category":  &types.AttributeValueMemberS{Value: string(fields.Category)},
			":ready":     &types.AttributeValueMemberS{Value: string(PersonaReady)},
			":updatedAt": &types.AttributeValueMemberS{Value: dynamo.FormatTime(updatedAt)},
			":persona":   &types.AttributeValueMemberS{Value: string(KindPersona)},
		},
		ConditionExpression: aws.String("attribute_exists(pk) AND #kind = :persona"),
	})
	if err != nil {
		if dynamo.IsConditionFailed(err) {
			return ErrProfileNotFound
		}
		return err
	}
	return nil
}

func pointerItem(pk, sk, profileID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamo.AttrPK: &types.AttributeValueMemberS{Value: pk},
		dynamo.AttrSK: &types.AttributeValueMemberS{Value: sk},
		"profileId":   &types.AttributeValueMemberS{Value: profileID},
	}
}

func marshalProfile(p *Profile) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		dynamo.AttrPK:  &types.AttributeValueMemberS{Value: p.PK()},
		dynamo.AttrSK:  &types.AttributeValueMemberS{Value: p.SK()},
		"profileId":    &types.AttributeValueMemberS{Value: p.ID},
		"kind":         &types.AttributeValueMemberS{Value: string(p.Kind)},
		"name":         &types.AttributeValueMemberS{Value: p.Name},
		"email":        &types.AttributeValueMemberS{Value: p.Email},
		"personaState": &types.AttributeValueMemberS{Value: string(p.PersonaState)},
		"createdAt":    &types.AttributeValueMemberS{Value: dynamo.FormatTime(p.CreatedAt)},
		"updatedAt":    &types.AttributeValueMemberS{Value: dynamo.FormatTime(p.UpdatedAt)},
	}
	if p.AuthUserID != "" {
		item["authUserId"] = &types.AttributeValueMemberS{Value: p.AuthUserID}
	}
	if p.PersonaSummary != "" {
		item["personaSummary"] = &types.AttributeValueMemberS{Value: p.PersonaSummary}
	}
	if p.PersonaCategory != "" {
		item["personaCategory"] = &types.AttributeValueMemberS{Value: string(p.PersonaCategory)}
	}
	return item
}

func unmarshalProfile(item map[string]types.AttributeValue) *Profile {
	p := &Profile{
		ID:             dynamo.StringAttr(item, "profileId"),
		Kind:           Kind(dynamo.StringAttr(item, "kind")),
		AuthUserID:     dynamo.StringAttr(item, "authUserId"),
		Name:           dynamo.StringAttr(item, "name"),
		Email:          dynamo.StringAttr(item, "email"),
		PersonaSummary: dynamo.StringAttr(item, "personaSummary"),
		PersonaState:   PersonaState(dynamo.StringAttr(item, "personaState")),
		CreatedAt:      dynamo.TimeAttr(item, "createdAt"),
		UpdatedAt:      dynamo.TimeAttr(item, "updatedAt"),
	}
	if c := dynamo.StringAttr(item, "personaCategory"); c != "" {
		p.PersonaCategory = ParseCategory(c)
	}
	if p.Kind == "" {
		// Derive the kind from the auth binding when the attribute is absent.
		p.Kind = KindPersona
		if p.AuthUserID != "" {
			p.Kind = KindHuman
		}
	}
	if p.PersonaState == "" {
		p.PersonaState = PersonaReady
		if p.Kind == KindPersona && p.PersonaSummary == "" {
			p.PersonaState = PersonaPending
		}
	}
	return p
}
