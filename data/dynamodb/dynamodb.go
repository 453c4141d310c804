package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/haydenwoodhead/contact.kiwi/contact"
)

var _ contact.Database = &DynamoDB{}

// Everything lives in one table keyed on PK and SK:
//
//	CONV#<id>  META                    conversation
//	CONV#<id>  MSG#<created>#<id>      message
//	MSGID#<id> MSGID                   claims a message id across conversations
//	RATE#<key> RATE                    rate limit record
const (
	conversationPrefix = "CONV#"
	messagePrefix      = "MSG#"
	messageIDPrefix    = "MSGID#"
	rateLimitPrefix    = "RATE#"
	metaSK             = "META"
	messageIDSK        = "MSGID"
	rateLimitSK        = "RATE"
)

// DynamoDB implements the db interface
type DynamoDB struct {
	dynDB     dynamodbiface.DynamoDBAPI
	tableName string
}

// GetNewDynamoDB gets a new dynamodb database or panics
func GetNewDynamoDB(table string) *DynamoDB {
	awsSession := session.Must(session.NewSession())

	return &DynamoDB{
		dynDB:     dynamodb.New(awsSession),
		tableName: table,
	}
}

// Start implements Database. The table is provisioned outside the app.
func (d *DynamoDB) Start() error {
	return nil
}

type conversationItem struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	ID             string `dynamodbav:"id"`
	Token          string `dynamodbav:"token"`
	FromName       string `dynamodbav:"from_name"`
	FromEmail      string `dynamodbav:"from_email"`
	Subject        string `dynamodbav:"subject"`
	CreatedAt      string `dynamodbav:"created_at"`
	LastActivityAt string `dynamodbav:"last_activity_at"`
	Status         string `dynamodbav:"status"`
}

type messageItem struct {
	PK             string  `dynamodbav:"PK"`
	SK             string  `dynamodbav:"SK"`
	ID             string  `dynamodbav:"id"`
	ConversationID string  `dynamodbav:"conversation_id"`
	Direction      string  `dynamodbav:"direction"`
	FromEmail      string  `dynamodbav:"from_email"`
	ToEmail        string  `dynamodbav:"to_email"`
	Subject        string  `dynamodbav:"subject"`
	BodyText       string  `dynamodbav:"body_text"`
	BodyHTML       *string `dynamodbav:"body_html,omitempty"`
	CreatedAt      string  `dynamodbav:"created_at"`
	ResendEmailID  *string `dynamodbav:"resend_email_id,omitempty"`
}

type messageIDItem struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	ConversationID string `dynamodbav:"conversation_id"`
}

type rateLimitItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	Key        string `dynamodbav:"key"`
	LastSentAt string `dynamodbav:"last_sent_at"`
}

func key(pk, sk string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"PK": {S: aws.String(pk)},
		"SK": {S: aws.String(sk)},
	}
}

func newConversationItem(c contact.Conversation) conversationItem {
	return conversationItem{
		PK:             conversationPrefix + c.ID,
		SK:             metaSK,
		ID:             c.ID,
		Token:          c.Token,
		FromName:       c.FromName,
		FromEmail:      c.FromEmail,
		Subject:        c.Subject,
		CreatedAt:      contact.FormatTime(c.CreatedAt),
		LastActivityAt: contact.FormatTime(c.LastActivityAt),
		Status:         c.Status,
	}
}

func (i conversationItem) conversation() (contact.Conversation, error) {
	created, err := contact.ParseTime(i.CreatedAt)
	if err != nil {
		return contact.Conversation{}, fmt.Errorf("bad created_at on conversation %v: %w", i.ID, err)
	}

	active, err := contact.ParseTime(i.LastActivityAt)
	if err != nil {
		return contact.Conversation{}, fmt.Errorf("bad last_activity_at on conversation %v: %w", i.ID, err)
	}

	return contact.Conversation{
		ID:             i.ID,
		Token:          i.Token,
		FromName:       i.FromName,
		FromEmail:      i.FromEmail,
		Subject:        i.Subject,
		CreatedAt:      created,
		LastActivityAt: active,
		Status:         i.Status,
	}, nil
}

func newMessageItem(m contact.Message) messageItem {
	created := contact.FormatTime(m.CreatedAt)
	return messageItem{
		PK:             conversationPrefix + m.ConversationID,
		SK:             messagePrefix + created + "#" + m.ID,
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Direction:      m.Direction,
		FromEmail:      m.FromEmail,
		ToEmail:        m.ToEmail,
		Subject:        m.Subject,
		BodyText:       m.BodyText,
		BodyHTML:       m.BodyHTML,
		CreatedAt:      created,
		ResendEmailID:  m.ResendEmailID,
	}
}

func (i messageItem) message() (contact.Message, error) {
	created, err := contact.ParseTime(i.CreatedAt)
	if err != nil {
		return contact.Message{}, fmt.Errorf("bad created_at on message %v: %w", i.ID, err)
	}

	return contact.Message{
		ID:             i.ID,
		ConversationID: i.ConversationID,
		Direction:      i.Direction,
		FromEmail:      i.FromEmail,
		ToEmail:        i.ToEmail,
		Subject:        i.Subject,
		BodyText:       i.BodyText,
		BodyHTML:       i.BodyHTML,
		CreatedAt:      created,
		ResendEmailID:  i.ResendEmailID,
	}, nil
}

// IsRateLimited reports whether key submitted less than window before now
func (d *DynamoDB) IsRateLimited(ctx context.Context, k string, window time.Duration, now time.Time) (bool, error) {
	rl, err := d.GetRateLimit(ctx, k)
	if err == contact.ErrRateLimitDoesntExist {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return rl.IsLimited(window, now), nil
}

// UpsertRateLimit records now as the last submission for key
func (d *DynamoDB) UpsertRateLimit(ctx context.Context, k string, now time.Time) error {
	av, err := dynamodbattribute.MarshalMap(rateLimitItem{
		PK:         rateLimitPrefix + k,
		SK:         rateLimitSK,
		Key:        k,
		LastSentAt: contact.FormatTime(now),
	})
	if err != nil {
		return fmt.Errorf("DynamoDB - failed to marshal rate limit: %w", err)
	}

	_, err = d.dynDB.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("DynamoDB - failed to put rate limit: %w", err)
	}

	return nil
}

// GetRateLimit returns the record for key
func (d *DynamoDB) GetRateLimit(ctx context.Context, k string) (contact.RateLimit, error) {
	o, err := d.dynDB.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		Key:       key(rateLimitPrefix+k, rateLimitSK),
		TableName: aws.String(d.tableName),
	})
	if err != nil {
		return contact.RateLimit{}, fmt.Errorf("DynamoDB - failed to get rate limit: %w", err)
	}

	if len(o.Item) == 0 {
		return contact.RateLimit{}, contact.ErrRateLimitDoesntExist
	}

	var item rateLimitItem
	err = dynamodbattribute.UnmarshalMap(o.Item, &item)
	if err != nil {
		return contact.RateLimit{}, fmt.Errorf("DynamoDB - failed to unmarshal rate limit: %w", err)
	}

	return contact.RateLimit{Key: item.Key, LastSentAt: item.LastSentAt}, nil
}

// DeleteRateLimitsBefore deletes records which expired before cutoff
func (d *DynamoDB) DeleteRateLimitsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var expired []rateLimitItem
	var unmarshalErr error

	err := d.dynDB.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(d.tableName),
		FilterExpression: aws.String("begins_with(PK, :p)"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":p": {S: aws.String(rateLimitPrefix)},
		},
	}, func(page *dynamodb.ScanOutput, last bool) bool {
		var items []rateLimitItem
		unmarshalErr = dynamodbattribute.UnmarshalListOfMaps(page.Items, &items)
		if unmarshalErr != nil {
			return false
		}

		for _, i := range items {
			if (contact.RateLimit{Key: i.Key, LastSentAt: i.LastSentAt}).Expired(cutoff) {
				expired = append(expired, i)
			}
		}
		return true
	})
	if err != nil {
		return -1, fmt.Errorf("DynamoDB - failed to scan rate limits: %w", err)
	}
	if unmarshalErr != nil {
		return -1, fmt.Errorf("DynamoDB - failed to unmarshal rate limits: %w", unmarshalErr)
	}

	var count int
	for _, i := range expired {
		deleted, err := d.deleteRateLimitIfUnchanged(ctx, i)
		if err != nil {
			return count, err
		}
		if deleted {
			count++
		}
	}

	return count, nil
}

// deleteRateLimitIfUnchanged deletes the record only while it still holds the scanned timestamp,
// a submission recorded since the scan keeps its record
func (d *DynamoDB) deleteRateLimitIfUnchanged(ctx context.Context, i rateLimitItem) (bool, error) {
	_, err := d.dynDB.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		Key:                 key(i.PK, i.SK),
		TableName:           aws.String(d.tableName),
		ConditionExpression: aws.String("last_sent_at = :old"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":old": {S: aws.String(i.LastSentAt)},
		},
	})

	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("DynamoDB - failed to delete rate limit %v: %w", i.Key, err)
	}

	return true, nil
}

// CreateConversationWithMessage writes the conversation and its first message in one transaction
func (d *DynamoDB) CreateConversationWithMessage(ctx context.Context, c contact.Conversation, m contact.Message) error {
	cv, err := dynamodbattribute.MarshalMap(newConversationItem(c))
	if err != nil {
		return fmt.Errorf("DynamoDB - failed to marshal conversation: %w", err)
	}

	mv, err := dynamodbattribute.MarshalMap(newMessageItem(m))
	if err != nil {
		return fmt.Errorf("DynamoDB - failed to marshal message: %w", err)
	}

	idv, err := dynamodbattribute.MarshalMap(messageIDItem{
		PK:             messageIDPrefix + m.ID,
		SK:             messageIDSK,
		ConversationID: c.ID,
	})
	if err != nil {
		return fmt.Errorf("DynamoDB - failed to marshal message id: %w", err)
	}

	_, err = d.dynDB.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []*dynamodb.TransactWriteItem{
			{
				Put: &dynamodb.Put{
					TableName:           aws.String(d.tableName),
					Item:                cv,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &dynamodb.Put{
					TableName:           aws.String(d.tableName),
					Item:                mv,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &dynamodb.Put{
					TableName:           aws.String(d.tableName),
					Item:                idv,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("DynamoDB - failed to write conversation: %w", err)
	}

	return nil
}

func (d *DynamoDB) queryMessages(ctx context.Context, conversationID string) ([]messageItem, error) {
	var items []messageItem
	var unmarshalErr error

	err := d.dynDB.QueryPagesWithContext(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :m)"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":pk": {S: aws.String(conversationPrefix + conversationID)},
			":m":  {S: aws.String(messagePrefix)},
		},
	}, func(page *dynamodb.QueryOutput, last bool) bool {
		var p []messageItem
		unmarshalErr = dynamodbattribute.UnmarshalListOfMaps(page.Items, &p)
		if unmarshalErr != nil {
			return false
		}
		items = append(items, p...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", unmarshalErr)
	}

	return items, nil
}

// AttachProviderMessageID sets the provider id on the latest inbound message of the conversation
func (d *DynamoDB) AttachProviderMessageID(ctx context.Context, conversationID string, providerID string) error {
	items, err := d.queryMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("DynamoDB - failed to find messages: %w", err)
	}

	var latest *messageItem
	var latestAt time.Time
	for i := range items {
		if items[i].Direction != contact.DirectionInbound {
			continue
		}
		t, err := contact.ParseTime(items[i].CreatedAt)
		if err != nil {
			continue
		}
		if latest == nil || !t.Before(latestAt) {
			latest, latestAt = &items[i], t
		}
	}

	if latest == nil {
		return contact.ErrConversationDoesntExist
	}

	_, err = d.dynDB.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		ExpressionAttributeNames: map[string]*string{
			"#R": aws.String("resend_email_id"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":r": {S: aws.String(providerID)},
		},
		Key:              key(latest.PK, latest.SK),
		TableName:        aws.String(d.tableName),
		UpdateExpression: aws.String("SET #R = :r"),
	})
	if err != nil {
		return fmt.Errorf("DynamoDB - failed to update message item: %w", err)
	}

	return nil
}

// GetConversationByID gets a conversation by the given id
func (d *DynamoDB) GetConversationByID(ctx context.Context, id string) (contact.Conversation, error) {
	o, err := d.dynDB.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		Key:       key(conversationPrefix+id, metaSK),
		TableName: aws.String(d.tableName),
	})
	if err != nil {
		return contact.Conversation{}, fmt.Errorf("DynamoDB - failed to get conversation: %w", err)
	}

	if len(o.Item) == 0 {
		return contact.Conversation{}, contact.ErrConversationDoesntExist
	}

	var item conversationItem
	err = dynamodbattribute.UnmarshalMap(o.Item, &item)
	if err != nil {
		return contact.Conversation{}, fmt.Errorf("DynamoDB - failed to unmarshal conversation: %w", err)
	}

	return item.conversation()
}

// GetMessagesByConversationID returns all messages in a conversation, oldest first
func (d *DynamoDB) GetMessagesByConversationID(ctx context.Context, id string) ([]contact.Message, error) {
	items, err := d.queryMessages(ctx, id)
	if err != nil {
		return []contact.Message{}, fmt.Errorf("DynamoDB - %w", err)
	}

	msgs := make([]contact.Message, 0, len(items))
	for _, i := range items {
		m, err := i.message()
		if err != nil {
			return []contact.Message{}, fmt.Errorf("DynamoDB - %w", err)
		}
		msgs = append(msgs, m)
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	return msgs, nil
}

// createTable creates the single table for testing against a local endpoint
func (d *DynamoDB) createTable() error {
	_, err := d.dynDB.CreateTable(&dynamodb.CreateTableInput{
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("PK"),
				AttributeType: aws.String("S"),
			},
			{
				AttributeName: aws.String("SK"),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("PK"),
				KeyType:       aws.String("HASH"),
			},
			{
				AttributeName: aws.String("SK"),
				KeyType:       aws.String("RANGE"),
			},
		},
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
		TableName:   aws.String(d.tableName),
	})

	if err != nil {
		if !strings.Contains(err.Error(), dynamodb.ErrCodeResourceInUseException) {
			return err
		}
	}

	return nil
}
