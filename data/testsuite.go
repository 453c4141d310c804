package data

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/haydenwoodhead/contact.kiwi/contact"
	"github.com/stretchr/testify/assert"
)

// TestFunction is the signature for a testing function
type TestFunction = func(t *testing.T, db contact.Database)

// TestingFuncs contain the suite of funcs that a db implementation should be tested against
var TestingFuncs = []TestFunction{
	TestCreateConversationWithMessage,
	TestCreateConversationWithMessageIsAtomic,
	TestCreateConversationWithDuplicateMessageIsAtomic,
	TestGetConversationByID,
	TestGetMessagesByConversationID,
	TestAttachProviderMessageID,
	TestRateLimit,
	TestUpsertRateLimit,
	TestDeleteRateLimitsBefore,
}

// NewTestConversation returns a conversation and its first message created at now
func NewTestConversation(email string, now time.Time) (contact.Conversation, contact.Message) {
	c := contact.NewConversation(
		uuid.Must(uuid.NewRandom()).String(),
		uuid.Must(uuid.NewRandom()).String(),
		"Bobby Tables",
		email,
		now,
	)
	m := contact.NewInboundMessage(uuid.Must(uuid.NewRandom()).String(), c, "contact@example.com", "'); DROP TABLE messages;--")
	return c, m
}

// TestCreateConversationWithMessage verifies that CreateConversationWithMessage saves both records
func TestCreateConversationWithMessage(t *testing.T, db contact.Database) {
	ctx := context.Background()
	c, m := NewTestConversation("test.1@example.com", time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC))

	err := db.CreateConversationWithMessage(ctx, c, m)
	if err != nil {
		t.Fatalf("%v - TestCreateConversationWithMessage: failed to save: %v", reflect.TypeOf(db), err)
	}

	rc, err := db.GetConversationByID(ctx, c.ID)
	if err != nil {
		t.Errorf("%v - TestCreateConversationWithMessage: failed to get conversation back: %v", reflect.TypeOf(db), err)
	}

	assert.Equal(t, c, rc, "%v - TestCreateConversationWithMessage: conversation not the same after retrieve", reflect.TypeOf(db))

	msgs, err := db.GetMessagesByConversationID(ctx, c.ID)
	if err != nil {
		t.Errorf("%v - TestCreateConversationWithMessage: failed to get messages back: %v", reflect.TypeOf(db), err)
	}

	assert.Equal(t, []contact.Message{m}, msgs, "%v - TestCreateConversationWithMessage: messages not the same after retrieve", reflect.TypeOf(db))
}

// TestCreateConversationWithMessageIsAtomic verifies that a failed create leaves no message behind
func TestCreateConversationWithMessageIsAtomic(t *testing.T, db contact.Database) {
	ctx := context.Background()
	c, m := NewTestConversation("test.2@example.com", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	err := db.CreateConversationWithMessage(ctx, c, m)
	if err != nil {
		t.Fatalf("%v - TestCreateConversationWithMessageIsAtomic: failed to save: %v", reflect.TypeOf(db), err)
	}

	// same conversation id with a new message must be refused as a whole
	_, m2 := NewTestConversation("test.2@example.com", time.Date(2024, 1, 2, 3, 5, 5, 0, time.UTC))
	m2.ConversationID = c.ID

	err = db.CreateConversationWithMessage(ctx, c, m2)
	if err == nil {
		t.Errorf("%v - TestCreateConversationWithMessageIsAtomic: expected duplicate conversation to fail", reflect.TypeOf(db))
	}

	msgs, err := db.GetMessagesByConversationID(ctx, c.ID)
	if err != nil {
		t.Errorf("%v - TestCreateConversationWithMessageIsAtomic: failed to get messages back: %v", reflect.TypeOf(db), err)
	}

	assert.Equal(t, []contact.Message{m}, msgs, "%v - TestCreateConversationWithMessageIsAtomic: partial write left behind", reflect.TypeOf(db))
}

// TestCreateConversationWithDuplicateMessageIsAtomic verifies that a new conversation whose message
// can't be saved is not saved either
func TestCreateConversationWithDuplicateMessageIsAtomic(t *testing.T, db contact.Database) {
	ctx := context.Background()
	c, m := NewTestConversation("test.2a@example.com", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	err := db.CreateConversationWithMessage(ctx, c, m)
	if err != nil {
		t.Fatalf("%v - TestCreateConversationWithDuplicateMessageIsAtomic: failed to save: %v", reflect.TypeOf(db), err)
	}

	c2, m2 := NewTestConversation("test.2b@example.com", time.Date(2024, 1, 2, 3, 6, 5, 0, time.UTC))
	m2.ID = m.ID

	err = db.CreateConversationWithMessage(ctx, c2, m2)
	if err == nil {
		t.Errorf("%v - TestCreateConversationWithDuplicateMessageIsAtomic: expected duplicate message id to fail", reflect.TypeOf(db))
	}

	_, err = db.GetConversationByID(ctx, c2.ID)
	assert.Equal(t, contact.ErrConversationDoesntExist, err, "%v - TestCreateConversationWithDuplicateMessageIsAtomic: conversation left behind", reflect.TypeOf(db))

	msgs, err := db.GetMessagesByConversationID(ctx, c.ID)
	if err != nil {
		t.Errorf("%v - TestCreateConversationWithDuplicateMessageIsAtomic: failed to get messages back: %v", reflect.TypeOf(db), err)
	}

	assert.Equal(t, []contact.Message{m}, msgs, "%v - TestCreateConversationWithDuplicateMessageIsAtomic: original message changed", reflect.TypeOf(db))
}

// TestGetConversationByID verifies that GetConversationByID works
func TestGetConversationByID(t *testing.T, db contact.Database) {
	ctx := context.Background()
	c, m := NewTestConversation("test.3@example.com", time.Now())

	err := db.CreateConversationWithMessage(ctx, c, m)
	if err != nil {
		t.Fatalf("%v - TestGetConversationByID: failed to save: %v", reflect.TypeOf(db), err)
	}

	tests := []struct {
		ID          string
		ExpectedRes contact.Conversation
		ExpectedErr error
	}{
		{
			ID:          c.ID,
			ExpectedRes: c,
			ExpectedErr: nil,
		},
		{
			ID:          uuid.Must(uuid.NewRandom()).String(), // doesn't exist
			ExpectedRes: contact.Conversation{},
			ExpectedErr: contact.ErrConversationDoesntExist,
		},
	}

	for i, test := range tests {
		ret, err := db.GetConversationByID(ctx, test.ID)

		if err != test.ExpectedErr {
			t.Errorf("%v - TestGetConversationByID - %v: error not expected. Expected %v, got %v", reflect.TypeOf(db), i, test.ExpectedErr, err)
		}

		assert.Equalf(t, test.ExpectedRes, ret, "%v - TestGetConversationByID - %v: expected not as same as returned.", reflect.TypeOf(db), i)
	}
}

// TestGetMessagesByConversationID verifies that GetMessagesByConversationID works
func TestGetMessagesByConversationID(t *testing.T, db contact.Database) {
	ctx := context.Background()
	c, m := NewTestConversation("test.4@example.com", time.Now())

	err := db.CreateConversationWithMessage(ctx, c, m)
	if err != nil {
		t.Fatalf("%v - TestGetMessagesByConversationID: failed to save: %v", reflect.TypeOf(db), err)
	}

	msgs, err := db.GetMessagesByConversationID(ctx, c.ID)
	if err != nil {
		t.Errorf("%v - TestGetMessagesByConversationID: failed to retrieve messages: %v", reflect.TypeOf(db), err)
	}

	assert.ElementsMatch(t, []contact.Message{m}, msgs, "%v - TestGetMessagesByConversationID: Got back a different message than saved", reflect.TypeOf(db))

	// Test that it returns an empty messages slice if there are no messages
	empty, err := db.GetMessagesByConversationID(ctx, uuid.Must(uuid.NewRandom()).String())
	if err != nil {
		t.Errorf("%v - TestGetMessagesByConversationID: get empty conversation: %v", reflect.TypeOf(db), err)
	}

	if len(empty) != 0 {
		t.Errorf("%v - TestGetMessagesByConversationID: returned messages for a non existent key", reflect.TypeOf(db))
	}
}

// TestAttachProviderMessageID verifies that the provider id lands on the inbound message
func TestAttachProviderMessageID(t *testing.T, db contact.Database) {
	ctx := context.Background()
	c, m := NewTestConversation("test.5@example.com", time.Now())

	err := db.CreateConversationWithMessage(ctx, c, m)
	if err != nil {
		t.Fatalf("%v - TestAttachProviderMessageID: failed to save: %v", reflect.TypeOf(db), err)
	}

	err = db.AttachProviderMessageID(ctx, c.ID, "49a3999c-0ce1-4ea6-ab68-afcd6dc2e794")
	if err != nil {
		t.Errorf("%v - TestAttachProviderMessageID: failed to attach: %v", reflect.TypeOf(db), err)
	}

	msgs, err := db.GetMessagesByConversationID(ctx, c.ID)
	if err != nil {
		t.Fatalf("%v - TestAttachProviderMessageID: failed to retrieve messages: %v", reflect.TypeOf(db), err)
	}

	if assert.Len(t, msgs, 1) && assert.NotNil(t, msgs[0].ResendEmailID) {
		assert.Equal(t, "49a3999c-0ce1-4ea6-ab68-afcd6dc2e794", *msgs[0].ResendEmailID, "%v - TestAttachProviderMessageID: wrong provider id", reflect.TypeOf(db))
	}

	err = db.AttachProviderMessageID(ctx, uuid.Must(uuid.NewRandom()).String(), "abc")
	if err != contact.ErrConversationDoesntExist {
		t.Errorf("%v - TestAttachProviderMessageID: expected ErrConversationDoesntExist, got %v", reflect.TypeOf(db), err)
	}
}

// TestRateLimit verifies that IsRateLimited honours the window
func TestRateLimit(t *testing.T, db contact.Database) {
	ctx := context.Background()
	key := "192.0.2." + uuid.Must(uuid.NewRandom()).String()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	window := 5 * time.Minute

	limited, err := db.IsRateLimited(ctx, key, window, now)
	if err != nil {
		t.Fatalf("%v - TestRateLimit: failed to check unknown key: %v", reflect.TypeOf(db), err)
	}

	if limited {
		t.Errorf("%v - TestRateLimit: unknown key was limited", reflect.TypeOf(db))
	}

	err = db.UpsertRateLimit(ctx, key, now)
	if err != nil {
		t.Fatalf("%v - TestRateLimit: failed to upsert: %v", reflect.TypeOf(db), err)
	}

	tests := []struct {
		Name   string
		At     time.Time
		Expect bool
	}{
		{"same instant", now, true},
		{"inside window", now.Add(4*time.Minute + 59*time.Second), true},
		{"window boundary", now.Add(window), false},
		{"after window", now.Add(time.Hour), false},
	}

	for _, test := range tests {
		limited, err := db.IsRateLimited(ctx, key, window, test.At)

		if err != nil {
			t.Errorf("%v - TestRateLimit - %v: failed to check: %v", reflect.TypeOf(db), test.Name, err)
		}

		if limited != test.Expect {
			t.Errorf("%v - TestRateLimit - %v: expected %v, got %v", reflect.TypeOf(db), test.Name, test.Expect, limited)
		}
	}
}

// TestUpsertRateLimit verifies that a second upsert replaces the first
func TestUpsertRateLimit(t *testing.T, db contact.Database) {
	ctx := context.Background()
	key := "198.51.100." + uuid.Must(uuid.NewRandom()).String()
	first := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	second := first.Add(10 * time.Minute)

	_, err := db.GetRateLimit(ctx, key)
	if err != contact.ErrRateLimitDoesntExist {
		t.Errorf("%v - TestUpsertRateLimit: expected ErrRateLimitDoesntExist, got %v", reflect.TypeOf(db), err)
	}

	for _, at := range []time.Time{first, second} {
		err = db.UpsertRateLimit(ctx, key, at)
		if err != nil {
			t.Fatalf("%v - TestUpsertRateLimit: failed to upsert: %v", reflect.TypeOf(db), err)
		}
	}

	rl, err := db.GetRateLimit(ctx, key)
	if err != nil {
		t.Fatalf("%v - TestUpsertRateLimit: failed to get back: %v", reflect.TypeOf(db), err)
	}

	assert.Equal(t, contact.RateLimit{Key: key, LastSentAt: contact.FormatTime(second)}, rl, "%v - TestUpsertRateLimit: last write didn't win", reflect.TypeOf(db))

	limited, err := db.IsRateLimited(ctx, key, 5*time.Minute, second.Add(time.Minute))
	if err != nil {
		t.Errorf("%v - TestUpsertRateLimit: failed to check: %v", reflect.TypeOf(db), err)
	}

	if !limited {
		t.Errorf("%v - TestUpsertRateLimit: expected limit from the latest upsert", reflect.TypeOf(db))
	}
}

// TestDeleteRateLimitsBefore verifies that old records are purged and recent ones kept
func TestDeleteRateLimitsBefore(t *testing.T, db contact.Database) {
	ctx := context.Background()
	now := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	oldKey := "203.0.113.1-" + uuid.Must(uuid.NewRandom()).String()
	newKey := "203.0.113.2-" + uuid.Must(uuid.NewRandom()).String()

	err := db.UpsertRateLimit(ctx, oldKey, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("%v - TestDeleteRateLimitsBefore: failed to upsert old: %v", reflect.TypeOf(db), err)
	}

	err = db.UpsertRateLimit(ctx, newKey, now)
	if err != nil {
		t.Fatalf("%v - TestDeleteRateLimitsBefore: failed to upsert new: %v", reflect.TypeOf(db), err)
	}

	count, err := db.DeleteRateLimitsBefore(ctx, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("%v - TestDeleteRateLimitsBefore: failed to delete: %v", reflect.TypeOf(db), err)
	}

	// other tests share the db so only a lower bound is known
	assert.GreaterOrEqual(t, count, 1, "%v - TestDeleteRateLimitsBefore: nothing deleted", reflect.TypeOf(db))

	_, err = db.GetRateLimit(ctx, oldKey)
	if err != contact.ErrRateLimitDoesntExist {
		t.Errorf("%v - TestDeleteRateLimitsBefore: old record still present: %v", reflect.TypeOf(db), err)
	}

	_, err = db.GetRateLimit(ctx, newKey)
	if err != nil {
		t.Errorf("%v - TestDeleteRateLimitsBefore: recent record removed: %v", reflect.TypeOf(db), err)
	}
}
