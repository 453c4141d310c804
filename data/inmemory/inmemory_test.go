package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/haydenwoodhead/contact.kiwi/contact"
	"github.com/haydenwoodhead/contact.kiwi/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDB(t *testing.T) {
	db := GetInMemoryDB()

	// iterate over the testing suite and call the function
	for _, f := range data.TestingFuncs {
		f(t, db)
	}
}

func TestInMemory_UnparsableRateLimit(t *testing.T) {
	db := GetInMemoryDB()
	ctx := context.Background()

	db.rateLimits["192.0.2.1"] = contact.RateLimit{Key: "192.0.2.1", LastSentAt: "not a time"}

	limited, err := db.IsRateLimited(ctx, "192.0.2.1", 5*time.Minute, time.Now())
	require.NoError(t, err)
	assert.False(t, limited)

	count, err := db.DeleteRateLimitsBefore(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInMemory_AttachProviderMessageID_Latest(t *testing.T) {
	db := GetInMemoryDB()
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	c, m1 := data.NewTestConversation("bob@example.com", now)
	require.NoError(t, db.CreateConversationWithMessage(ctx, c, m1))

	// a later reply from the submitter is held in the same conversation
	_, m2 := data.NewTestConversation("bob@example.com", now.Add(time.Hour))
	m2.ConversationID = c.ID
	db.messages[c.ID] = append(db.messages[c.ID], m2)

	require.NoError(t, db.AttachProviderMessageID(ctx, c.ID, "re_1"))

	msgs, err := db.GetMessagesByConversationID(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Nil(t, msgs[0].ResendEmailID)
	if assert.NotNil(t, msgs[1].ResendEmailID) {
		assert.Equal(t, "re_1", *msgs[1].ResendEmailID)
	}
}
