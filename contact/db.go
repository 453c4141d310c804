package contact

import (
	"context"
	"errors"
	"time"
)

// ErrConversationDoesntExist is returned when looking up an unknown conversation
var ErrConversationDoesntExist = errors.New("conversation doesn't exist")

// ErrRateLimitDoesntExist is returned by GetRateLimit when no record exists for a key
var ErrRateLimitDoesntExist = errors.New("rate limit record doesn't exist")

// RateLimitStore tracks the last accepted submission per client
type RateLimitStore interface {
	// IsRateLimited reports whether key has a submission recorded less than window before now
	IsRateLimited(ctx context.Context, key string, window time.Duration, now time.Time) (bool, error)
	// UpsertRateLimit records now as the last submission for key
	UpsertRateLimit(ctx context.Context, key string, now time.Time) error
	// DeleteRateLimitsBefore removes records last sent before cutoff, or unreadable, and returns how many went
	DeleteRateLimitsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ConversationStore persists conversations and their messages
type ConversationStore interface {
	// CreateConversationWithMessage saves both rows or neither
	CreateConversationWithMessage(ctx context.Context, c Conversation, m Message) error
	// AttachProviderMessageID sets the provider id on the latest inbound message of a conversation
	AttachProviderMessageID(ctx context.Context, conversationID string, providerID string) error
}

// Database lists methods needed to implement a db
type Database interface {
	// Start is where you should do schema creation
	Start() error
	RateLimitStore
	ConversationStore
	GetRateLimit(ctx context.Context, key string) (RateLimit, error)
	GetConversationByID(ctx context.Context, id string) (Conversation, error)
	GetMessagesByConversationID(ctx context.Context, id string) ([]Message, error)
}
