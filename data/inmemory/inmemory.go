package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/haydenwoodhead/contact.kiwi/contact"
)

var _ contact.Database = &InMemory{}

var errConversationExists = errors.New("failed to create conversation. It already exists")
var errMessageExists = errors.New("failed to create message. It already exists")

// InMemory implements an in memory database
type InMemory struct {
	conversations map[string]contact.Conversation
	messages      map[string][]contact.Message
	messageIDs    map[string]struct{}
	rateLimits    map[string]contact.RateLimit
	m             sync.RWMutex
}

// GetInMemoryDB returns a new InMemoryDB to use
func GetInMemoryDB() *InMemory {
	return &InMemory{
		conversations: make(map[string]contact.Conversation),
		messages:      make(map[string][]contact.Message),
		messageIDs:    make(map[string]struct{}),
		rateLimits:    make(map[string]contact.RateLimit),
	}
}

// Start implements Database
func (im *InMemory) Start() error {
	return nil
}

// IsRateLimited reports whether key submitted less than window before now
func (im *InMemory) IsRateLimited(ctx context.Context, key string, window time.Duration, now time.Time) (bool, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	rl, ok := im.rateLimits[key]
	if !ok {
		return false, nil
	}

	return rl.IsLimited(window, now), nil
}

// UpsertRateLimit records now as the last submission for key
func (im *InMemory) UpsertRateLimit(ctx context.Context, key string, now time.Time) error {
	im.m.Lock()
	defer im.m.Unlock()

	im.rateLimits[key] = contact.RateLimit{Key: key, LastSentAt: contact.FormatTime(now)}

	return nil
}

// GetRateLimit returns the record for key
func (im *InMemory) GetRateLimit(ctx context.Context, key string) (contact.RateLimit, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	rl, ok := im.rateLimits[key]
	if !ok {
		return contact.RateLimit{}, contact.ErrRateLimitDoesntExist
	}

	return rl, nil
}

// DeleteRateLimitsBefore deletes records which expired before cutoff
func (im *InMemory) DeleteRateLimitsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	im.m.Lock()
	defer im.m.Unlock()

	var count int
	for k, v := range im.rateLimits {
		if v.Expired(cutoff) {
			delete(im.rateLimits, k)
			count++
		}
	}

	return count, nil
}

// CreateConversationWithMessage saves a conversation and its first message under one lock
func (im *InMemory) CreateConversationWithMessage(ctx context.Context, c contact.Conversation, m contact.Message) error {
	im.m.Lock()
	defer im.m.Unlock()

	if _, ok := im.conversations[c.ID]; ok {
		return errConversationExists
	}

	if _, ok := im.messageIDs[m.ID]; ok {
		return errMessageExists
	}

	im.conversations[c.ID] = c
	im.messages[c.ID] = append(im.messages[c.ID], m)
	im.messageIDs[m.ID] = struct{}{}

	return nil
}

// AttachProviderMessageID sets the provider id on the latest inbound message of the conversation
func (im *InMemory) AttachProviderMessageID(ctx context.Context, conversationID string, providerID string) error {
	im.m.Lock()
	defer im.m.Unlock()

	msgs := im.messages[conversationID]

	latest := -1
	for i, v := range msgs {
		if v.Direction != contact.DirectionInbound {
			continue
		}
		if latest == -1 || !v.CreatedAt.Before(msgs[latest].CreatedAt) {
			latest = i
		}
	}

	if latest == -1 {
		return contact.ErrConversationDoesntExist
	}

	id := providerID
	msgs[latest].ResendEmailID = &id

	return nil
}

// GetConversationByID gets a conversation by the given id
func (im *InMemory) GetConversationByID(ctx context.Context, id string) (contact.Conversation, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	c, ok := im.conversations[id]
	if !ok {
		return contact.Conversation{}, contact.ErrConversationDoesntExist
	}

	return c, nil
}

// GetMessagesByConversationID returns all messages in a conversation, oldest first
func (im *InMemory) GetMessagesByConversationID(ctx context.Context, id string) ([]contact.Message, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	msgs, ok := im.messages[id]
	if !ok {
		return []contact.Message{}, nil
	}

	ret := make([]contact.Message, len(msgs))
	copy(ret, msgs)

	return ret, nil
}
