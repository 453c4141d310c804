package contact

import (
	"context"
	"time"

	mock "github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

func (m *MockDatabase) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDatabase) IsRateLimited(ctx context.Context, key string, window time.Duration, now time.Time) (bool, error) {
	args := m.Called(ctx, key, window, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDatabase) UpsertRateLimit(ctx context.Context, key string, now time.Time) error {
	args := m.Called(ctx, key, now)
	return args.Error(0)
}

func (m *MockDatabase) DeleteRateLimitsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)
	return args.Int(0), args.Error(1)
}

func (m *MockDatabase) CreateConversationWithMessage(ctx context.Context, c Conversation, msg Message) error {
	args := m.Called(ctx, c, msg)
	return args.Error(0)
}

func (m *MockDatabase) AttachProviderMessageID(ctx context.Context, conversationID string, providerID string) error {
	args := m.Called(ctx, conversationID, providerID)
	return args.Error(0)
}

func (m *MockDatabase) GetRateLimit(ctx context.Context, key string) (RateLimit, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(RateLimit), args.Error(1)
}

func (m *MockDatabase) GetConversationByID(ctx context.Context, id string) (Conversation, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Conversation), args.Error(1)
}

func (m *MockDatabase) GetMessagesByConversationID(ctx context.Context, id string) ([]Message, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]Message), args.Error(1)
}
