package feed_test

import (
	"context"
	"spacechat/backend/internal/models"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) ChatRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error) {
	args := m.Called(ctx, roomID)
	room, _ := args.Get(0).(*models.ChatRoom)
	return room, args.Error(1)
}

func (m *MockBackend) Messages(ctx context.Context, roomID, idCap int64, limit int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, roomID, idCap, limit)
	msgs, _ := args.Get(0).([]models.ChatMessage)
	return msgs, args.Error(1)
}

func (m *MockBackend) SendMessage(ctx context.Context, msg models.NewMessage) (*models.ChatMessage, error) {
	args := m.Called(ctx, msg)
	sent, _ := args.Get(0).(*models.ChatMessage)
	return sent, args.Error(1)
}

func (m *MockBackend) UpdateLatestRead(ctx context.Context, profileID, roomID, messageID int64) error {
	args := m.Called(ctx, profileID, roomID, messageID)
	return args.Error(0)
}

func (m *MockBackend) SubscribeMessages(ctx context.Context, roomID int64, since time.Time) (<-chan []models.ChatMessage, error) {
	args := m.Called(ctx, roomID, since)
	ch, _ := args.Get(0).(<-chan []models.ChatMessage)
	return ch, args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockCache) CachedRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error) {
	args := m.Called(ctx, roomID)
	room, _ := args.Get(0).(*models.ChatRoom)
	return room, args.Error(1)
}

func (m *MockCache) SaveMessages(ctx context.Context, messages []models.ChatMessage) error {
	args := m.Called(ctx, messages)
	return args.Error(0)
}

func (m *MockCache) CachedMessages(ctx context.Context, roomID, idCap int64, limit int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, roomID, idCap, limit)
	msgs, _ := args.Get(0).([]models.ChatMessage)
	return msgs, args.Error(1)
}

type MockOutbox struct {
	mock.Mock
}

func (m *MockOutbox) RecordFailedSend(ctx context.Context, entry *models.OutboxEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}
