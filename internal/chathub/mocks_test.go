package chathub_test

import (
	"context"
	"spacechat/backend/internal/models"
	"spacechat/backend/internal/telegram"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	return m.Called(ctx, room).Error(0)
}

func (m *MockStorage) CachedRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error) {
	args := m.Called(ctx, roomID)
	room, _ := args.Get(0).(*models.ChatRoom)
	return room, args.Error(1)
}

func (m *MockStorage) SaveMessages(ctx context.Context, messages []models.ChatMessage) error {
	return m.Called(ctx, messages).Error(0)
}

func (m *MockStorage) CachedMessages(ctx context.Context, roomID, idCap int64, limit int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, roomID, idCap, limit)
	msgs, _ := args.Get(0).([]models.ChatMessage)
	return msgs, args.Error(1)
}

func (m *MockStorage) RecordFailedSend(ctx context.Context, entry *models.OutboxEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockStorage) ListOutbox(ctx context.Context, status string, limit int) ([]models.OutboxEntry, error) {
	args := m.Called(ctx, status, limit)
	entries, _ := args.Get(0).([]models.OutboxEntry)
	return entries, args.Error(1)
}

func (m *MockStorage) GetOutboxEntry(ctx context.Context, id uint) (*models.OutboxEntry, error) {
	args := m.Called(ctx, id)
	entry, _ := args.Get(0).(*models.OutboxEntry)
	return entry, args.Error(1)
}

func (m *MockStorage) MarkOutboxResolved(ctx context.Context, id uint, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockStorage) PublishRoomActivity(ctx context.Context, activity models.RoomActivity) error {
	return m.Called(ctx, activity).Error(0)
}

func (m *MockStorage) SubscribeToAllRooms(ctx context.Context) *redis.PubSub {
	ps, _ := m.Called(ctx).Get(0).(*redis.PubSub)
	return ps
}

// MockClient is a test double for the chathub.Client interface.
type MockClient struct {
	profileID int64
	roomID    atomic.Int64
	Recv      chan models.FeedEvent
	closed    atomic.Bool
}

func newMockClient(profileID, openRoom int64) *MockClient {
	c := &MockClient{profileID: profileID, Recv: make(chan models.FeedEvent, 10)}
	c.roomID.Store(openRoom)
	return c
}

func (c *MockClient) GetProfileID() int64                     { return c.profileID }
func (c *MockClient) GetRoomID() int64                        { return c.roomID.Load() }
func (c *MockClient) GetSendChannel() chan<- models.FeedEvent { return c.Recv }
func (c *MockClient) Run()                                    {}
func (c *MockClient) Close()                                  { c.closed.Store(true) }

// fakeRooms serves rooms from a map.
type fakeRooms struct {
	mu    sync.Mutex
	rooms map[int64]*models.ChatRoom
}

func (f *fakeRooms) ChatRoom(_ context.Context, roomID int64) (*models.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, nil
	}
	// копія, бо хаб змінює останнє повідомлення
	cp := *room
	cp.Memberships = append([]models.ProfileToChatRoom(nil), room.Memberships...)
	return &cp, nil
}

// fakeNotifier records notices.
type fakeNotifier struct {
	notices chan telegram.Notice
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{notices: make(chan telegram.Notice, 10)}
}

func (f *fakeNotifier) Notify(_ context.Context, n telegram.Notice) error {
	f.notices <- n
	return nil
}

func ptr[T any](v T) *T { return &v }

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func member(roomID, profileID int64, name string, lastRead *int64) models.ProfileToChatRoom {
	return models.ProfileToChatRoom{
		ID:         roomID*100 + profileID,
		ProfileID:  profileID,
		ChatRoomID: roomID,
		Profile: &models.Profile{
			ID:   profileID,
			User: &models.User{FullName: name, FirstName: name},
		},
		LatestReadChatMessageID: lastRead,
	}
}

func message(roomID, id, sender int64, text string) models.ChatMessage {
	return models.ChatMessage{
		ID:              models.Confirmed(id),
		ChatRoomID:      roomID,
		SenderProfileID: ptr(sender),
		Text:            text,
		CreatedAt:       base.Add(time.Duration(id) * time.Minute),
	}
}
