package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"spacechat/backend/internal/config"
	"spacechat/backend/internal/models"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// roomChannelPrefix prefixes the Redis channel of every room.
const roomChannelPrefix = "room:"

type Storage interface {
	SaveRoom(ctx context.Context, room *models.ChatRoom) error
	CachedRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error)
	SaveMessages(ctx context.Context, messages []models.ChatMessage) error
	CachedMessages(ctx context.Context, roomID, idCap int64, limit int) ([]models.ChatMessage, error)

	RecordFailedSend(ctx context.Context, entry *models.OutboxEntry) error
	ListOutbox(ctx context.Context, status string, limit int) ([]models.OutboxEntry, error)
	GetOutboxEntry(ctx context.Context, id uint) (*models.OutboxEntry, error)
	MarkOutboxResolved(ctx context.Context, id uint, status string) error

	PublishRoomActivity(ctx context.Context, activity models.RoomActivity) error
	SubscribeToAllRooms(ctx context.Context) *redis.PubSub
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// SaveRoom зберігає знімок кімнати в PostgreSQL
func (s *Service) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	row, err := models.NewCachedRoom(room)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Save(&row).Error
}

// CachedRoom повертає кімнату з кешу або nil, якщо її там немає.
func (s *Service) CachedRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error) {
	var row models.CachedRoom
	err := s.DB.WithContext(ctx).First(&row, roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Printf("ERROR: Failed to get cached room %d: %v", roomID, err)
		return nil, err
	}
	return row.ToChatRoom(), nil
}

// SaveMessages upserts confirmed messages; pending ones are skipped.
func (s *Service) SaveMessages(ctx context.Context, messages []models.ChatMessage) error {
	rows := make([]models.CachedMessage, 0, len(messages))
	for _, m := range messages {
		id, ok := m.ID.ServerID()
		if !ok {
			continue
		}
		rows = append(rows, models.CachedMessage{
			ID:              id,
			ChatRoomID:      m.ChatRoomID,
			SenderProfileID: m.SenderProfileID,
			Text:            m.Text,
			Deleted:         m.Deleted,
			IsSystemMessage: m.IsSystemMessage,
			CreatedAt:       m.CreatedAt,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	// Повідомлення можуть бути видалені після кешування, тому оновлюємо все.
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"text", "deleted", "updated_at"}),
		}).
		Create(&rows).Error
}

// CachedMessages reads the same window the backend would serve: up to limit
// messages of the room with id <= idCap, newest first.
func (s *Service) CachedMessages(ctx context.Context, roomID, idCap int64, limit int) ([]models.ChatMessage, error) {
	var rows []models.CachedMessage
	err := s.DB.WithContext(ctx).
		Where("chat_room_id = ? AND id <= ?", roomID, idCap).
		Order("created_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		log.Printf("ERROR: Failed to read cached messages of room %d: %v", roomID, err)
		return nil, err
	}
	messages := make([]models.ChatMessage, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, r.ToChatMessage())
	}
	return messages, nil
}

// RecordFailedSend зберігає невдале надсилання в outbox.
// Повторний запис того ж ClientTempID оновлює існуючий.
func (s *Service) RecordFailedSend(ctx context.Context, entry *models.OutboxEntry) error {
	result := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_temp_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"attempts", "last_error", "status", "updated_at"}),
		}).
		Create(entry)
	if result.Error != nil {
		log.Printf("ERROR: Failed to record failed send for room %d: %v", entry.ChatRoomID, result.Error)
		return result.Error
	}
	return nil
}

// ListOutbox returns the newest entries, optionally only those with status.
func (s *Service) ListOutbox(ctx context.Context, status string, limit int) ([]models.OutboxEntry, error) {
	var entries []models.OutboxEntry
	q := s.DB.WithContext(ctx).Order("id desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// GetOutboxEntry повертає запис outbox за ID.
func (s *Service) GetOutboxEntry(ctx context.Context, id uint) (*models.OutboxEntry, error) {
	var entry models.OutboxEntry
	err := s.DB.WithContext(ctx).First(&entry, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// MarkOutboxResolved sets the final status of an entry.
func (s *Service) MarkOutboxResolved(ctx context.Context, id uint, status string) error {
	if !config.OutboxStatuses[status] || status == models.OutboxStatusFailed {
		return fmt.Errorf("invalid resolution status %q", status)
	}
	result := s.DB.WithContext(ctx).Model(&models.OutboxEntry{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RoomChannel returns the Redis channel of a room.
func RoomChannel(roomID int64) string {
	return roomChannelPrefix + strconv.FormatInt(roomID, 10)
}

// PublishRoomActivity публікує подію в Redis Pub/Sub
func (s *Service) PublishRoomActivity(ctx context.Context, activity models.RoomActivity) error {
	payload, err := json.Marshal(activity)
	if err != nil {
		return err
	}
	return s.Redis.Publish(ctx, RoomChannel(activity.RoomID), payload).Err()
}

// SubscribeToAllRooms subscribes to the channels of every room.
func (s *Service) SubscribeToAllRooms(ctx context.Context) *redis.PubSub {
	return s.Redis.PSubscribe(ctx, roomChannelPrefix+"*")
}

// ParseRoomActivity decodes a pub/sub message published by PublishRoomActivity.
func ParseRoomActivity(msg *redis.Message) (models.RoomActivity, error) {
	var activity models.RoomActivity
	if msg == nil || !strings.HasPrefix(msg.Channel, roomChannelPrefix) {
		return activity, fmt.Errorf("not a room channel")
	}
	if err := json.Unmarshal([]byte(msg.Payload), &activity); err != nil {
		return activity, fmt.Errorf("decode room activity: %w", err)
	}
	if RoomChannel(activity.RoomID) != msg.Channel {
		return activity, fmt.Errorf("activity for room %d on channel %s", activity.RoomID, msg.Channel)
	}
	return activity, nil
}
