package backend

import (
	"context"
	"fmt"
	"spacechat/backend/internal/models"
	"time"
)

// roomWire is a chat room as the backend returns it: the message pointers
// come back as arrays with at most one element.
type roomWire struct {
	ID                int64                      `json:"id"`
	ChatIntroID       *int64                     `json:"chat_intro_id"`
	Memberships       []models.ProfileToChatRoom `json:"profile_to_chat_rooms"`
	LatestChatMessage []models.ChatMessage       `json:"latest_chat_message"`
	FirstChatMessage  []models.ChatMessage       `json:"first_chat_message"`
}

func (w roomWire) toModel() *models.ChatRoom {
	room := &models.ChatRoom{
		ID:          w.ID,
		ChatIntroID: w.ChatIntroID,
		Memberships: w.Memberships,
	}
	if len(w.LatestChatMessage) > 0 {
		room.LatestChatMessage = &w.LatestChatMessage[0]
	}
	if len(w.FirstChatMessage) > 0 {
		room.FirstChatMessage = &w.FirstChatMessage[0]
	}
	return room
}

// ChatRoom loads a room with its memberships and message boundaries.
// It returns nil and no error when the room does not exist.
func (c *Client) ChatRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error) {
	var data struct {
		Room *roomWire `json:"chat_room_by_pk"`
	}
	if err := c.Do(ctx, "GetChatRoom", getChatRoom, map[string]any{"id": roomID}, &data); err != nil {
		return nil, err
	}
	if data.Room == nil {
		return nil, nil
	}
	return data.Room.toModel(), nil
}

// ChatRoomsForProfile lists every room the profile belongs to.
func (c *Client) ChatRoomsForProfile(ctx context.Context, profileID int64) ([]*models.ChatRoom, error) {
	var data struct {
		Rooms []roomWire `json:"chat_room"`
	}
	if err := c.Do(ctx, "GetChatRoomsForProfile", getChatRoomsForProfile, map[string]any{"profile_id": profileID}, &data); err != nil {
		return nil, err
	}
	rooms := make([]*models.ChatRoom, 0, len(data.Rooms))
	for _, w := range data.Rooms {
		rooms = append(rooms, w.toModel())
	}
	return rooms, nil
}

// Messages returns up to limit messages of the room with id <= idCap,
// newest first.
func (c *Client) Messages(ctx context.Context, roomID, idCap int64, limit int) ([]models.ChatMessage, error) {
	var data struct {
		Messages []models.ChatMessage `json:"chat_message"`
	}
	vars := map[string]any{"chat_room_id": roomID, "id_cap": idCap, "limit": limit}
	if err := c.Do(ctx, "GetMessagesByChatRoom", getMessagesByChatRoom, vars, &data); err != nil {
		return nil, err
	}
	return data.Messages, nil
}

// SendMessage inserts a message and returns the stored copy.
func (c *Client) SendMessage(ctx context.Context, msg models.NewMessage) (*models.ChatMessage, error) {
	var data struct {
		Message *models.ChatMessage `json:"insert_chat_message_one"`
	}
	vars := map[string]any{
		"chat_room_id":      msg.ChatRoomID,
		"sender_profile_id": msg.SenderProfileID,
		"text":              msg.Text,
	}
	if err := c.Do(ctx, "SendMessage", sendMessage, vars, &data); err != nil {
		return nil, err
	}
	if data.Message == nil {
		return nil, fmt.Errorf("SendMessage: %w", ErrNotFound)
	}
	return data.Message, nil
}

// UpdateLatestRead advances the read marker of the membership. A marker that
// is already at or past messageID is left alone and is not an error.
func (c *Client) UpdateLatestRead(ctx context.Context, profileID, roomID, messageID int64) error {
	var data struct {
		Update struct {
			AffectedRows int `json:"affected_rows"`
		} `json:"update_profile_to_chat_room"`
	}
	vars := map[string]any{"profile_id": profileID, "chat_room_id": roomID, "message_id": messageID}
	return c.Do(ctx, "UpdateLatestReadMessage", updateLatestReadMessage, vars, &data)
}

// UpdateProfileLastActive stamps the profile as active at t.
func (c *Client) UpdateProfileLastActive(ctx context.Context, profileID int64, at time.Time) error {
	vars := map[string]any{"profile_id": profileID, "at": at.UTC().Format(time.RFC3339)}
	return c.Do(ctx, "UpdateProfileLastActive", updateProfileLastActive, vars, nil)
}

// RecordProfileView stores that viewer opened the profile of viewed.
func (c *Client) RecordProfileView(ctx context.Context, viewer, viewed int64) error {
	vars := map[string]any{"viewer_profile_id": viewer, "viewed_profile_id": viewed}
	return c.Do(ctx, "RecordProfileView", recordProfileView, vars, nil)
}
