package models

import "time"

// ChatMessage is a single message in a chat room.
// Lists of messages are kept newest first (index 0 is the newest).
type ChatMessage struct {
	// ID is Pending while an optimistic send is in flight and Confirmed afterwards.
	ID MessageID `json:"id"`
	// ChatRoomID is the room the message belongs to.
	ChatRoomID int64 `json:"chat_room_id"`
	// SenderProfileID is nil for system-generated messages.
	SenderProfileID *int64 `json:"sender_profile_id"`
	// Text is the message body.
	Text string `json:"text"`
	// CreatedAt orders messages within a room.
	CreatedAt time.Time `json:"created_at"`
	// Deleted marks messages removed by their sender or an admin.
	Deleted bool `json:"deleted"`
	// IsSystemMessage marks intro/system notices.
	IsSystemMessage bool `json:"is_system_message,omitempty"`
	// ReplyToMessage is a short preview of the message being replied to.
	ReplyToMessage *ReplyPreview `json:"reply_to_message,omitempty"`
}

// ReplyPreview is the quoted part of a reply.
type ReplyPreview struct {
	ID              int64  `json:"id"`
	Text            string `json:"text"`
	SenderProfileID *int64 `json:"sender_profile_id"`
	Deleted         bool   `json:"deleted"`
}

// SentBy reports whether profileID authored the message.
func (m *ChatMessage) SentBy(profileID int64) bool {
	return m != nil && m.SenderProfileID != nil && *m.SenderProfileID == profileID
}

// NewMessage carries the fields of the send-message mutation.
type NewMessage struct {
	ChatRoomID      int64  `json:"chat_room_id"`
	SenderProfileID int64  `json:"sender_profile_id"`
	Text            string `json:"text"`
}
