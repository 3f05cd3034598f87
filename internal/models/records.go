package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// CachedMessage is a confirmed message kept in PostgreSQL so that a feed can
// still be served when the backend is unreachable.
type CachedMessage struct {
	// ID is the backend message id; it is not generated locally.
	ID int64 `gorm:"primaryKey;autoIncrement:false"`
	// ChatRoomID is indexed together with ID for id-cap page reads.
	ChatRoomID int64 `gorm:"not null;index:idx_room_msg,priority:1"`
	SenderProfileID *int64
	Text            string `gorm:"type:text;not null"`
	Deleted         bool
	IsSystemMessage bool
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time
}

// ToChatMessage converts the cached row back into a confirmed message.
func (c CachedMessage) ToChatMessage() ChatMessage {
	return ChatMessage{
		ID:              Confirmed(c.ID),
		ChatRoomID:      c.ChatRoomID,
		SenderProfileID: c.SenderProfileID,
		Text:            c.Text,
		CreatedAt:       c.CreatedAt,
		Deleted:         c.Deleted,
		IsSystemMessage: c.IsSystemMessage,
	}
}

// CachedRoom keeps the pagination boundary and membership of a room.
type CachedRoom struct {
	ID               int64         `gorm:"primaryKey;autoIncrement:false"`
	ChatIntroID      *int64
	MemberProfileIDs pq.Int64Array `gorm:"type:bigint[]"`
	FirstMessageID   *int64
	LatestMessageID  *int64
	// Payload is the full room as JSON, including member profiles.
	Payload   []byte `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

// NewCachedRoom flattens room into its cache row.
func NewCachedRoom(room *ChatRoom) (CachedRoom, error) {
	payload, err := json.Marshal(room)
	if err != nil {
		return CachedRoom{}, err
	}
	row := CachedRoom{
		ID:              room.ID,
		ChatIntroID:     room.ChatIntroID,
		FirstMessageID:  room.FirstMessageID(),
		LatestMessageID: room.LatestMessageID(),
		Payload:         payload,
	}
	for _, m := range room.Memberships {
		row.MemberProfileIDs = append(row.MemberProfileIDs, m.ProfileID)
	}
	return row, nil
}

// ToChatRoom rebuilds the room from the cache. Without a usable payload the
// memberships carry only profile ids and the message pointers only ids.
func (c CachedRoom) ToChatRoom() *ChatRoom {
	if len(c.Payload) > 0 {
		var room ChatRoom
		if err := json.Unmarshal(c.Payload, &room); err == nil {
			return &room
		}
	}
	room := &ChatRoom{ID: c.ID, ChatIntroID: c.ChatIntroID}
	for _, pid := range c.MemberProfileIDs {
		room.Memberships = append(room.Memberships, ProfileToChatRoom{ProfileID: pid, ChatRoomID: c.ID})
	}
	if c.FirstMessageID != nil {
		room.FirstChatMessage = &ChatMessage{ID: Confirmed(*c.FirstMessageID), ChatRoomID: c.ID}
	}
	if c.LatestMessageID != nil {
		room.LatestChatMessage = &ChatMessage{ID: Confirmed(*c.LatestMessageID), ChatRoomID: c.ID}
	}
	return room
}

// Outbox statuses.
const (
	OutboxStatusFailed    = "failed"
	OutboxStatusResent    = "resent"
	OutboxStatusDiscarded = "discarded"
)

// OutboxEntry records a send that exhausted its retries, so an operator can
// inspect or replay it.
type OutboxEntry struct {
	gorm.Model

	// ClientTempID is the placeholder id the renderer saw for the message.
	ClientTempID string `gorm:"uniqueIndex;not null"`
	// ChatRoomID is the destination room.
	ChatRoomID int64 `gorm:"not null;index"`
	// SenderProfileID is the profile that tried to send.
	SenderProfileID int64 `gorm:"not null"`
	// Text is the message body as typed.
	Text string `gorm:"type:text;not null"`
	// Attempts is how many network attempts were made.
	Attempts int
	// LastError is the terminal error text.
	LastError string `gorm:"type:text"`
	// Status is one of OutboxStatusFailed, OutboxStatusResent, OutboxStatusDiscarded.
	Status string `gorm:"type:text;not null;default:'failed'"`
}

// BeforeCreate fills in a ClientTempID and status for entries that were
// created without one (for example by the admin CLI).
func (o *OutboxEntry) BeforeCreate(tx *gorm.DB) (err error) {
	if o.ClientTempID == "" {
		o.ClientTempID = uuid.New().String()
	}
	if o.Status == "" {
		o.Status = OutboxStatusFailed
	}
	return
}
