package feed

import (
	"spacechat/backend/internal/config"
	"spacechat/backend/internal/models"
)

// Cursor holds the id cap that bounds backward pagination for one room.
// The cap starts at config.DefaultIDCap and only ever decreases until the
// room changes.
type Cursor struct {
	roomID int64
	idCap  int64
}

// NewCursor returns a cursor positioned at the newest page of roomID.
func NewCursor(roomID int64) Cursor {
	return Cursor{roomID: roomID, idCap: config.DefaultIDCap}
}

// RoomID is the room the cursor belongs to.
func (c *Cursor) RoomID() int64 { return c.roomID }

// IDCap is the inclusive upper bound on message id for the next page fetch.
func (c *Cursor) IDCap() int64 { return c.idCap }

// Reset moves the cursor to another room and back to the newest page.
func (c *Cursor) Reset(roomID int64) {
	c.roomID = roomID
	c.idCap = config.DefaultIDCap
}

// FetchMore lowers the cap to the oldest loaded confirmed message so the next
// page ends right where the loaded ones stop. It reports whether the cap moved.
func (c *Cursor) FetchMore(loaded []models.ChatMessage) bool {
	minID, ok := MinConfirmedID(loaded)
	if !ok || minID <= 0 || minID >= c.idCap {
		return false
	}
	c.idCap = minID
	return true
}

// MinConfirmedID returns the smallest backend id among messages, skipping
// pending ones. ok is false when there is none.
func MinConfirmedID(messages []models.ChatMessage) (minID int64, ok bool) {
	for i := range messages {
		id, confirmed := messages[i].ID.ServerID()
		if !confirmed {
			continue
		}
		if !ok || id < minID {
			minID = id
			ok = true
		}
	}
	return minID, ok
}

// NoMoreMessages reports whether the oldest message of the room is loaded.
// It compares ids exactly: a short page alone does not prove the start of
// the room was reached. An empty room has nothing more to load.
func NoMoreMessages(loaded []models.ChatMessage, firstMessageID *int64) bool {
	if firstMessageID == nil {
		return true
	}
	minID, ok := MinConfirmedID(loaded)
	if !ok {
		return false
	}
	return minID == *firstMessageID
}
