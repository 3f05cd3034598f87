package feed_test

import (
	"spacechat/backend/internal/models"
	"sync"
	"time"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func message(id, roomID, sender int64, at time.Time) models.ChatMessage {
	return models.ChatMessage{
		ID:              models.Confirmed(id),
		ChatRoomID:      roomID,
		SenderProfileID: ptr(sender),
		Text:            "message",
		CreatedAt:       at,
	}
}

// page returns messages from..to (inclusive, descending) one minute apart.
func page(roomID, sender, from, to int64) []models.ChatMessage {
	var msgs []models.ChatMessage
	for id := from; id >= to; id-- {
		msgs = append(msgs, message(id, roomID, sender, base.Add(time.Duration(id)*time.Minute)))
	}
	return msgs
}

func ids(msgs []models.ChatMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID.String())
	}
	return out
}

func room(id int64, first *int64, members ...models.ProfileToChatRoom) *models.ChatRoom {
	r := &models.ChatRoom{ID: id, Memberships: members}
	if first != nil {
		r.FirstChatMessage = &models.ChatMessage{ID: models.Confirmed(*first), ChatRoomID: id}
	}
	return r
}

func member(profileID, roomID int64, name string, latestRead *int64) models.ProfileToChatRoom {
	return models.ProfileToChatRoom{
		ID:                      profileID*100 + roomID,
		ProfileID:               profileID,
		ChatRoomID:              roomID,
		LatestReadChatMessageID: latestRead,
		Profile: &models.Profile{
			ID:       profileID,
			Headline: ptr(name + " headline"),
			User:     &models.User{FullName: name, FirstName: name, Type: models.UserTypeUser},
		},
	}
}

// recorder collects feed events.
type recorder struct {
	mu     sync.Mutex
	events []models.FeedEvent
}

func (r *recorder) listen(ev models.FeedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(typ string) []models.FeedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.FeedEvent
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
