package feed

import "spacechat/backend/internal/models"

// ReadState is the local view of the viewer's read marker in one room.
// It is not safe for concurrent use; the controller guards it.
type ReadState struct {
	roomID    int64
	member    bool
	latest    int64 // 0 while the marker is unset
	requested int64 // highest id with an update in flight, 0 if none
	lastOther int64 // newest other-sender id seen by Observe
}

// NewReadState captures the viewer's membership in room.
func NewReadState(room *models.ChatRoom, me int64) *ReadState {
	rs := &ReadState{}
	if room == nil {
		return rs
	}
	rs.roomID = room.ID
	if m := MyMembership(room, me); m != nil {
		rs.member = true
		if m.LatestReadChatMessageID != nil {
			rs.latest = *m.LatestReadChatMessageID
		}
	}
	return rs
}

// Latest returns the stored read marker, nil while unset.
func (r *ReadState) Latest() *int64 {
	if r.latest == 0 {
		return nil
	}
	v := r.latest
	return &v
}

// Mark decides whether msg advances the read marker. It returns the id to
// send and true when an update should be issued, and records that id as in
// flight. Messages at or below the stored marker are a no-op, as are
// messages already covered by an in-flight update.
func (r *ReadState) Mark(msg *models.ChatMessage) (int64, bool) {
	if r == nil || !r.member || msg == nil || msg.ChatRoomID != r.roomID {
		return 0, false
	}
	id, ok := msg.ID.ServerID()
	if !ok || id <= 0 {
		return 0, false
	}
	if id <= r.latest || id <= r.requested {
		return 0, false
	}
	r.requested = id
	return id, true
}

// Acknowledge records the outcome of the update for id. Success advances the
// marker and never lowers it. Failure clears the in-flight mark so that the
// next trigger tries again.
func (r *ReadState) Acknowledge(id int64, err error) {
	if err == nil {
		if id > r.latest {
			r.latest = id
		}
		if r.requested <= r.latest {
			r.requested = 0
		}
		return
	}
	if r.requested == id {
		r.requested = 0
	}
}

// Observe reports whether msg is a different newest other-sender message than
// the one seen on the previous call.
func (r *ReadState) Observe(msg *models.ChatMessage) bool {
	if msg == nil {
		return false
	}
	id, ok := msg.ID.ServerID()
	if !ok || id == r.lastOther {
		return false
	}
	r.lastOther = id
	return true
}

// NewestFromOthers returns the newest confirmed message in a newest-first list
// that was not sent by me.
func NewestFromOthers(messages []models.ChatMessage, me int64) *models.ChatMessage {
	for i := range messages {
		if messages[i].SentBy(me) || messages[i].ID.IsPending() {
			continue
		}
		return &messages[i]
	}
	return nil
}
