package models

// ChatRoom is a direct or group conversation between profiles of one space.
// Rooms are created by the backend; the client only ever advances its own
// membership read state.
type ChatRoom struct {
	// ID is the backend identifier of the room.
	ID int64 `json:"id"`
	// ChatIntroID is set for system-generated introduction rooms.
	ChatIntroID *int64 `json:"chat_intro_id,omitempty"`
	// Memberships lists every profile in the room.
	Memberships []ProfileToChatRoom `json:"profile_to_chat_rooms"`
	// LatestChatMessage is the newest message, nil for an empty room.
	LatestChatMessage *ChatMessage `json:"latest_chat_message,omitempty"`
	// FirstChatMessage is the oldest message, nil for an empty room.
	FirstChatMessage *ChatMessage `json:"first_chat_message,omitempty"`
}

// IsIntro reports whether the room was created by an introduction.
func (r *ChatRoom) IsIntro() bool {
	return r != nil && r.ChatIntroID != nil
}

// FirstMessageID returns the id of the oldest message, if known.
func (r *ChatRoom) FirstMessageID() *int64 {
	if r == nil || r.FirstChatMessage == nil {
		return nil
	}
	id, ok := r.FirstChatMessage.ID.ServerID()
	if !ok {
		return nil
	}
	return &id
}

// LatestMessageID returns the id of the newest message, if known.
func (r *ChatRoom) LatestMessageID() *int64 {
	if r == nil || r.LatestChatMessage == nil {
		return nil
	}
	id, ok := r.LatestChatMessage.ID.ServerID()
	if !ok {
		return nil
	}
	return &id
}

// ProfileToChatRoom is a membership of a profile in a room.
type ProfileToChatRoom struct {
	ID         int64    `json:"id"`
	ProfileID  int64    `json:"profile_id"`
	ChatRoomID int64    `json:"chat_room_id"`
	Profile    *Profile `json:"profile,omitempty"`
	// LatestReadChatMessageID never decreases once set.
	LatestReadChatMessageID *int64 `json:"latest_read_chat_message_id"`
}
