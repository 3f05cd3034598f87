package models

import "time"

// Client command types accepted on the feed websocket.
const (
	CommandOpenRoom  = "open_room"
	CommandFetchMore = "fetch_more"
	CommandSend      = "send"
	CommandFocus     = "focus"
)

// Feed event types pushed to renderers.
const (
	EventSnapshot     = "snapshot"
	EventSendFailed   = "send_failed"
	EventRoomActivity = "room_activity"
	EventError        = "error"
)

// ClientCommand is a request sent by a renderer over the feed websocket.
type ClientCommand struct {
	Type   string `json:"type"`
	RoomID int64  `json:"room_id,omitempty"`
	Text   string `json:"text,omitempty"`
}

// FeedSnapshot is the complete render state of an open room.
type FeedSnapshot struct {
	RoomID             int64             `json:"room_id"`
	Title              string            `json:"title"`
	Subtitle           string            `json:"subtitle"`
	Participants       []ChatParticipant `json:"participants"`
	Messages           []ChatMessage     `json:"messages"`
	IDCap              int64             `json:"id_cap"`
	NoMoreMessages     bool              `json:"no_more_messages"`
	DeliveredMessageID *int64            `json:"delivered_message_id,omitempty"`
	Groups             []MessageGroup    `json:"groups"`
	Loading            bool              `json:"loading"`
	// Stale is set when the messages come from the local cache.
	Stale bool `json:"stale"`
	// QueuedTasks counts sends and read updates waiting behind the running one.
	QueuedTasks int `json:"queued_tasks"`
}

// MessageGroup is a run of messages rendered under one sender, newest first.
type MessageGroup struct {
	MessageIDs      []MessageID `json:"message_ids"`
	SenderProfileID *int64      `json:"sender_profile_id"`
	// Header is the date line above the group; empty unless there is a time break.
	Header    string `json:"header,omitempty"`
	Delivered bool   `json:"delivered,omitempty"`
}

// RoomActivity announces a newly confirmed message to every gateway instance.
type RoomActivity struct {
	RoomID          int64     `json:"room_id"`
	MessageID       int64     `json:"message_id"`
	SenderProfileID *int64    `json:"sender_profile_id"`
	Text            string    `json:"text"`
	CreatedAt       time.Time `json:"created_at"`
}

// FeedEvent is a message written to a renderer.
type FeedEvent struct {
	Type         string        `json:"type"`
	Snapshot     *FeedSnapshot `json:"snapshot,omitempty"`
	Activity     *RoomActivity `json:"activity,omitempty"`
	Highlight    bool          `json:"highlight,omitempty"`
	ClientTempID string        `json:"client_temp_id,omitempty"`
	Error        string        `json:"error,omitempty"`
}
