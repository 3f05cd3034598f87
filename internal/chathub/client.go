package chathub

import "spacechat/backend/internal/models"

// Client is one renderer connected to the gateway.
// It abstracts the underlying connection, allowing the hub to fan out room
// activity without knowing how events reach the renderer.
type Client interface {
	// GetProfileID returns the viewer profile the connection belongs to.
	GetProfileID() int64
	// GetRoomID returns the room the viewer has open, or 0.
	GetRoomID() int64

	// GetSendChannel returns the channel to which the ManagerService (hub) sends
	// events intended for this specific client.
	GetSendChannel() chan<- models.FeedEvent

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's connection. It may be called more than once.
	Close()
}
