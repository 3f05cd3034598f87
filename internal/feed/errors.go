package feed

import "errors"

// Validation failures, returned before any network call.
var (
	ErrEmptyMessage = errors.New("message text is empty")
	ErrNoProfile    = errors.New("no viewer profile")
	ErrNoRoom       = errors.New("no chat room is open")
)

// ErrNotMember is returned by Open for rooms the viewer does not belong to.
var ErrNotMember = errors.New("viewer is not a member of the chat room")

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("feed controller closed")
