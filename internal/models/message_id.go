package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// MessageID identifies a chat message in one of two states: Pending, while an
// optimistic send is in flight and only a client-generated id exists, or
// Confirmed, once the backend has assigned the permanent integer id.
type MessageID struct {
	serverID     int64
	clientTempID string
}

// Confirmed wraps a backend-assigned message id.
func Confirmed(serverID int64) MessageID {
	return MessageID{serverID: serverID}
}

// Pending wraps a client-generated placeholder id.
func Pending(clientTempID string) MessageID {
	return MessageID{clientTempID: clientTempID}
}

// NewPendingID returns a Pending id backed by a random UUID.
func NewPendingID() MessageID {
	return Pending(uuid.NewString())
}

// IsPending reports whether the message is still waiting for the backend.
func (id MessageID) IsPending() bool { return id.clientTempID != "" }

// IsZero reports whether the id carries neither a server id nor a temp id.
func (id MessageID) IsZero() bool { return id.clientTempID == "" && id.serverID == 0 }

// ServerID returns the permanent id and true for confirmed messages.
func (id MessageID) ServerID() (int64, bool) {
	if id.IsPending() {
		return 0, false
	}
	return id.serverID, true
}

// ClientTempID returns the placeholder id of a pending message, or "".
func (id MessageID) ClientTempID() string { return id.clientTempID }

// Key is a map key that never collides between the two states.
func (id MessageID) Key() string {
	if id.IsPending() {
		return "p:" + id.clientTempID
	}
	return "c:" + strconv.FormatInt(id.serverID, 10)
}

func (id MessageID) String() string {
	if id.IsPending() {
		return id.clientTempID
	}
	return strconv.FormatInt(id.serverID, 10)
}

// MarshalJSON encodes confirmed ids as numbers and pending ids as strings,
// which is the representation renderers already understand.
func (id MessageID) MarshalJSON() ([]byte, error) {
	if id.IsPending() {
		return json.Marshal(id.clientTempID)
	}
	return []byte(strconv.FormatInt(id.serverID, 10)), nil
}

func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = MessageID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = Pending(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	*id = Confirmed(n)
	return nil
}
