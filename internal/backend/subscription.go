package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"spacechat/backend/internal/models"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
	msgPing           = "ping"
	msgPong           = "pong"

	subprotocol  = "graphql-transport-ws"
	ackTimeout   = 10 * time.Second
	writeTimeout = 10 * time.Second
	streamBuffer = 16
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// errStreamEnded marks a subscription the server finished on purpose.
var errStreamEnded = errors.New("stream ended by server")

// SubscribeMessages streams messages of the room created at or after since.
// Batches arrive on the returned channel, which is closed when ctx is done or
// the server ends the subscription. A dropped connection is re-established
// with backoff and resumes after the newest message already delivered.
func (c *Client) SubscribeMessages(ctx context.Context, roomID int64, since time.Time) (<-chan []models.ChatMessage, error) {
	conn, err := c.dialStream(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan []models.ChatMessage, streamBuffer)
	go c.runStream(ctx, conn, roomID, since, out)
	return out, nil
}

func (c *Client) dialStream(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: ackTimeout,
		Subprotocols:     []string{subprotocol},
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.wsURL, err)
	}

	init := map[string]any{}
	if c.token != "" {
		init["headers"] = map[string]string{"Authorization": "Bearer " + c.token}
	}
	payload, _ := json.Marshal(init)
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(wsMessage{Type: msgConnectionInit, Payload: payload}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connection_init: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(ackTimeout))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("waiting for connection_ack: %w", err)
		}
		if msg.Type == msgConnectionAck {
			break
		}
		if msg.Type == msgPing {
			conn.WriteJSON(wsMessage{Type: msgPong})
		}
	}
	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})
	return conn, nil
}

func (c *Client) runStream(ctx context.Context, conn *websocket.Conn, roomID int64, since time.Time, out chan<- []models.ChatMessage) {
	defer close(out)
	for {
		last, err := c.pump(ctx, conn, roomID, since, out)
		conn.Close()
		if last.After(since) {
			since = last
		}
		if ctx.Err() != nil || err == nil || errors.Is(err, errStreamEnded) {
			return
		}
		log.Printf("WARN: message stream for room %d dropped: %v", roomID, err)

		for attempt := 1; ; attempt++ {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.reconnect.Backoff(attempt)):
			}
			conn, err = c.dialStream(ctx)
			if err == nil {
				break
			}
			log.Printf("WARN: reconnect %d for room %d failed: %v", attempt, roomID, err)
		}
		log.Printf("INFO: message stream for room %d restored", roomID)
	}
}

// pump runs one subscription on conn. It returns the creation time of the
// newest delivered message and nil when ctx ended the stream.
func (c *Client) pump(ctx context.Context, conn *websocket.Conn, roomID int64, since time.Time, out chan<- []models.ChatMessage) (time.Time, error) {
	const subID = "1"
	var writeMu sync.Mutex
	write := func(msg wsMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(msg)
	}

	payload, err := json.Marshal(request{
		Query:         streamMessages,
		OperationName: "StreamMessages",
		Variables: map[string]any{
			"chat_room_id": roomID,
			"since":        since.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return since, err
	}
	if err := write(wsMessage{ID: subID, Type: msgSubscribe, Payload: payload}); err != nil {
		return since, fmt.Errorf("subscribe: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			write(wsMessage{ID: subID, Type: msgComplete})
			conn.Close()
		case <-done:
		}
	}()

	last := since
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return last, nil
			}
			return last, err
		}

		switch msg.Type {
		case msgPing:
			if err := write(wsMessage{Type: msgPong}); err != nil {
				return last, err
			}
		case msgNext:
			batch, err := decodeBatch(msg.Payload)
			if err != nil {
				log.Printf("ERROR: bad stream payload for room %d: %v", roomID, err)
				continue
			}
			if len(batch) == 0 {
				continue
			}
			for _, m := range batch {
				if m.CreatedAt.After(last) {
					last = m.CreatedAt
				}
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				return last, nil
			}
		case msgError:
			var errs []GraphQLError
			if err := json.Unmarshal(msg.Payload, &errs); err == nil && len(errs) > 0 {
				log.Printf("ERROR: message stream for room %d rejected: %v", roomID, &errs[0])
			}
			return last, errStreamEnded
		case msgComplete:
			return last, errStreamEnded
		}
	}
}

func decodeBatch(raw json.RawMessage) ([]models.ChatMessage, error) {
	var payload struct {
		Data struct {
			Messages []models.ChatMessage `json:"chat_message_stream"`
		} `json:"data"`
		Errors []GraphQLError `json:"errors"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	if len(payload.Errors) > 0 {
		return nil, &payload.Errors[0]
	}
	return payload.Data.Messages, nil
}
