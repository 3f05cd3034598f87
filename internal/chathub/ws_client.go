package chathub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"spacechat/backend/internal/config"
	"spacechat/backend/internal/feed"
	"spacechat/backend/internal/models"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// WebSocketClient реалізує інтерфейс chathub.Client: одне з'єднання рендерера
// з власним контролером стрічки.
type WebSocketClient struct {
	ProfileID int64
	Conn      *websocket.Conn
	Hub       *ManagerService
	Feed      *feed.Controller
	Send      chan models.FeedEvent

	limiter     *rate.Limiter
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	closeOnce   sync.Once
}

// NewWebSocketClient wires ctrl to conn. Every controller event is forwarded
// to the renderer.
func NewWebSocketClient(conn *websocket.Conn, hub *ManagerService, ctrl *feed.Controller) *WebSocketClient {
	ctx, cancel := context.WithCancel(context.Background())
	c := &WebSocketClient{
		ProfileID: ctrl.Viewer(),
		Conn:      conn,
		Hub:       hub,
		Feed:      ctrl,
		Send:      make(chan models.FeedEvent, config.ClientSendBuffer),
		limiter:   rate.NewLimiter(rate.Limit(config.CommandRatePerSecond), config.CommandBurst),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.unsubscribe = ctrl.Subscribe(c.push)
	return c
}

// --- Реалізація методів інтерфейсу ---

func (c *WebSocketClient) GetProfileID() int64                     { return c.ProfileID }
func (c *WebSocketClient) GetRoomID() int64                        { return c.Feed.RoomID() }
func (c *WebSocketClient) GetSendChannel() chan<- models.FeedEvent { return c.Send }

// Run запускає 'pumps' для WebSocket
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close зупиняє writePump, який закриває з'єднання.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() {
		c.unsubscribe()
		c.cancel()
	})
}

// push forwards a feed event without blocking the controller.
func (c *WebSocketClient) push(ev models.FeedEvent) {
	select {
	case <-c.ctx.Done():
	case c.Send <- ev:
	default:
		log.Printf("WARN: send buffer of profile %d is full, dropping %s event", c.ProfileID, ev.Type)
	}
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		ctx, cancel := context.WithTimeout(context.Background(), config.QueueTaskTimeout)
		if err := c.Feed.Close(ctx); err != nil {
			log.Printf("WARN: feed of profile %d closed with pending work: %v", c.ProfileID, err)
		}
		cancel()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error reading message: %v", err)
			}
			break
		}

		var cmd models.ClientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			log.Printf("Error decoding JSON from profile %d: %v", c.ProfileID, err)
			c.push(models.FeedEvent{Type: models.EventError, Error: "invalid command"})
			continue
		}

		if !c.limiter.Allow() {
			c.push(models.FeedEvent{Type: models.EventError, Error: "too many commands"})
			continue
		}

		// команди виконуються по черзі, у порядку надходження
		if err := c.handle(cmd); err != nil {
			c.push(models.FeedEvent{Type: models.EventError, Error: err.Error()})
		}
	}
}

func (c *WebSocketClient) handle(cmd models.ClientCommand) error {
	switch cmd.Type {
	case models.CommandOpenRoom:
		return c.Feed.Open(c.ctx, cmd.RoomID)
	case models.CommandFetchMore:
		return c.Feed.FetchMore(c.ctx)
	case models.CommandSend:
		_, err := c.Feed.Send(cmd.Text)
		return err
	case models.CommandFocus:
		c.Feed.Focus()
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
}

// writePump читає події з каналу Send і записує їх у WebSocket.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case ev := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(ev); err != nil {
				log.Printf("Error writing event for profile %d: %v", c.ProfileID, err)
				return
			}

		case <-ticker.C:
			// Надсилаємо Ping для підтримки з'єднання активним
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
