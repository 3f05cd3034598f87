package handler

import (
	"context"
	"net/http"
	"spacechat/backend/internal/chathub"
	"spacechat/backend/internal/config"
	"spacechat/backend/internal/feed"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Рендерери працюють з різних доменів (web, mobile webview)
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket і запускає стрічку глядача
func (h *Handler) ServeWebSocket(c *gin.Context) {
	claims := claimsFrom(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade вже записав відповідь з помилкою
		return
	}

	opts := h.FeedOptions
	opts.OnConfirmed = h.Hub.AnnounceConfirmed()
	ctrl := feed.NewController(h.Backend, claims.ProfileID, opts)

	client := chathub.NewWebSocketClient(conn, h.Hub, ctrl)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}
	client.Run()

	state := h.state(c)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.QueueTaskTimeout)
		defer cancel()
		h.touchLastActive(ctx, state)
	}()
}
