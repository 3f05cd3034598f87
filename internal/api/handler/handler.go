package handler

import (
	"context"
	"log"
	"net/http"
	"spacechat/backend/internal/appstate"
	"spacechat/backend/internal/chathub"
	"spacechat/backend/internal/feed"
	"spacechat/backend/internal/kvstore"
	"spacechat/backend/internal/models"
	"time"

	"github.com/gin-gonic/gin"
)

// Backend is the part of the GraphQL backend the HTTP routes use.
type Backend interface {
	feed.Backend
	ChatRoomsForProfile(ctx context.Context, profileID int64) ([]*models.ChatRoom, error)
	RecordProfileView(ctx context.Context, viewer, viewed int64) error
	UpdateProfileLastActive(ctx context.Context, profileID int64, at time.Time) error
}

// Handler містить залежності HTTP-маршрутів шлюзу
type Handler struct {
	Hub     *chathub.ManagerService
	Backend Backend
	Store   kvstore.Store
	Tokens  *TokenIssuer
	// FeedOptions are applied to every feed controller of a websocket.
	FeedOptions feed.Options
}

func NewHandler(hub *chathub.ManagerService, backend Backend, store kvstore.Store, tokens *TokenIssuer, opts feed.Options) *Handler {
	return &Handler{
		Hub:         hub,
		Backend:     backend,
		Store:       store,
		Tokens:      tokens,
		FeedOptions: opts,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Health)

	api := r.Group("/", h.RequireAuth())
	api.GET("/ws", h.ServeWebSocket)
	api.GET("/rooms", h.ListRooms)
	api.GET("/rooms/:id/messages", h.ListMessages)
	api.POST("/profiles/:id/view", h.RecordProfileView)
	api.GET("/push-prompt", h.GetPushPrompt)
	api.POST("/push-prompt", h.MarkPushPrompt)
	api.GET("/state/space", h.GetSpace)
	api.PUT("/state/space", h.PutSpace)
	api.GET("/state/search", h.GetSearch)
	api.PUT("/state/search", h.PutSearch)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// state builds the application state of the request's viewer.
func (h *Handler) state(c *gin.Context) *appstate.State {
	claims := claimsFrom(c)
	return appstate.New(h.Store, claims.ProfileID, claims.SpaceID)
}

// touchLastActive оновлює last_active не частіше ніж раз на cooldown
func (h *Handler) touchLastActive(ctx context.Context, state *appstate.State) {
	ok, err := state.AcquireLastActive(ctx)
	if err != nil {
		log.Printf("WARN: last-active cooldown for profile %d: %v", state.ProfileID(), err)
		return
	}
	if !ok {
		return
	}
	if err := h.Backend.UpdateProfileLastActive(ctx, state.ProfileID(), time.Now()); err != nil {
		log.Printf("ERROR: failed to update last active of profile %d: %v", state.ProfileID(), err)
	}
}
