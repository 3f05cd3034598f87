package handler

import (
	"context"
	"log"
	"net/http"
	"spacechat/backend/internal/config"
	"spacechat/backend/internal/feed"
	"spacechat/backend/internal/models"
	"strconv"

	"github.com/gin-gonic/gin"
)

const maxPageSize = 100

// RoomSummary is one entry of the room list.
type RoomSummary struct {
	ID            int64                    `json:"id"`
	Title         string                   `json:"title"`
	Subtitle      string                   `json:"subtitle"`
	Highlight     bool                     `json:"highlight"`
	Participants  []models.ChatParticipant `json:"participants"`
	LatestMessage *models.ChatMessage      `json:"latest_message,omitempty"`
}

// ListRooms повертає кімнати глядача з назвою, підзаголовком і підсвіткою.
// Кімната з параметра open вважається відкритою і не підсвічується.
func (h *Handler) ListRooms(c *gin.Context) {
	claims := claimsFrom(c)

	var openRoom int64
	if raw := c.Query("open"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid open room id"})
			return
		}
		openRoom = id
	}

	rooms, err := h.Backend.ChatRoomsForProfile(c.Request.Context(), claims.ProfileID)
	if err != nil {
		log.Printf("ERROR: failed to list rooms of profile %d: %v", claims.ProfileID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load rooms"})
		return
	}

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		participants := feed.ChatParticipants(room)
		summaries = append(summaries, RoomSummary{
			ID:            room.ID,
			Title:         feed.ChatRoomTitle(participants, claims.ProfileID),
			Subtitle:      feed.ChatRoomSubtitle(room, participants, claims.ProfileID),
			Highlight:     feed.ShouldHighlightChatRoom(room, openRoom, claims.ProfileID),
			Participants:  participants,
			LatestMessage: room.LatestChatMessage,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": summaries})
}

// room loads a room from the backend, or from the cache while the backend is
// unreachable.
func (h *Handler) room(ctx context.Context, roomID int64) (*models.ChatRoom, error) {
	room, err := h.Backend.ChatRoom(ctx, roomID)
	if err == nil || h.FeedOptions.Cache == nil {
		return room, err
	}
	cached, cacheErr := h.FeedOptions.Cache.CachedRoom(ctx, roomID)
	if cacheErr != nil || cached == nil {
		return nil, err
	}
	return cached, nil
}

// ListMessages returns one page of a room, newest first, with ids up to
// id_cap. While the backend is unreachable the cached page is served and
// marked stale.
func (h *Handler) ListMessages(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	idCap := config.DefaultIDCap
	if raw := c.Query("id_cap"); raw != "" {
		idCap, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || idCap <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id_cap"})
			return
		}
	}

	limit := h.FeedOptions.PageSize
	if limit <= 0 {
		limit = config.DefaultPageSize
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxPageSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
	}

	ctx := c.Request.Context()
	claims := claimsFrom(c)
	room, err := h.room(ctx, roomID)
	if err != nil {
		log.Printf("ERROR: failed to load room %d: %v", roomID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load room"})
		return
	}
	if room == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	if feed.MyMembership(room, claims.ProfileID) == nil {
		log.Printf("WARN: profile %d asked for messages of room %d without membership", claims.ProfileID, roomID)
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this room"})
		return
	}

	messages, err := h.Backend.Messages(ctx, roomID, idCap, limit)
	if err == nil {
		feed.SortNewestFirst(messages)
		c.JSON(http.StatusOK, gin.H{"messages": messages, "stale": false})
		return
	}
	log.Printf("ERROR: failed to load messages of room %d: %v", roomID, err)

	if h.FeedOptions.Cache == nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load messages"})
		return
	}
	cached, cacheErr := h.FeedOptions.Cache.CachedMessages(ctx, roomID, idCap, limit)
	if cacheErr != nil || len(cached) == 0 {
		if cacheErr != nil {
			log.Printf("WARN: cache miss for room %d: %v", roomID, cacheErr)
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load messages"})
		return
	}
	feed.SortNewestFirst(cached)
	c.JSON(http.StatusOK, gin.H{"messages": cached, "stale": true})
}
