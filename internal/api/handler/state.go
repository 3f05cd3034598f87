package handler

import (
	"log"
	"net/http"
	"spacechat/backend/internal/appstate"
	"strconv"

	"github.com/gin-gonic/gin"
)

// RecordProfileView записує перегляд профілю не частіше ніж раз на годину.
func (h *Handler) RecordProfileView(c *gin.Context) {
	viewed, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || viewed <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile id"})
		return
	}
	state := h.state(c)
	if viewed == state.ProfileID() {
		c.JSON(http.StatusOK, gin.H{"recorded": false})
		return
	}

	ctx := c.Request.Context()
	ok, err := state.AcquireProfileView(ctx, viewed)
	if err != nil {
		log.Printf("ERROR: profile view cooldown for %d: %v", state.ProfileID(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record view"})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"recorded": false})
		return
	}
	if err := h.Backend.RecordProfileView(ctx, state.ProfileID(), viewed); err != nil {
		log.Printf("ERROR: failed to record view of profile %d by %d: %v", viewed, state.ProfileID(), err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to record view"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

func (h *Handler) GetPushPrompt(c *gin.Context) {
	shown, err := h.state(c).PushPromptShown(c.Request.Context())
	if err != nil {
		log.Printf("ERROR: reading push prompt flag: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"shown": shown})
}

func (h *Handler) MarkPushPrompt(c *gin.Context) {
	if err := h.state(c).MarkPushPromptShown(c.Request.Context()); err != nil {
		log.Printf("ERROR: saving push prompt flag: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save state"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetSpace returns the space the viewer visited last.
func (h *Handler) GetSpace(c *gin.Context) {
	id, found, err := h.state(c).LastVisitedSpace(c.Request.Context())
	if err != nil {
		log.Printf("ERROR: reading last visited space: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"space_id": id, "found": found})
}

type spaceRequest struct {
	SpaceID int64 `json:"space_id" binding:"required,gt=0"`
}

// PutSpace remembers the space the viewer switched to.
func (h *Handler) PutSpace(c *gin.Context) {
	var req spaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "space_id is required"})
		return
	}
	if err := h.state(c).SetSpace(c.Request.Context(), req.SpaceID); err != nil {
		log.Printf("ERROR: saving last visited space: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"space_id": req.SpaceID})
}

// GetSearch returns the directory search the viewer left off with.
func (h *Handler) GetSearch(c *gin.Context) {
	state := h.state(c)
	if err := state.RestoreSearch(c.Request.Context()); err != nil {
		log.Printf("ERROR: reading search state of profile %d: %v", state.ProfileID(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read state"})
		return
	}
	c.JSON(http.StatusOK, searchResponse(state))
}

type searchRequest struct {
	Query string   `json:"query"`
	Tags  []string `json:"tags"`
}

// PutSearch saves the search query and selected tags.
func (h *Handler) PutSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid search state"})
		return
	}
	state := h.state(c)
	ctx := c.Request.Context()
	if err := state.SetSearchQuery(ctx, req.Query); err != nil {
		log.Printf("ERROR: saving search query: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save state"})
		return
	}
	if err := state.SetSelectedTags(ctx, req.Tags); err != nil {
		log.Printf("ERROR: saving selected tags: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save state"})
		return
	}
	c.JSON(http.StatusOK, searchResponse(state))
}

func searchResponse(r appstate.Reader) gin.H {
	tags := r.SelectedTags()
	if tags == nil {
		tags = []string{}
	}
	return gin.H{"query": r.SearchQuery(), "tags": tags}
}
