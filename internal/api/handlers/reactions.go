package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quillchat/quill/internal/api/middleware"
	"github.com/quillchat/quill/internal/engine"
	"github.com/quillchat/quill/pkg/types"
)

type ReactionHandler struct {
	dispatcher *engine.Dispatcher
}

func NewReactionHandler(dispatcher *engine.Dispatcher) *ReactionHandler {
	return &ReactionHandler{dispatcher: dispatcher}
}

// ToggleReactionRequest represents the REST body for a reaction toggle.
type ToggleReactionRequest struct {
	Emoji       string `json:"emoji" binding:"required"`
	ClientToken string `json:"clientToken"`
}

// ToggleReaction handles POST /v1/messages/:id/reactions. The toggle applies
// in whichever direction the current tally dictates.
func (h *ReactionHandler) ToggleReaction(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req ToggleReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "emoji is required"})
		return
	}

	update, err := h.dispatcher.ToggleReaction(c.Request.Context(), engine.ToggleReactionArgs{
		MessageID:   c.Param("id"),
		Emoji:       req.Emoji,
		ActorID:     userID,
		ClientToken: req.ClientToken,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"update": update})
}

// RemoveReaction handles DELETE /v1/messages/:id/reactions/:emoji. Removal
// is the same toggle operation; the idempotency token rides the query string
// since DELETE carries no body.
func (h *ReactionHandler) RemoveReaction(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	update, err := h.dispatcher.ToggleReaction(c.Request.Context(), engine.ToggleReactionArgs{
		MessageID:   c.Param("id"),
		Emoji:       c.Param("emoji"),
		ActorID:     userID,
		ClientToken: c.Query("clientToken"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"update": update})
}
