package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/quillchat/quill/internal/api/middleware"
	"github.com/quillchat/quill/internal/engine"
	"github.com/quillchat/quill/internal/models"
	"github.com/quillchat/quill/pkg/types"
)

type MessageHandler struct {
	queries    *models.Queries
	dispatcher *engine.Dispatcher
}

func NewMessageHandler(db *sql.DB, dispatcher *engine.Dispatcher) *MessageHandler {
	return &MessageHandler{
		queries:    models.New(db),
		dispatcher: dispatcher,
	}
}

// SendMessageRequest represents the REST fallback path for sending a message.
// Retries must reuse the clientToken from the original attempt.
type SendMessageRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	Content        string `json:"content" binding:"required"`
	ContentType    string `json:"contentType"`
	ClientToken    string `json:"clientToken"`
}

// MessageResponse represents a message in paginated history.
type MessageResponse struct {
	ID          string              `json:"id"`
	Seq         int64               `json:"seq"`
	AuthorID    string              `json:"authorId"`
	Content     string              `json:"content"`
	ContentType string              `json:"contentType"`
	CreatedAt   int64               `json:"createdAt"`
	Reactions   map[string][]string `json:"reactions,omitempty"`
}

// SendMessage handles POST /v1/messages.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "conversationId and content are required"})
		return
	}

	update, err := h.dispatcher.SendMessage(c.Request.Context(), engine.SendMessageArgs{
		ConversationID: req.ConversationID,
		ActorID:        userID,
		Content:        req.Content,
		ContentType:    req.ContentType,
		ClientToken:    req.ClientToken,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"update": update})
}

// ListMessages handles GET /v1/conversations/:id/messages?page&limit.
// Pages are taken in sequence-descending order and reversed for display.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	conversationID := c.Param("id")

	if _, err := h.dispatcher.ConversationForUser(c.Request.Context(), conversationID, userID); err != nil {
		respondError(c, err)
		return
	}

	limit := int64(50)
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.ParseInt(limitStr, 10, 64); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}
	page := int64(0)
	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := strconv.ParseInt(pageStr, 10, 64); err == nil && p >= 0 {
			page = p
		}
	}

	rows, err := h.queries.ListMessagesPage(c.Request.Context(), models.ListMessagesPageParams{
		ConversationID: conversationID,
		Limit:          limit,
		Offset:         page * limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// Reverse the descending page into display order.
	response := make([]MessageResponse, len(rows))
	for i, row := range rows {
		tallies, err := h.dispatcher.Reactions().Tallies(c.Request.Context(), conversationID, row.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		response[len(rows)-1-i] = MessageResponse{
			ID:          row.ID,
			Seq:         row.Seq,
			AuthorID:    row.AuthorID,
			Content:     row.Content,
			ContentType: row.ContentType,
			CreatedAt:   row.CreatedAt.UnixMilli(),
			Reactions:   tallies,
		}
	}

	readMarks, err := h.dispatcher.Reads().Marks(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":  response,
		"readMarks": readMarks,
		"hasMore":   len(rows) == int(limit),
	})
}
