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

type ConversationHandler struct {
	queries    *models.Queries
	dispatcher *engine.Dispatcher
}

func NewConversationHandler(db *sql.DB, dispatcher *engine.Dispatcher) *ConversationHandler {
	return &ConversationHandler{
		queries:    models.New(db),
		dispatcher: dispatcher,
	}
}

// ConversationResponse represents a conversation in API responses.
type ConversationResponse struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Participants   []string `json:"participants"`
	LastSeq        int64    `json:"lastSeq"`
	LastActivityAt int64    `json:"lastActivityAt"`
	Unread         int64    `json:"unread"`
}

// CreateDirectRequest represents the request to create a direct conversation.
type CreateDirectRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

// CreateGroupRequest represents the request to create a group conversation.
type CreateGroupRequest struct {
	ParticipantIDs []string `json:"participantIds" binding:"required"`
}

// CreateDirect handles POST /v1/conversations/direct. Creating the same
// unordered pair twice returns the existing conversation.
func (h *ConversationHandler) CreateDirect(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req CreateDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "participantId is required"})
		return
	}

	conv, created, err := h.dispatcher.CreateDirectConversation(c.Request.Context(), userID, req.ParticipantID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, h.toResponse(c, conv, userID))
}

// CreateGroup handles POST /v1/conversations.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "participantIds is required"})
		return
	}

	conv, err := h.dispatcher.CreateGroupConversation(c.Request.Context(), userID, req.ParticipantIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.toResponse(c, conv, userID))
}

// ListConversations handles GET /v1/conversations, ordered by last activity.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	limit := int64(100)
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.ParseInt(limitStr, 10, 64); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	rows, err := h.queries.ListConversationsForUser(c.Request.Context(), models.ListConversationsForUserParams{
		UserID: userID,
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]ConversationResponse, 0, len(rows))
	for _, row := range rows {
		conv, err := h.dispatcher.ConversationForUser(c.Request.Context(), row.ID, userID)
		if err != nil {
			respondError(c, err)
			return
		}
		response = append(response, h.toResponse(c, conv, userID))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": response})
}

// GetConversation handles GET /v1/conversations/:id.
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	conv, err := h.dispatcher.ConversationForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponse(c, conv, userID))
}

// MarkReadRequest represents the request to advance a read mark.
type MarkReadRequest struct {
	UpToSequence int64  `json:"upToSequence" binding:"required"`
	ClientToken  string `json:"clientToken"`
}

// MarkRead handles PUT /v1/conversations/:id/read.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "upToSequence is required"})
		return
	}

	update, err := h.dispatcher.MarkRead(c.Request.Context(), engine.MarkReadArgs{
		ConversationID: c.Param("id"),
		ActorID:        userID,
		UpToSeq:        req.UpToSequence,
		ClientToken:    req.ClientToken,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"update": update})
}

// ListEvents handles GET /v1/conversations/:id/events?since=, the catch-up
// read used by reconnecting or lagging subscribers.
func (h *ConversationHandler) ListEvents(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var since int64
	if sinceStr := c.Query("since"); sinceStr != "" {
		if s, err := strconv.ParseInt(sinceStr, 10, 64); err == nil && s >= 0 {
			since = s
		}
	}

	records, err := h.dispatcher.CatchUp(c.Request.Context(), c.Param("id"), userID, since)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": records})
}

func (h *ConversationHandler) toResponse(c *gin.Context, conv *engine.Conversation, userID string) ConversationResponse {
	unread, err := h.dispatcher.Reads().Unread(c.Request.Context(), conv.ID, userID)
	if err != nil {
		unread = 0
	}
	return ConversationResponse{
		ID:             conv.ID,
		Type:           string(conv.Type),
		Participants:   conv.Participants,
		LastSeq:        conv.LastSeq,
		LastActivityAt: conv.LastActivityAt.UnixMilli(),
		Unread:         unread,
	}
}
