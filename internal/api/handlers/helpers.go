package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quillchat/quill/internal/engine"
	"github.com/quillchat/quill/pkg/logger"
	"github.com/quillchat/quill/pkg/types"
)

// respondError maps engine errors to HTTP status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrConversationNotFound),
		errors.Is(err, engine.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrActorNotParticipant):
		c.JSON(http.StatusForbidden, types.ErrorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
	default:
		logger.Errorf("[API] internal error: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "internal error"})
	}
}
