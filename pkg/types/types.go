package types

import (
	"github.com/google/uuid"
)

// NewID generates a unique identifier for conversations, messages and events.
func NewID() string {
	return uuid.NewString()
}

// Common response types

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}
