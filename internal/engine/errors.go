package engine

import "errors"

var (
	// ErrConversationNotFound is returned when an operation targets a
	// conversation that does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrActorNotParticipant is returned when the acting user is not a
	// member of the target conversation.
	ErrActorNotParticipant = errors.New("actor is not a participant")

	// ErrMessageNotFound is returned when a reaction targets a message
	// that does not exist in the conversation.
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidArgument is returned for malformed operations (empty
	// content, missing ids) before any sequence is consumed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSequenceConflict is returned by the store when an append raced
	// with another writer for the same sequence slot. The sequencer's
	// serialization makes this unreachable in normal operation.
	ErrSequenceConflict = errors.New("sequence conflict")
)
