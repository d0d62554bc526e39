package engine

import (
	"context"
	"time"

	"github.com/quillchat/quill/pkg/wire"
)

// ConversationType distinguishes two-party and group conversations.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Conversation is the sequencer's view of a conversation.
type Conversation struct {
	ID             string
	Type           ConversationType
	Participants   []string
	LastSeq        int64
	LastActivityAt time.Time
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// EventKind identifies an event variant in the per-conversation log.
type EventKind string

const (
	EventMessage  EventKind = "message"
	EventReaction EventKind = "reaction"
	EventRead     EventKind = "read"
)

// Event is the atomic unit applied to a conversation. Before sequencing,
// Seq is zero; the sequencer assigns it exactly once.
type Event struct {
	ConversationID string
	Seq            int64
	Kind           EventKind
	ActorID        string
	ClientToken    string
	AppliedAt      time.Time

	// Exactly one body is set, matching Kind.
	Message  *wire.MessageBody
	Reaction *wire.ReactionBody
	Read     *wire.ReadBody
}

// MessageRef is a minimal view of a persisted message, used to validate
// reaction targets.
type MessageRef struct {
	ID             string
	ConversationID string
	Seq            int64
	AuthorID       string
}

// Store abstracts durable persistence for the sync engine.
//
// AppendEvent must persist the event and advance the conversation's sequence
// high-water mark as one atomic step; a partially persisted event must never
// be observable.
type Store interface {
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	CreateDirectConversation(ctx context.Context, userA, userB string) (conv *Conversation, created bool, err error)
	CreateGroupConversation(ctx context.Context, participants []string) (*Conversation, error)
	GetMessage(ctx context.Context, id string) (*MessageRef, error)
	AppendEvent(ctx context.Context, ev *Event) error
	ReadEventsFrom(ctx context.Context, conversationID string, sinceSeq int64) ([]Event, error)
}
