package wire

// Update is the payload broadcast to every subscriber of a conversation when
// an event is applied, and returned verbatim to the originator as the
// acknowledgment.
type Update struct {
	// ID is a unique identifier for this payload.
	ID string `json:"id"`
	// ConversationID is the affected conversation.
	ConversationID string `json:"conversationId"`
	// Seq is the applied event's sequence number. Zero for no-op
	// acknowledgments (e.g. a stale read mark) that consumed no sequence.
	Seq int64 `json:"seq"`
	// Kind is the applied event kind: "message", "reaction" or "read".
	Kind string `json:"kind"`
	// ActorID is the originator of the applied event.
	ActorID string `json:"actorId"`
	// CreatedAt is the payload creation time in unix milliseconds.
	CreatedAt int64 `json:"createdAt"`

	// Message is set for "message" updates.
	Message *MessageDelta `json:"message,omitempty"`
	// Reaction is set for "reaction" updates.
	Reaction *ReactionDelta `json:"reaction,omitempty"`
	// Read is set for "read" updates.
	Read *ReadDelta `json:"read,omitempty"`
}

// MessageDelta describes a newly applied message.
type MessageDelta struct {
	ID          string `json:"id"`
	Seq         int64  `json:"seq"`
	AuthorID    string `json:"authorId"`
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
	CreatedAt   int64  `json:"createdAt"`
	// Unread maps each participant to their unread count after this
	// message was applied.
	Unread map[string]int64 `json:"unread,omitempty"`
}

// ReactionDelta is the minimal patch for a reaction toggle.
type ReactionDelta struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	ActorID   string `json:"actorId"`
	// Op is "added" or "removed".
	Op string `json:"op"`
	// Count is the number of actors with this emoji active after the toggle.
	Count int `json:"count"`
}

// ReadDelta describes an advanced read mark.
type ReadDelta struct {
	ActorID string `json:"actorId"`
	UpToSeq int64  `json:"upToSeq"`
	// Unread is the actor's unread count after the mark.
	Unread int64 `json:"unread"`
}

// Presence announces an online/offline transition for a user.
type Presence struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
	At     int64  `json:"at"`
}

// Resync tells a subscriber it was dropped from a conversation's fan-out and
// must perform a catch-up read before re-subscribing.
type Resync struct {
	ConversationID string `json:"conversationId"`
	Reason         string `json:"reason"`
}

// Outbound is the envelope pushed into a subscriber's outbound queue.
type Outbound struct {
	// Type is "update", "presence" or "resync".
	Type     string    `json:"type"`
	Update   *Update   `json:"update,omitempty"`
	Presence *Presence `json:"presence,omitempty"`
	Resync   *Resync   `json:"resync,omitempty"`
}

// EventRecord is a raw log entry returned by catch-up reads. Clients fold
// records in sequence order to reconstruct derived state.
type EventRecord struct {
	ConversationID string `json:"conversationId"`
	Seq            int64  `json:"seq"`
	Kind           string `json:"kind"`
	ActorID        string `json:"actorId"`
	AppliedAt      int64  `json:"appliedAt"`

	Message  *MessageBody  `json:"message,omitempty"`
	Reaction *ReactionBody `json:"reaction,omitempty"`
	Read     *ReadBody     `json:"read,omitempty"`
}

// MessageBody is the payload of a message event.
type MessageBody struct {
	MessageID   string `json:"messageId"`
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

// ReactionBody is the payload of a reaction toggle event.
type ReactionBody struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// ReadBody is the payload of a read mark event.
type ReadBody struct {
	UpToSeq int64 `json:"upToSeq"`
}
