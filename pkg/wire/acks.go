package wire

// ResultAck is the minimal ACK response shape used by Socket.IO handlers.
type ResultAck struct {
	// Result is "success" or "error".
	Result string `json:"result"`
	// Message is an optional error annotation.
	Message string `json:"message,omitempty"`
}

// EventAck acknowledges a mutating operation. Update carries the same payload
// broadcast to the conversation's subscribers; a retried operation receives
// the identical payload produced by the first application.
type EventAck struct {
	// Result is "success" or "error".
	Result string `json:"result"`
	// Message is an optional error annotation.
	Message string `json:"message,omitempty"`
	// Update is set on success.
	Update *Update `json:"update,omitempty"`
}

// SubscribedAck confirms a subscription and reports the conversation's
// current sequence high-water mark so the client can catch up if needed.
type SubscribedAck struct {
	Result         string `json:"result"`
	Message        string `json:"message,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	LastSeq        int64  `json:"lastSeq,omitempty"`
}

// SocketAuthPayload is the Socket.IO handshake auth blob. A connection
// without a valid token is rejected before any event handler runs.
type SocketAuthPayload struct {
	Token string `json:"token"`
}

// Inbound push-channel payloads. Each mutating payload carries the client's
// idempotency token.

type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	ContentType    string `json:"contentType"`
	ClientToken    string `json:"clientToken"`
}

type ToggleReactionPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Emoji          string `json:"emoji"`
	ClientToken    string `json:"clientToken"`
}

type MarkReadPayload struct {
	ConversationID string `json:"conversationId"`
	UpToSeq        int64  `json:"upToSequence"`
	ClientToken    string `json:"clientToken"`
}

type SubscribePayload struct {
	ConversationID string `json:"conversationId"`
}
