package models

import (
	"context"
	"database/sql"
	"time"
)

type CreateConversationParams struct {
	ID      string
	Type    string
	PairKey sql.NullString
}

func (q *Queries) CreateConversation(ctx context.Context, arg CreateConversationParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO conversations (id, type, pair_key)
		VALUES (?, ?, ?)`,
		arg.ID, arg.Type, arg.PairKey,
	)
	return err
}

func (q *Queries) AddParticipant(ctx context.Context, conversationID, userID string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversation_participants (conversation_id, user_id)
		VALUES (?, ?)`,
		conversationID, userID,
	)
	return err
}

const conversationColumns = `id, type, pair_key, last_seq, last_activity_at, created_at`

func scanConversation(row *sql.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.Type, &c.PairKey, &c.LastSeq, &c.LastActivityAt, &c.CreatedAt)
	return c, err
}

func (q *Queries) GetConversationByID(ctx context.Context, id string) (Conversation, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

func (q *Queries) GetConversationByPairKey(ctx context.Context, pairKey string) (Conversation, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE pair_key = ?`, pairKey)
	return scanConversation(row)
}

type ListConversationsForUserParams struct {
	UserID string
	Limit  int64
}

func (q *Queries) ListConversationsForUser(ctx context.Context, arg ListConversationsForUserParams) ([]Conversation, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT c.id, c.type, c.pair_key, c.last_seq, c.last_activity_at, c.created_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?
		ORDER BY c.last_activity_at DESC
		LIMIT ?`,
		arg.UserID, arg.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Type, &c.PairKey, &c.LastSeq, &c.LastActivityAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (q *Queries) ListParticipants(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT user_id FROM conversation_participants
		WHERE conversation_id = ?
		ORDER BY user_id`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type InsertEventParams struct {
	ConversationID string
	Seq            int64
	Kind           string
	ActorID        string
	ClientToken    string
	Payload        string
	AppliedAt      time.Time
}

func (q *Queries) InsertEvent(ctx context.Context, arg InsertEventParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO conversation_events (conversation_id, seq, kind, actor_id, client_token, payload, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		arg.ConversationID, arg.Seq, arg.Kind, arg.ActorID, arg.ClientToken, arg.Payload, arg.AppliedAt,
	)
	return err
}

type AdvanceConversationParams struct {
	ID             string
	Seq            int64
	LastActivityAt time.Time
}

// AdvanceConversation moves the conversation's sequence high-water mark. The
// guard on last_seq keeps the advance atomic with respect to concurrent
// writers: it only succeeds for the next expected sequence.
func (q *Queries) AdvanceConversation(ctx context.Context, arg AdvanceConversationParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_seq = ?, last_activity_at = ?
		WHERE id = ? AND last_seq = ? - 1`,
		arg.Seq, arg.LastActivityAt, arg.ID, arg.Seq,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type ListEventsFromParams struct {
	ConversationID string
	SinceSeq       int64
}

func (q *Queries) ListEventsFrom(ctx context.Context, arg ListEventsFromParams) ([]ConversationEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT conversation_id, seq, kind, actor_id, client_token, payload, applied_at
		FROM conversation_events
		WHERE conversation_id = ? AND seq > ?
		ORDER BY seq ASC`,
		arg.ConversationID, arg.SinceSeq,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ConversationEvent
	for rows.Next() {
		var e ConversationEvent
		if err := rows.Scan(&e.ConversationID, &e.Seq, &e.Kind, &e.ActorID, &e.ClientToken, &e.Payload, &e.AppliedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type CreateMessageParams struct {
	ID             string
	ConversationID string
	Seq            int64
	AuthorID       string
	Content        string
	ContentType    string
	CreatedAt      time.Time
}

func (q *Queries) CreateMessage(ctx context.Context, arg CreateMessageParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, seq, author_id, content, content_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.ConversationID, arg.Seq, arg.AuthorID, arg.Content, arg.ContentType, arg.CreatedAt,
	)
	return err
}

func (q *Queries) GetMessageByID(ctx context.Context, id string) (Message, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, seq, author_id, content, content_type, created_at
		FROM messages WHERE id = ?`, id)
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.AuthorID, &m.Content, &m.ContentType, &m.CreatedAt)
	return m, err
}

type ListMessagesPageParams struct {
	ConversationID string
	Limit          int64
	Offset         int64
}

// ListMessagesPage returns a page of messages ordered by sequence descending.
// Callers reverse the page for display order.
func (q *Queries) ListMessagesPage(ctx context.Context, arg ListMessagesPageParams) ([]Message, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, conversation_id, seq, author_id, content, content_type, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?`,
		arg.ConversationID, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.AuthorID, &m.Content, &m.ContentType, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
