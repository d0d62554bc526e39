package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/quillchat/quill/internal/models"
	"github.com/quillchat/quill/pkg/types"
	"github.com/quillchat/quill/pkg/wire"
)

// SQLStore implements Store over the SQLite database.
type SQLStore struct {
	db      *sql.DB
	queries *models.Queries
}

// NewSQLStore creates a store over an open database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, queries: models.New(db)}
}

// GetConversation loads a conversation and its participants.
func (s *SQLStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row, err := s.queries.GetConversationByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	participants, err := s.queries.ListParticipants(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list participants for %s: %w", id, err)
	}
	return &Conversation{
		ID:             row.ID,
		Type:           ConversationType(row.Type),
		Participants:   participants,
		LastSeq:        row.LastSeq,
		LastActivityAt: row.LastActivityAt,
	}, nil
}

// pairKey is the canonical identity of an unordered direct participant pair.
func pairKey(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// CreateDirectConversation creates the direct conversation for an unordered
// pair, or returns the existing one. At most one instance exists per pair;
// the unique pair key index arbitrates creation races.
func (s *SQLStore) CreateDirectConversation(ctx context.Context, userA, userB string) (*Conversation, bool, error) {
	key := pairKey(userA, userB)

	if row, err := s.queries.GetConversationByPairKey(ctx, key); err == nil {
		conv, err := s.GetConversation(ctx, row.ID)
		return conv, false, err
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("lookup direct conversation: %w", err)
	}

	id := types.NewID()
	err := s.withTx(ctx, func(q *models.Queries) error {
		if err := q.CreateConversation(ctx, models.CreateConversationParams{
			ID:      id,
			Type:    string(ConversationDirect),
			PairKey: sql.NullString{String: key, Valid: true},
		}); err != nil {
			return err
		}
		if err := q.AddParticipant(ctx, id, userA); err != nil {
			return err
		}
		return q.AddParticipant(ctx, id, userB)
	})
	if err != nil {
		// A concurrent creator may have won the unique index; fall back
		// to the existing conversation.
		if row, lookupErr := s.queries.GetConversationByPairKey(ctx, key); lookupErr == nil {
			conv, convErr := s.GetConversation(ctx, row.ID)
			return conv, false, convErr
		}
		return nil, false, fmt.Errorf("create direct conversation: %w", err)
	}

	conv, err := s.GetConversation(ctx, id)
	return conv, true, err
}

// CreateGroupConversation creates a group conversation with the given
// participants.
func (s *SQLStore) CreateGroupConversation(ctx context.Context, participants []string) (*Conversation, error) {
	id := types.NewID()
	err := s.withTx(ctx, func(q *models.Queries) error {
		if err := q.CreateConversation(ctx, models.CreateConversationParams{
			ID:   id,
			Type: string(ConversationGroup),
		}); err != nil {
			return err
		}
		for _, p := range participants {
			if err := q.AddParticipant(ctx, id, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create group conversation: %w", err)
	}
	return s.GetConversation(ctx, id)
}

// GetMessage resolves a message id to its conversation and sequence.
func (s *SQLStore) GetMessage(ctx context.Context, id string) (*MessageRef, error) {
	row, err := s.queries.GetMessageByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return &MessageRef{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		Seq:            row.Seq,
		AuthorID:       row.AuthorID,
	}, nil
}

// AppendEvent persists the event, materializes message rows, and advances
// the conversation's sequence high-water mark in one transaction.
func (s *SQLStore) AppendEvent(ctx context.Context, ev *Event) error {
	payload, err := marshalEventBody(ev)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(q *models.Queries) error {
		if err := q.InsertEvent(ctx, models.InsertEventParams{
			ConversationID: ev.ConversationID,
			Seq:            ev.Seq,
			Kind:           string(ev.Kind),
			ActorID:        ev.ActorID,
			ClientToken:    ev.ClientToken,
			Payload:        payload,
			AppliedAt:      ev.AppliedAt,
		}); err != nil {
			return err
		}

		if ev.Kind == EventMessage {
			if err := q.CreateMessage(ctx, models.CreateMessageParams{
				ID:             ev.Message.MessageID,
				ConversationID: ev.ConversationID,
				Seq:            ev.Seq,
				AuthorID:       ev.ActorID,
				Content:        ev.Message.Content,
				ContentType:    ev.Message.ContentType,
				CreatedAt:      ev.AppliedAt,
			}); err != nil {
				return err
			}
		}

		affected, err := q.AdvanceConversation(ctx, models.AdvanceConversationParams{
			ID:             ev.ConversationID,
			Seq:            ev.Seq,
			LastActivityAt: ev.AppliedAt,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrSequenceConflict
		}
		return nil
	})
}

// ReadEventsFrom returns the conversation's events with sequence greater
// than sinceSeq, in sequence order.
func (s *SQLStore) ReadEventsFrom(ctx context.Context, conversationID string, sinceSeq int64) ([]Event, error) {
	rows, err := s.queries.ListEventsFrom(ctx, models.ListEventsFromParams{
		ConversationID: conversationID,
		SinceSeq:       sinceSeq,
	})
	if err != nil {
		return nil, fmt.Errorf("read events for %s: %w", conversationID, err)
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		ev := Event{
			ConversationID: row.ConversationID,
			Seq:            row.Seq,
			Kind:           EventKind(row.Kind),
			ActorID:        row.ActorID,
			ClientToken:    row.ClientToken,
			AppliedAt:      row.AppliedAt,
		}
		if err := unmarshalEventBody(&ev, row.Payload); err != nil {
			return nil, fmt.Errorf("decode event %s/%d: %w", row.ConversationID, row.Seq, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *SQLStore) withTx(ctx context.Context, fn func(q *models.Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(s.queries.WithTx(tx)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func marshalEventBody(ev *Event) (string, error) {
	var body any
	switch ev.Kind {
	case EventMessage:
		body = ev.Message
	case EventReaction:
		body = ev.Reaction
	case EventRead:
		body = ev.Read
	default:
		return "", fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	if body == nil {
		return "", fmt.Errorf("event kind %q has no body", ev.Kind)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func unmarshalEventBody(ev *Event, payload string) error {
	switch ev.Kind {
	case EventMessage:
		ev.Message = &wire.MessageBody{}
		return json.Unmarshal([]byte(payload), ev.Message)
	case EventReaction:
		ev.Reaction = &wire.ReactionBody{}
		return json.Unmarshal([]byte(payload), ev.Reaction)
	case EventRead:
		ev.Read = &wire.ReadBody{}
		return json.Unmarshal([]byte(payload), ev.Read)
	}
	return fmt.Errorf("unknown event kind %q", ev.Kind)
}
