package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ApplyFunc assigns the next sequence to a candidate event and persists it.
// It is only valid inside the Section callback it was handed to.
type ApplyFunc func(ev *Event) (*Event, error)

// ConversationSequencer serializes all writers to a single conversation so
// that sequence assignment and persistence are effectively atomic. Events for
// different conversations proceed fully in parallel.
type ConversationSequencer struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	convs map[string]*convSequence
}

type convSequence struct {
	mu      sync.Mutex
	loaded  bool
	conv    *Conversation
	lastSeq int64
}

// NewConversationSequencer creates a sequencer over the given store.
func NewConversationSequencer(store Store, now func() time.Time) *ConversationSequencer {
	if now == nil {
		now = time.Now
	}
	return &ConversationSequencer{
		store: store,
		now:   now,
		convs: make(map[string]*convSequence),
	}
}

func (s *ConversationSequencer) getOrCreate(conversationID string) *convSequence {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.convs[conversationID]; ok {
		return cs
	}
	cs := &convSequence{}
	s.convs[conversationID] = cs
	return cs
}

// Section runs fn while holding the conversation's serialization right. At
// most one Section per conversation executes at any instant; fn receives the
// conversation's current state and an apply function that assigns the next
// sequence and persists the event.
//
// Returns ErrConversationNotFound if the conversation does not exist.
func (s *ConversationSequencer) Section(ctx context.Context, conversationID string, fn func(conv *Conversation, apply ApplyFunc) error) error {
	cs := s.getOrCreate(conversationID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.loaded {
		conv, err := s.store.GetConversation(ctx, conversationID)
		if err != nil {
			return err
		}
		cs.conv = conv
		cs.lastSeq = conv.LastSeq
		cs.loaded = true
	}

	apply := func(ev *Event) (*Event, error) {
		if ev.ConversationID != conversationID {
			return nil, fmt.Errorf("event conversation %q does not match section %q", ev.ConversationID, conversationID)
		}
		if !cs.conv.HasParticipant(ev.ActorID) {
			return nil, ErrActorNotParticipant
		}
		ev.Seq = cs.lastSeq + 1
		ev.AppliedAt = s.now()
		if err := s.store.AppendEvent(ctx, ev); err != nil {
			ev.Seq = 0
			return nil, fmt.Errorf("persist event for conversation %s: %w", conversationID, err)
		}
		cs.lastSeq = ev.Seq
		cs.conv.LastSeq = ev.Seq
		cs.conv.LastActivityAt = ev.AppliedAt
		return ev, nil
	}

	return fn(cs.conv, apply)
}

// Conversation returns the sequencer's view of a conversation, loading it on
// first access. The returned value must not be mutated by the caller.
func (s *ConversationSequencer) Conversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var out *Conversation
	err := s.Section(ctx, conversationID, func(conv *Conversation, _ ApplyFunc) error {
		c := *conv
		c.Participants = append([]string(nil), conv.Participants...)
		out = &c
		return nil
	})
	return out, err
}

// Forget drops the cached state for a conversation. Subsequent sections
// reload from the store.
func (s *ConversationSequencer) Forget(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, conversationID)
}
