package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quillchat/quill/pkg/wire"
)

// memStore is an in-memory Store with the same atomicity contract as the SQL
// implementation: AppendEvent persists the event and advances the
// conversation's high-water mark as one step, rejecting sequence conflicts.
type memStore struct {
	mu     sync.Mutex
	nextID int
	convs  map[string]*Conversation
	events map[string][]Event
	msgs   map[string]*MessageRef

	appendErr error
}

func newMemStore() *memStore {
	return &memStore{
		convs:  make(map[string]*Conversation),
		events: make(map[string][]Event),
		msgs:   make(map[string]*MessageRef),
	}
}

func (m *memStore) genID() string {
	m.nextID++
	return fmt.Sprintf("id-%d", m.nextID)
}

func copyConv(c *Conversation) *Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	return &out
}

func (m *memStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return copyConv(conv), nil
}

func (m *memStore) CreateDirectConversation(ctx context.Context, userA, userB string) (*Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pair := []string{userA, userB}
	sort.Strings(pair)
	key := strings.Join(pair, ":")
	for _, conv := range m.convs {
		if conv.Type == ConversationDirect {
			existing := append([]string(nil), conv.Participants...)
			sort.Strings(existing)
			if strings.Join(existing, ":") == key {
				return copyConv(conv), false, nil
			}
		}
	}
	conv := &Conversation{
		ID:           m.genID(),
		Type:         ConversationDirect,
		Participants: []string{userA, userB},
	}
	m.convs[conv.ID] = conv
	return copyConv(conv), true, nil
}

func (m *memStore) CreateGroupConversation(ctx context.Context, participants []string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := &Conversation{
		ID:           m.genID(),
		Type:         ConversationGroup,
		Participants: append([]string(nil), participants...),
	}
	m.convs[conv.ID] = conv
	return copyConv(conv), nil
}

func (m *memStore) GetMessage(ctx context.Context, id string) (*MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	out := *msg
	return &out, nil
}

func (m *memStore) AppendEvent(ctx context.Context, ev *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	conv, ok := m.convs[ev.ConversationID]
	if !ok {
		return ErrConversationNotFound
	}
	if ev.Seq != conv.LastSeq+1 {
		return ErrSequenceConflict
	}
	m.events[ev.ConversationID] = append(m.events[ev.ConversationID], *ev)
	if ev.Kind == EventMessage && ev.Message != nil {
		m.msgs[ev.Message.MessageID] = &MessageRef{
			ID:             ev.Message.MessageID,
			ConversationID: ev.ConversationID,
			Seq:            ev.Seq,
			AuthorID:       ev.ActorID,
		}
	}
	conv.LastSeq = ev.Seq
	conv.LastActivityAt = ev.AppliedAt
	return nil
}

func (m *memStore) ReadEventsFrom(ctx context.Context, conversationID string, sinceSeq int64) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events[conversationID] {
		if ev.Seq > sinceSeq {
			out = append(out, ev)
		}
	}
	return out, nil
}

// seedConversation adds a conversation with a fixed id directly to the store.
func (m *memStore) seedConversation(id string, typ ConversationType, participants ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[id] = &Conversation{
		ID:           id,
		Type:         typ,
		Participants: append([]string(nil), participants...),
	}
}

// appendSequenced assigns the next sequence and appends, bypassing the
// sequencer. For tests that build a log by hand.
func (m *memStore) appendSequenced(ev Event) Event {
	m.mu.Lock()
	conv := m.convs[ev.ConversationID]
	ev.Seq = conv.LastSeq + 1
	if ev.AppliedAt.IsZero() {
		ev.AppliedAt = time.Unix(1700000000, 0).Add(time.Duration(ev.Seq) * time.Second)
	}
	m.mu.Unlock()

	if err := m.AppendEvent(context.Background(), &ev); err != nil {
		panic(err)
	}
	return ev
}

func messageEvent(convID, actorID, msgID, content string) Event {
	return Event{
		ConversationID: convID,
		Kind:           EventMessage,
		ActorID:        actorID,
		Message:        &wire.MessageBody{MessageID: msgID, Content: content, ContentType: "text"},
	}
}

func reactionEvent(convID, actorID, msgID, emoji string) Event {
	return Event{
		ConversationID: convID,
		Kind:           EventReaction,
		ActorID:        actorID,
		Reaction:       &wire.ReactionBody{MessageID: msgID, Emoji: emoji},
	}
}

func readEvent(convID, actorID string, upTo int64) Event {
	return Event{
		ConversationID: convID,
		Kind:           EventRead,
		ActorID:        actorID,
		Read:           &wire.ReadBody{UpToSeq: upTo},
	}
}
