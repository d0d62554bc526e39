package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/quillchat/quill/pkg/wire"
)

// ReadReceiptTracker maintains, per participant per conversation, the highest
// sequence acknowledged as read, and derives unread counts from the message
// log. Like the ReactionAggregator it hydrates lazily from the event log and
// holds nothing that a replay cannot rebuild.
type ReadReceiptTracker struct {
	store Store

	mu    sync.Mutex
	convs map[string]*convReads
}

type convReads struct {
	mu        sync.Mutex
	hydrated  bool
	foldedSeq int64
	// msgs is the conversation's message index in ascending sequence order.
	msgs []msgRef
	// marks maps participant -> highest sequence acknowledged read.
	marks map[string]int64
}

type msgRef struct {
	seq    int64
	author string
}

// NewReadReceiptTracker creates a tracker over the given store.
func NewReadReceiptTracker(store Store) *ReadReceiptTracker {
	return &ReadReceiptTracker{
		store: store,
		convs: make(map[string]*convReads),
	}
}

func (t *ReadReceiptTracker) getOrCreate(conversationID string) *convReads {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cr, ok := t.convs[conversationID]; ok {
		return cr
	}
	cr := &convReads{marks: make(map[string]int64)}
	t.convs[conversationID] = cr
	return cr
}

// OnMessage folds an applied message event and returns the unread count for
// every participant after the message.
func (t *ReadReceiptTracker) OnMessage(ctx context.Context, ev *Event, participants []string) (map[string]int64, error) {
	if ev.Kind != EventMessage || ev.Message == nil {
		return nil, fmt.Errorf("on message: not a message event")
	}
	cr := t.getOrCreate(ev.ConversationID)
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if err := t.hydrateLocked(ctx, cr, ev.ConversationID, ev.Seq-1); err != nil {
		return nil, err
	}
	if ev.Seq > cr.foldedSeq {
		cr.fold(ev)
	}

	unread := make(map[string]int64, len(participants))
	for _, p := range participants {
		unread[p] = cr.unreadLocked(p)
	}
	return unread, nil
}

// MarkRead folds an applied read event and returns the actor's resulting
// read position and unread count. A mark below the current position never
// regresses it.
func (t *ReadReceiptTracker) MarkRead(ctx context.Context, ev *Event) (*wire.ReadDelta, error) {
	if ev.Kind != EventRead || ev.Read == nil {
		return nil, fmt.Errorf("mark read: not a read event")
	}
	cr := t.getOrCreate(ev.ConversationID)
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if err := t.hydrateLocked(ctx, cr, ev.ConversationID, ev.Seq-1); err != nil {
		return nil, err
	}
	if ev.Seq > cr.foldedSeq {
		cr.fold(ev)
	}

	return &wire.ReadDelta{
		ActorID: ev.ActorID,
		UpToSeq: cr.marks[ev.ActorID],
		Unread:  cr.unreadLocked(ev.ActorID),
	}, nil
}

// Mark returns the participant's current read position.
func (t *ReadReceiptTracker) Mark(ctx context.Context, conversationID, actorID string) (int64, error) {
	cr := t.getOrCreate(conversationID)
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if err := t.hydrateLocked(ctx, cr, conversationID, -1); err != nil {
		return 0, err
	}
	return cr.marks[actorID], nil
}

// Marks returns every participant's read position for the conversation.
func (t *ReadReceiptTracker) Marks(ctx context.Context, conversationID string) (map[string]int64, error) {
	cr := t.getOrCreate(conversationID)
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if err := t.hydrateLocked(ctx, cr, conversationID, -1); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(cr.marks))
	for k, v := range cr.marks {
		out[k] = v
	}
	return out, nil
}

// Unread returns the participant's current unread count: messages with a
// sequence above their read mark, excluding messages they authored.
func (t *ReadReceiptTracker) Unread(ctx context.Context, conversationID, actorID string) (int64, error) {
	cr := t.getOrCreate(conversationID)
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if err := t.hydrateLocked(ctx, cr, conversationID, -1); err != nil {
		return 0, err
	}
	return cr.unreadLocked(actorID), nil
}

func (t *ReadReceiptTracker) hydrateLocked(ctx context.Context, cr *convReads, conversationID string, upTo int64) error {
	if cr.hydrated {
		return nil
	}
	events, err := t.store.ReadEventsFrom(ctx, conversationID, 0)
	if err != nil {
		return fmt.Errorf("hydrate read state for %s: %w", conversationID, err)
	}
	for i := range events {
		if upTo >= 0 && events[i].Seq > upTo {
			break
		}
		cr.fold(&events[i])
	}
	cr.hydrated = true
	return nil
}

func (cr *convReads) fold(ev *Event) {
	if ev.Seq > cr.foldedSeq {
		cr.foldedSeq = ev.Seq
	}
	switch ev.Kind {
	case EventMessage:
		cr.msgs = append(cr.msgs, msgRef{seq: ev.Seq, author: ev.ActorID})
	case EventRead:
		if ev.Read != nil && ev.Read.UpToSeq > cr.marks[ev.ActorID] {
			cr.marks[ev.ActorID] = ev.Read.UpToSeq
		}
	}
}

// unreadLocked counts messages above the participant's read mark that they
// did not author. The scan is bounded by the unread tail, not full history.
func (cr *convReads) unreadLocked(actorID string) int64 {
	mark := cr.marks[actorID]
	start := sort.Search(len(cr.msgs), func(i int) bool {
		return cr.msgs[i].seq > mark
	})
	var n int64
	for _, m := range cr.msgs[start:] {
		if m.author != actorID {
			n++
		}
	}
	return n
}
