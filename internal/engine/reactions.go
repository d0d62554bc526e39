package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/quillchat/quill/pkg/wire"
)

// ReactionAggregator maintains per-message reaction tallies by folding toggle
// events in sequence order. State is hydrated lazily per conversation by a
// catch-up read of the event log and is fully rebuildable from it.
type ReactionAggregator struct {
	store Store

	mu    sync.Mutex
	convs map[string]*convReactions
}

type convReactions struct {
	mu        sync.Mutex
	hydrated  bool
	foldedSeq int64
	// tallies maps messageID -> emoji -> set of actors with the emoji active.
	tallies map[string]map[string]map[string]struct{}
}

// NewReactionAggregator creates an aggregator over the given store.
func NewReactionAggregator(store Store) *ReactionAggregator {
	return &ReactionAggregator{
		store: store,
		convs: make(map[string]*convReactions),
	}
}

func (a *ReactionAggregator) getOrCreate(conversationID string) *convReactions {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cr, ok := a.convs[conversationID]; ok {
		return cr
	}
	cr := &convReactions{tallies: make(map[string]map[string]map[string]struct{})}
	a.convs[conversationID] = cr
	return cr
}

// Toggle folds an applied ReactionToggled event into the per-message tally
// and returns the resulting delta. Events must normally arrive in increasing
// sequence order (the dispatcher calls this inside the conversation's
// serialization section); if an already-folded sequence is seen again, the
// tally is re-derived from the canonical log order.
func (a *ReactionAggregator) Toggle(ctx context.Context, ev *Event) (*wire.ReactionDelta, error) {
	if ev.Kind != EventReaction || ev.Reaction == nil {
		return nil, fmt.Errorf("toggle: not a reaction event")
	}
	cr := a.getOrCreate(ev.ConversationID)
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if err := a.hydrateLocked(ctx, cr, ev.ConversationID, ev.Seq-1); err != nil {
		return nil, err
	}
	if ev.Seq <= cr.foldedSeq {
		return a.rederiveLocked(ctx, cr, ev)
	}
	return cr.fold(ev), nil
}

// Tallies returns the current emoji -> actors tally for a message, with
// actor lists sorted for stable output.
func (a *ReactionAggregator) Tallies(ctx context.Context, conversationID, messageID string) (map[string][]string, error) {
	cr := a.getOrCreate(conversationID)
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if err := a.hydrateLocked(ctx, cr, conversationID, -1); err != nil {
		return nil, err
	}

	out := make(map[string][]string)
	for emoji, actors := range cr.tallies[messageID] {
		if len(actors) == 0 {
			continue
		}
		list := make([]string, 0, len(actors))
		for actor := range actors {
			list = append(list, actor)
		}
		sort.Strings(list)
		out[emoji] = list
	}
	return out, nil
}

// hydrateLocked folds the persisted event log into cr. A non-negative upTo
// caps folding at that sequence; -1 folds everything.
func (a *ReactionAggregator) hydrateLocked(ctx context.Context, cr *convReactions, conversationID string, upTo int64) error {
	if cr.hydrated {
		return nil
	}
	events, err := a.store.ReadEventsFrom(ctx, conversationID, 0)
	if err != nil {
		return fmt.Errorf("hydrate reactions for %s: %w", conversationID, err)
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

// rederiveLocked rebuilds the tally from the canonical log and recovers the
// delta the given event produced at its position in the order.
func (a *ReactionAggregator) rederiveLocked(ctx context.Context, cr *convReactions, ev *Event) (*wire.ReactionDelta, error) {
	events, err := a.store.ReadEventsFrom(ctx, ev.ConversationID, 0)
	if err != nil {
		return nil, fmt.Errorf("rederive reactions for %s: %w", ev.ConversationID, err)
	}
	cr.tallies = make(map[string]map[string]map[string]struct{})
	cr.foldedSeq = 0
	var delta *wire.ReactionDelta
	for i := range events {
		d := cr.fold(&events[i])
		if events[i].Seq == ev.Seq {
			delta = d
		}
	}
	if delta == nil {
		return nil, fmt.Errorf("rederive: event seq %d not in log for %s", ev.Seq, ev.ConversationID)
	}
	return delta, nil
}

// fold applies one event to the tally. Toggling adds the actor if absent and
// removes it if present; an actor appears at most once per emoji per message.
func (cr *convReactions) fold(ev *Event) *wire.ReactionDelta {
	if ev.Seq > cr.foldedSeq {
		cr.foldedSeq = ev.Seq
	}
	if ev.Kind != EventReaction || ev.Reaction == nil {
		return nil
	}

	msgID, emoji := ev.Reaction.MessageID, ev.Reaction.Emoji
	byEmoji := cr.tallies[msgID]
	if byEmoji == nil {
		byEmoji = make(map[string]map[string]struct{})
		cr.tallies[msgID] = byEmoji
	}
	actors := byEmoji[emoji]
	if actors == nil {
		actors = make(map[string]struct{})
		byEmoji[emoji] = actors
	}

	op := "added"
	if _, present := actors[ev.ActorID]; present {
		delete(actors, ev.ActorID)
		op = "removed"
	} else {
		actors[ev.ActorID] = struct{}{}
	}

	return &wire.ReactionDelta{
		MessageID: msgID,
		Emoji:     emoji,
		ActorID:   ev.ActorID,
		Op:        op,
		Count:     len(actors),
	}
}
