package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/quillchat/quill/internal/metrics"
	"github.com/quillchat/quill/pkg/logger"
	"github.com/quillchat/quill/pkg/types"
	"github.com/quillchat/quill/pkg/wire"
)

// Dispatcher is the single entry point for all mutating operations and the
// single source of outbound notifications. Every mutating call runs the same
// pipeline: idempotency check, sequencing, aggregation, registration of the
// result, fan-out, and an acknowledgment identical to the broadcast payload.
type Dispatcher struct {
	store     Store
	registry  *IdempotencyRegistry
	sequencer *ConversationSequencer
	reactions *ReactionAggregator
	reads     *ReadReceiptTracker
	presence  *PresenceTracker
	hub       *Hub

	now   func() time.Time
	newID func() string
}

// Options tunes deployment parameters of the dispatcher. Zero values pick
// sensible defaults.
type Options struct {
	// IdempotencyRetention bounds how long operation tokens are remembered.
	IdempotencyRetention time.Duration
	// SubscriberQueueDepth bounds each subscriber's outbound queue.
	SubscriberQueueDepth int
	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// NewDispatcher wires the sync engine over the given store.
func NewDispatcher(store Store, opts Options) *Dispatcher {
	if opts.IdempotencyRetention <= 0 {
		opts.IdempotencyRetention = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = types.NewID
	}
	return &Dispatcher{
		store:     store,
		registry:  NewIdempotencyRegistry(opts.IdempotencyRetention, opts.Now),
		sequencer: NewConversationSequencer(store, opts.Now),
		reactions: NewReactionAggregator(store),
		reads:     NewReadReceiptTracker(store),
		presence:  NewPresenceTracker(),
		hub:       NewHub(opts.SubscriberQueueDepth),
		now:       opts.Now,
		newID:     opts.NewID,
	}
}

// Reactions exposes the reaction aggregator for read-side queries.
func (d *Dispatcher) Reactions() *ReactionAggregator { return d.reactions }

// Reads exposes the read receipt tracker for read-side queries.
func (d *Dispatcher) Reads() *ReadReceiptTracker { return d.reads }

// Presence exposes the presence tracker for read-side queries.
func (d *Dispatcher) Presence() *PresenceTracker { return d.presence }

type SendMessageArgs struct {
	ConversationID string
	ActorID        string
	Content        string
	ContentType    string
	ClientToken    string
}

// SendMessage appends a message to the conversation and fans the resulting
// update out to its subscribers. Retries carrying the same client token
// return the acknowledgment produced by the first application.
func (d *Dispatcher) SendMessage(ctx context.Context, args SendMessageArgs) (*wire.Update, error) {
	if args.ConversationID == "" || args.ActorID == "" || args.Content == "" {
		return nil, fmt.Errorf("%w: conversation, actor and content are required", ErrInvalidArgument)
	}
	if args.ContentType == "" {
		args.ContentType = "text"
	}
	if upd, ok := d.registry.Resolve(args.ActorID, args.ClientToken); ok {
		metrics.DuplicatesResolved.Inc()
		return upd, nil
	}

	var update *wire.Update
	err := d.sequencer.Section(ctx, args.ConversationID, func(conv *Conversation, apply ApplyFunc) error {
		// A concurrent duplicate may have won the section; check again
		// before consuming a sequence.
		if upd, ok := d.registry.Resolve(args.ActorID, args.ClientToken); ok {
			metrics.DuplicatesResolved.Inc()
			update = upd
			return nil
		}

		ev := &Event{
			ConversationID: args.ConversationID,
			Kind:           EventMessage,
			ActorID:        args.ActorID,
			ClientToken:    args.ClientToken,
			Message: &wire.MessageBody{
				MessageID:   d.newID(),
				Content:     args.Content,
				ContentType: args.ContentType,
			},
		}
		applied, err := apply(ev)
		if err != nil {
			return err
		}

		unread, err := d.reads.OnMessage(ctx, applied, conv.Participants)
		if err != nil {
			// The event is durable; derived counts recover on rehydration.
			logger.Warnf("[Dispatcher] unread fold failed for %s: %v", conv.ID, err)
		}

		update = &wire.Update{
			ID:             d.newID(),
			ConversationID: applied.ConversationID,
			Seq:            applied.Seq,
			Kind:           string(EventMessage),
			ActorID:        applied.ActorID,
			CreatedAt:      d.now().UnixMilli(),
			Message: &wire.MessageDelta{
				ID:          applied.Message.MessageID,
				Seq:         applied.Seq,
				AuthorID:    applied.ActorID,
				Content:     applied.Message.Content,
				ContentType: applied.Message.ContentType,
				CreatedAt:   applied.AppliedAt.UnixMilli(),
				Unread:      unread,
			},
		}
		d.registry.Register(args.ActorID, args.ClientToken, update)
		metrics.EventsApplied.WithLabelValues("message").Inc()
		d.hub.Publish(conv.ID, wire.Outbound{Type: "update", Update: update})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return update, nil
}

type ToggleReactionArgs struct {
	// ConversationID is optional; when set it must match the message's
	// conversation.
	ConversationID string
	MessageID      string
	Emoji          string
	ActorID        string
	ClientToken    string
}

// ToggleReaction toggles the actor's emoji on a message: added if absent,
// removed if present. Toggling twice returns the tally to its prior state.
func (d *Dispatcher) ToggleReaction(ctx context.Context, args ToggleReactionArgs) (*wire.Update, error) {
	if args.MessageID == "" || args.Emoji == "" || args.ActorID == "" {
		return nil, fmt.Errorf("%w: message, emoji and actor are required", ErrInvalidArgument)
	}
	if upd, ok := d.registry.Resolve(args.ActorID, args.ClientToken); ok {
		metrics.DuplicatesResolved.Inc()
		return upd, nil
	}

	msg, err := d.store.GetMessage(ctx, args.MessageID)
	if err != nil {
		return nil, err
	}
	if args.ConversationID != "" && args.ConversationID != msg.ConversationID {
		return nil, ErrMessageNotFound
	}

	var update *wire.Update
	err = d.sequencer.Section(ctx, msg.ConversationID, func(conv *Conversation, apply ApplyFunc) error {
		if upd, ok := d.registry.Resolve(args.ActorID, args.ClientToken); ok {
			metrics.DuplicatesResolved.Inc()
			update = upd
			return nil
		}

		ev := &Event{
			ConversationID: msg.ConversationID,
			Kind:           EventReaction,
			ActorID:        args.ActorID,
			ClientToken:    args.ClientToken,
			Reaction: &wire.ReactionBody{
				MessageID: args.MessageID,
				Emoji:     args.Emoji,
			},
		}
		applied, err := apply(ev)
		if err != nil {
			return err
		}

		delta, err := d.reactions.Toggle(ctx, applied)
		if err != nil {
			return err
		}

		update = &wire.Update{
			ID:             d.newID(),
			ConversationID: applied.ConversationID,
			Seq:            applied.Seq,
			Kind:           string(EventReaction),
			ActorID:        applied.ActorID,
			CreatedAt:      d.now().UnixMilli(),
			Reaction:       delta,
		}
		d.registry.Register(args.ActorID, args.ClientToken, update)
		metrics.EventsApplied.WithLabelValues("reaction").Inc()
		d.hub.Publish(conv.ID, wire.Outbound{Type: "update", Update: update})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return update, nil
}

type MarkReadArgs struct {
	ConversationID string
	ActorID        string
	UpToSeq        int64
	ClientToken    string
}

// MarkRead advances the actor's read mark through UpToSeq. A mark at or
// below the current position is a silent no-op that consumes no sequence;
// the acknowledgment then reports the unchanged state with Seq zero.
func (d *Dispatcher) MarkRead(ctx context.Context, args MarkReadArgs) (*wire.Update, error) {
	if args.ConversationID == "" || args.ActorID == "" || args.UpToSeq <= 0 {
		return nil, fmt.Errorf("%w: conversation, actor and sequence are required", ErrInvalidArgument)
	}
	if upd, ok := d.registry.Resolve(args.ActorID, args.ClientToken); ok {
		metrics.DuplicatesResolved.Inc()
		return upd, nil
	}

	var update *wire.Update
	err := d.sequencer.Section(ctx, args.ConversationID, func(conv *Conversation, apply ApplyFunc) error {
		if upd, ok := d.registry.Resolve(args.ActorID, args.ClientToken); ok {
			metrics.DuplicatesResolved.Inc()
			update = upd
			return nil
		}
		if !conv.HasParticipant(args.ActorID) {
			return ErrActorNotParticipant
		}

		upTo := args.UpToSeq
		if upTo > conv.LastSeq {
			upTo = conv.LastSeq
		}

		current, err := d.reads.Mark(ctx, conv.ID, args.ActorID)
		if err != nil {
			return err
		}
		if upTo <= current {
			unread, err := d.reads.Unread(ctx, conv.ID, args.ActorID)
			if err != nil {
				return err
			}
			update = &wire.Update{
				ID:             d.newID(),
				ConversationID: conv.ID,
				Seq:            0,
				Kind:           string(EventRead),
				ActorID:        args.ActorID,
				CreatedAt:      d.now().UnixMilli(),
				Read: &wire.ReadDelta{
					ActorID: args.ActorID,
					UpToSeq: current,
					Unread:  unread,
				},
			}
			d.registry.Register(args.ActorID, args.ClientToken, update)
			return nil
		}

		ev := &Event{
			ConversationID: conv.ID,
			Kind:           EventRead,
			ActorID:        args.ActorID,
			ClientToken:    args.ClientToken,
			Read:           &wire.ReadBody{UpToSeq: upTo},
		}
		applied, err := apply(ev)
		if err != nil {
			return err
		}

		delta, err := d.reads.MarkRead(ctx, applied)
		if err != nil {
			return err
		}

		update = &wire.Update{
			ID:             d.newID(),
			ConversationID: conv.ID,
			Seq:            applied.Seq,
			Kind:           string(EventRead),
			ActorID:        applied.ActorID,
			CreatedAt:      d.now().UnixMilli(),
			Read:           delta,
		}
		d.registry.Register(args.ActorID, args.ClientToken, update)
		metrics.EventsApplied.WithLabelValues("read").Inc()
		d.hub.Publish(conv.ID, wire.Outbound{Type: "update", Update: update})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return update, nil
}

// Register creates a subscriber for a new connection and records presence.
// The first connection for a user broadcasts an online transition.
func (d *Dispatcher) Register(connID, userID string) *Subscriber {
	sub := d.hub.Register(connID, userID)
	if d.presence.Connect(userID, connID) {
		metrics.OnlineUsers.Set(float64(d.presence.OnlineCount()))
		d.hub.Broadcast(wire.Outbound{
			Type:     "presence",
			Presence: &wire.Presence{UserID: userID, Online: true, At: d.now().UnixMilli()},
		})
	}
	return sub
}

// Unregister removes a connection. Removing the user's last connection
// broadcasts exactly one offline transition.
func (d *Dispatcher) Unregister(connID, userID string) {
	d.hub.Unregister(connID)
	if d.presence.Disconnect(userID, connID) {
		metrics.OnlineUsers.Set(float64(d.presence.OnlineCount()))
		d.hub.Broadcast(wire.Outbound{
			Type:     "presence",
			Presence: &wire.Presence{UserID: userID, Online: false, At: d.now().UnixMilli()},
		})
	}
}

// Subscribe adds the connection to a conversation's fan-out after checking
// membership, returning the conversation's current sequence high-water mark.
func (d *Dispatcher) Subscribe(ctx context.Context, connID, conversationID, userID string) (int64, error) {
	conv, err := d.sequencer.Conversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(userID) {
		return 0, ErrActorNotParticipant
	}
	if err := d.hub.Subscribe(connID, conversationID); err != nil {
		return 0, err
	}
	return conv.LastSeq, nil
}

// Unsubscribe removes the connection from a conversation's fan-out.
func (d *Dispatcher) Unsubscribe(connID, conversationID string) {
	d.hub.Unsubscribe(connID, conversationID)
}

// ConversationForUser returns the conversation if the user is a member.
func (d *Dispatcher) ConversationForUser(ctx context.Context, conversationID, userID string) (*Conversation, error) {
	conv, err := d.sequencer.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrActorNotParticipant
	}
	return conv, nil
}

// CatchUp returns the conversation's events after sinceSeq in order, for a
// reconnecting or lagging subscriber to rebuild its view.
func (d *Dispatcher) CatchUp(ctx context.Context, conversationID, userID string, sinceSeq int64) ([]wire.EventRecord, error) {
	conv, err := d.sequencer.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrActorNotParticipant
	}

	events, err := d.store.ReadEventsFrom(ctx, conversationID, sinceSeq)
	if err != nil {
		return nil, err
	}
	records := make([]wire.EventRecord, 0, len(events))
	for i := range events {
		ev := &events[i]
		records = append(records, wire.EventRecord{
			ConversationID: ev.ConversationID,
			Seq:            ev.Seq,
			Kind:           string(ev.Kind),
			ActorID:        ev.ActorID,
			AppliedAt:      ev.AppliedAt.UnixMilli(),
			Message:        ev.Message,
			Reaction:       ev.Reaction,
			Read:           ev.Read,
		})
	}
	return records, nil
}

// CreateDirectConversation creates (or returns) the canonical direct
// conversation between the actor and another user.
func (d *Dispatcher) CreateDirectConversation(ctx context.Context, actorID, otherID string) (*Conversation, bool, error) {
	if actorID == "" || otherID == "" || actorID == otherID {
		return nil, false, fmt.Errorf("%w: a direct conversation needs two distinct participants", ErrInvalidArgument)
	}
	return d.store.CreateDirectConversation(ctx, actorID, otherID)
}

// CreateGroupConversation creates a group conversation including the actor.
func (d *Dispatcher) CreateGroupConversation(ctx context.Context, actorID string, others []string) (*Conversation, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrInvalidArgument)
	}
	seen := map[string]struct{}{actorID: {}}
	participants := []string{actorID}
	for _, p := range others {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		participants = append(participants, p)
	}
	if len(participants) < 2 {
		return nil, fmt.Errorf("%w: a group conversation needs at least two participants", ErrInvalidArgument)
	}
	return d.store.CreateGroupConversation(ctx, participants)
}
