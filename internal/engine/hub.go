package engine

import (
	"fmt"
	"sync"

	"github.com/quillchat/quill/internal/metrics"
	"github.com/quillchat/quill/pkg/logger"
	"github.com/quillchat/quill/pkg/wire"
)

// Hub fans produced updates out to the live subscribers of each conversation.
//
// Every subscriber owns a bounded outbound queue; delivery into it never
// blocks. A subscriber that falls a full queue behind is dropped from the
// conversation and told to resynchronize with a catch-up read, so one slow
// consumer cannot stall delivery to the others.
type Hub struct {
	queueDepth int

	mu    sync.Mutex
	subs  map[string]*Subscriber
	convs map[string]*convSubs
}

type convSubs struct {
	mu      sync.Mutex
	members map[*Subscriber]struct{}
}

// Subscriber is one connected consumer of outbound payloads.
type Subscriber struct {
	id     string
	userID string
	out    chan wire.Outbound

	closeOnce sync.Once
}

// ID returns the subscriber's connection identifier.
func (s *Subscriber) ID() string { return s.id }

// UserID returns the authenticated user behind the subscriber.
func (s *Subscriber) UserID() string { return s.userID }

// C returns the subscriber's outbound queue. The channel is closed when the
// subscriber is unregistered.
func (s *Subscriber) C() <-chan wire.Outbound { return s.out }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.out) })
}

// NewHub creates a hub with the given per-subscriber queue depth.
func NewHub(queueDepth int) *Hub {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Hub{
		queueDepth: queueDepth,
		subs:       make(map[string]*Subscriber),
		convs:      make(map[string]*convSubs),
	}
}

// Register creates a subscriber for a connection. Registering an id that is
// already present replaces (and closes) the previous subscriber.
func (h *Hub) Register(id, userID string) *Subscriber {
	sub := &Subscriber{
		id:     id,
		userID: userID,
		out:    make(chan wire.Outbound, h.queueDepth),
	}

	h.mu.Lock()
	old := h.subs[id]
	h.subs[id] = sub
	h.mu.Unlock()

	if old != nil {
		h.removeFromAll(old)
		old.close()
	}
	metrics.LiveSubscribers.Inc()
	return sub
}

// Unregister removes a subscriber from all conversations and closes its
// queue. In-flight payloads carry no delivery guarantee.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	sub := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	if sub == nil {
		return
	}
	h.removeFromAll(sub)
	sub.close()
	metrics.LiveSubscribers.Dec()
}

// Subscribe adds the subscriber to a conversation's fan-out set.
func (h *Hub) Subscribe(id, conversationID string) error {
	h.mu.Lock()
	sub := h.subs[id]
	cs := h.convs[conversationID]
	if cs == nil {
		cs = &convSubs{members: make(map[*Subscriber]struct{})}
		h.convs[conversationID] = cs
	}
	h.mu.Unlock()

	if sub == nil {
		return fmt.Errorf("unknown subscriber %q", id)
	}
	cs.mu.Lock()
	cs.members[sub] = struct{}{}
	cs.mu.Unlock()
	return nil
}

// Unsubscribe removes the subscriber from a conversation's fan-out set.
func (h *Hub) Unsubscribe(id, conversationID string) {
	h.mu.Lock()
	sub := h.subs[id]
	cs := h.convs[conversationID]
	h.mu.Unlock()

	if sub == nil || cs == nil {
		return
	}
	cs.mu.Lock()
	delete(cs.members, sub)
	cs.mu.Unlock()
}

// Publish delivers a payload to every subscriber of the conversation.
// Callers publishing for the same conversation must already be serialized
// (the dispatcher publishes inside the conversation's sequencer section), so
// subscribers observe payloads in production order.
func (h *Hub) Publish(conversationID string, out wire.Outbound) {
	h.mu.Lock()
	cs := h.convs[conversationID]
	h.mu.Unlock()
	if cs == nil {
		return
	}

	var dropped []*Subscriber
	cs.mu.Lock()
	for sub := range cs.members {
		select {
		case sub.out <- out:
			metrics.UpdatesDelivered.Inc()
		default:
			delete(cs.members, sub)
			dropped = append(dropped, sub)
		}
	}
	cs.mu.Unlock()

	for _, sub := range dropped {
		metrics.SubscribersDropped.Inc()
		logger.Warnf("[Hub] subscriber %s lagging on %s; dropped, resync required", sub.id, conversationID)
		resync := wire.Outbound{
			Type:   "resync",
			Resync: &wire.Resync{ConversationID: conversationID, Reason: "lagging"},
		}
		// Discard the stale backlog; the subscriber must rebuild from a
		// catch-up read anyway, and the resync notice needs a queue slot.
	drain:
		for {
			select {
			case <-sub.out:
			default:
				break drain
			}
		}
		select {
		case sub.out <- resync:
		default:
			// A concurrent publisher refilled the queue; the connection
			// is beyond saving.
			h.Unregister(sub.id)
		}
	}
}

// Broadcast delivers a payload to every registered subscriber, regardless of
// conversation. Used for presence transitions. Delivery is best effort; a
// full queue skips the subscriber rather than dropping it.
func (h *Hub) Broadcast(out wire.Outbound) {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.out <- out:
			metrics.UpdatesDelivered.Inc()
		default:
		}
	}
}

func (h *Hub) removeFromAll(sub *Subscriber) {
	h.mu.Lock()
	convs := make([]*convSubs, 0, len(h.convs))
	for _, cs := range h.convs {
		convs = append(convs, cs)
	}
	h.mu.Unlock()

	for _, cs := range convs {
		cs.mu.Lock()
		delete(cs.members, sub)
		cs.mu.Unlock()
	}
}
