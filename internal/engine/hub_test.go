package engine

import (
	"testing"

	"github.com/quillchat/quill/pkg/wire"
	"github.com/stretchr/testify/require"
)

func drainOne(t *testing.T, sub *Subscriber) wire.Outbound {
	t.Helper()
	select {
	case out, ok := <-sub.C():
		require.True(t, ok, "queue closed unexpectedly")
		return out
	default:
		t.Fatal("no payload queued")
		return wire.Outbound{}
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	hub := NewHub(8)
	sub := hub.Register("sock-1", "alice")
	require.NoError(t, hub.Subscribe("sock-1", "c1"))

	for _, id := range []string{"u1", "u2", "u3"} {
		hub.Publish("c1", wire.Outbound{Type: "update", Update: &wire.Update{ID: id}})
	}

	for _, id := range []string{"u1", "u2", "u3"} {
		out := drainOne(t, sub)
		require.Equal(t, "update", out.Type)
		require.Equal(t, id, out.Update.ID)
	}
}

func TestPublishSkipsOtherConversations(t *testing.T) {
	hub := NewHub(8)
	sub := hub.Register("sock-1", "alice")
	require.NoError(t, hub.Subscribe("sock-1", "c1"))

	hub.Publish("c2", wire.Outbound{Type: "update", Update: &wire.Update{ID: "u1"}})

	select {
	case <-sub.C():
		t.Fatal("subscriber received payload for a conversation it is not in")
	default:
	}
}

func TestSubscribeUnknownSubscriber(t *testing.T) {
	hub := NewHub(8)
	require.Error(t, hub.Subscribe("missing", "c1"))
}

func TestLaggingSubscriberIsDroppedWithResync(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Register("sock-1", "alice")
	require.NoError(t, hub.Subscribe("sock-1", "c1"))

	hub.Publish("c1", wire.Outbound{Type: "update", Update: &wire.Update{ID: "u1"}})
	// Queue is full; this one overflows, drops the subscriber and replaces
	// the stale backlog with a resync notice.
	hub.Publish("c1", wire.Outbound{Type: "update", Update: &wire.Update{ID: "u2"}})

	out := drainOne(t, sub)
	require.Equal(t, "resync", out.Type)
	require.Equal(t, "c1", out.Resync.ConversationID)
	require.Equal(t, "lagging", out.Resync.Reason)

	// Dropped from the conversation: later publishes do not arrive.
	hub.Publish("c1", wire.Outbound{Type: "update", Update: &wire.Update{ID: "u3"}})
	select {
	case <-sub.C():
		t.Fatal("dropped subscriber must not receive further updates")
	default:
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub(8)
	sub1 := hub.Register("sock-1", "alice")
	sub2 := hub.Register("sock-2", "bob")

	hub.Broadcast(wire.Outbound{Type: "presence", Presence: &wire.Presence{UserID: "carol", Online: true}})

	for _, sub := range []*Subscriber{sub1, sub2} {
		out := drainOne(t, sub)
		require.Equal(t, "presence", out.Type)
		require.Equal(t, "carol", out.Presence.UserID)
	}
}

func TestUnregisterClosesQueue(t *testing.T) {
	hub := NewHub(8)
	sub := hub.Register("sock-1", "alice")
	require.NoError(t, hub.Subscribe("sock-1", "c1"))

	hub.Unregister("sock-1")

	_, ok := <-sub.C()
	require.False(t, ok, "queue must be closed on unregister")

	// Publishing afterwards must not panic or deliver.
	hub.Publish("c1", wire.Outbound{Type: "update", Update: &wire.Update{ID: "u1"}})
}

func TestRegisterReplacesExistingConnection(t *testing.T) {
	hub := NewHub(8)
	old := hub.Register("sock-1", "alice")
	require.NoError(t, hub.Subscribe("sock-1", "c1"))

	fresh := hub.Register("sock-1", "alice")

	_, ok := <-old.C()
	require.False(t, ok, "replaced subscriber's queue is closed")

	require.NoError(t, hub.Subscribe("sock-1", "c1"))
	hub.Publish("c1", wire.Outbound{Type: "update", Update: &wire.Update{ID: "u1"}})
	out := drainOne(t, fresh)
	require.Equal(t, "u1", out.Update.ID)
}
