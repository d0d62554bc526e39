package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToggleAddsThenRemoves(t *testing.T) {
	store := newMemStore()
	store.seedConversation("c1", ConversationDirect, "alice", "bob")
	store.appendSequenced(messageEvent("c1", "alice", "m1", "hi"))
	agg := NewReactionAggregator(store)

	ev := store.appendSequenced(reactionEvent("c1", "alice", "m1", "👍"))
	delta, err := agg.Toggle(context.Background(), &ev)
	require.NoError(t, err)
	require.Equal(t, "added", delta.Op)
	require.Equal(t, 1, delta.Count)
	require.Equal(t, "👍", delta.Emoji)
	require.Equal(t, "alice", delta.ActorID)

	ev = store.appendSequenced(reactionEvent("c1", "alice", "m1", "👍"))
	delta, err = agg.Toggle(context.Background(), &ev)
	require.NoError(t, err)
	require.Equal(t, "removed", delta.Op)
	require.Equal(t, 0, delta.Count)

	tallies, err := agg.Tallies(context.Background(), "c1", "m1")
	require.NoError(t, err)
	require.Empty(t, tallies, "toggle twice returns the tally to its prior state")
}

func TestToggleDistinctActorsAccumulate(t *testing.T) {
	store := newMemStore()
	store.seedConversation("c1", ConversationGroup, "alice", "bob", "carol")
	store.appendSequenced(messageEvent("c1", "alice", "m1", "hi"))
	agg := NewReactionAggregator(store)

	for _, actor := range []string{"alice", "bob", "carol"} {
		ev := store.appendSequenced(reactionEvent("c1", actor, "m1", "🎉"))
		delta, err := agg.Toggle(context.Background(), &ev)
		require.NoError(t, err)
		require.Equal(t, "added", delta.Op)
	}

	tallies, err := agg.Tallies(context.Background(), "c1", "m1")
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob", "carol"}, tallies["🎉"], "actor lists are sorted")
}

func TestTalliesHydratesFromLog(t *testing.T) {
	store := newMemStore()
	store.seedConversation("c1", ConversationDirect, "alice", "bob")
	store.appendSequenced(messageEvent("c1", "alice", "m1", "hi"))
	store.appendSequenced(reactionEvent("c1", "bob", "m1", "👍"))
	store.appendSequenced(reactionEvent("c1", "alice", "m1", "👍"))
	store.appendSequenced(reactionEvent("c1", "alice", "m1", "👍"))

	// A fresh aggregator sees only the persisted log.
	agg := NewReactionAggregator(store)
	tallies, err := agg.Tallies(context.Background(), "c1", "m1")
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, tallies["👍"])
}

func TestToggleRederivesOnReplayedSequence(t *testing.T) {
	store := newMemStore()
	store.seedConversation("c1", ConversationDirect, "alice", "bob")
	store.appendSequenced(messageEvent("c1", "alice", "m1", "hi"))
	addEv := store.appendSequenced(reactionEvent("c1", "bob", "m1", "👍"))
	removeEv := store.appendSequenced(reactionEvent("c1", "bob", "m1", "👍"))
	agg := NewReactionAggregator(store)

	delta, err := agg.Toggle(context.Background(), &removeEv)
	require.NoError(t, err)
	require.Equal(t, "removed", delta.Op)

	// Replaying an already-folded sequence re-derives from the canonical
	// order and reproduces the original delta.
	delta, err = agg.Toggle(context.Background(), &addEv)
	require.NoError(t, err)
	require.Equal(t, "added", delta.Op)
	require.Equal(t, 1, delta.Count)

	tallies, err := agg.Tallies(context.Background(), "c1", "m1")
	require.NoError(t, err)
	require.Empty(t, tallies, "re-derivation leaves the final tally unchanged")
}

func TestToggleRejectsNonReactionEvent(t *testing.T) {
	store := newMemStore()
	store.seedConversation("c1", ConversationDirect, "alice", "bob")
	ev := store.appendSequenced(messageEvent("c1", "alice", "m1", "hi"))
	agg := NewReactionAggregator(store)

	_, err := agg.Toggle(context.Background(), &ev)
	require.Error(t, err)
}
