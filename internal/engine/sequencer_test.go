package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Unix(1700000000, 0)
}

func TestSectionAssignsGaplessSequences(t *testing.T) {
	store := newMemStore()
	store.seedConversation("c1", ConversationDirect, "alice", "bob")
	seq := NewConversationSequencer(store, fixedNow)

	for i := 1; i <= 3; i++ {
		err := seq.Section(context.Background(), "c1", func(conv *Conversation, apply ApplyFunc) error {
			ev := messageEvent("c1", "alice", store.genID(), "hello")
			applied, err := apply(&ev)
			require.NoError(t, err)
			require.Equal(t, int64(i), applied.Seq)
			require.Equal(t, fixedNow(), applied.AppliedAt)
			return nil
		})
		require.NoError(t, err)
	}

	events, err := store.ReadEventsFrom(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		require.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestSectionUnknownConversation(t *testing.T) {
	seq := NewConversationSequencer(newMemStore(), fixedNow)

	err := seq.Section(context.Background(), "missing", func(conv *Conversation, apply ApplyFunc) error {
		t.Fatal("section body should not run")
		return nil
	})
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestApplyRejectsNonParticipant(t *testing.T) {
	store := newMemStore()
	store.seedConversation("c1", ConversationDirect, "alice", "bob")
	seq := NewConversationSequencer(store, fixedNow)

	err := seq.Section(context.Background(), "c1", func(conv *Conversation, apply ApplyFunc) error {
		ev := messageEvent("c1", "mallory", "m1", "hi")
		_, err := apply(&ev)
		return err
	})
	require.ErrorIs(t, err, ErrActorNotParticipant)

	events, err := store.ReadEventsFrom(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestSequencesIndependentAcrossConversations(t *testing.T) {
	store := newMemStore()
	store.seedConversation("c1", ConversationDirect, "alice", "bob")
	store.seedConversation("c2", ConversationDirect, "alice", "carol")
	seq := NewConversationSequencer(store, fixedNow)

	for _, convID := range []string{"c1", "c2"} {
		err := seq.Section(context.Background(), convID, func(conv *Conversation, apply ApplyFunc) error {
			ev := messageEvent(convID, "alice", store.genID(), "hi")
			applied, err := apply(&ev)
			require.NoError(t, err)
			require.Equal(t, int64(1), applied.Seq)
			return nil
		})
		require.NoError(t, err)
	}
}

func TestConcurrentSectionsStayGapless(t *testing.T) {
	store := newMemStore()
	store.seedConversation("c1", ConversationGroup, "alice", "bob", "carol")
	seq := NewConversationSequencer(store, time.Now)

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		actor := []string{"alice", "bob", "carol"}[w%3]
		go func(actor string) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := seq.Section(context.Background(), "c1", func(conv *Conversation, apply ApplyFunc) error {
					ev := messageEvent("c1", actor, store.genID(), "x")
					_, err := apply(&ev)
					return err
				})
				require.NoError(t, err)
			}
		}(actor)
	}
	wg.Wait()

	events, err := store.ReadEventsFrom(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Len(t, events, writers*perWriter)
	for i, ev := range events {
		require.Equal(t, int64(i+1), ev.Seq, "sequence must be gapless and strictly increasing")
	}
}

func TestFailedAppendLeavesSequenceUnconsumed(t *testing.T) {
	store := newMemStore()
	store.seedConversation("c1", ConversationDirect, "alice", "bob")
	seq := NewConversationSequencer(store, fixedNow)

	store.appendErr = context.DeadlineExceeded
	err := seq.Section(context.Background(), "c1", func(conv *Conversation, apply ApplyFunc) error {
		ev := messageEvent("c1", "alice", "m1", "hi")
		_, err := apply(&ev)
		require.Error(t, err)
		require.Zero(t, ev.Seq)
		return err
	})
	require.Error(t, err)

	store.appendErr = nil
	err = seq.Section(context.Background(), "c1", func(conv *Conversation, apply ApplyFunc) error {
		ev := messageEvent("c1", "alice", "m2", "hi again")
		applied, err := apply(&ev)
		require.NoError(t, err)
		require.Equal(t, int64(1), applied.Seq)
		return nil
	})
	require.NoError(t, err)
}

func TestForgetReloadsFromStore(t *testing.T) {
	store := newMemStore()
	store.seedConversation("c1", ConversationDirect, "alice", "bob")
	seq := NewConversationSequencer(store, fixedNow)

	conv, err := seq.Conversation(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, int64(0), conv.LastSeq)

	// Advance the store behind the sequencer's back, then Forget.
	store.appendSequenced(messageEvent("c1", "alice", "m1", "hi"))
	seq.Forget("c1")

	conv, err = seq.Conversation(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, int64(1), conv.LastSeq)
}
