package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresenceFirstConnectIsTheOnlyOnlineTransition(t *testing.T) {
	tracker := NewPresenceTracker()

	require.True(t, tracker.Connect("alice", "sock-1"))
	require.False(t, tracker.Connect("alice", "sock-2"), "second connection is not a transition")
	require.True(t, tracker.Online("alice"))
	require.Equal(t, 1, tracker.OnlineCount())
}

func TestPresenceLastDisconnectIsTheOnlyOfflineTransition(t *testing.T) {
	tracker := NewPresenceTracker()
	tracker.Connect("alice", "sock-1")
	tracker.Connect("alice", "sock-2")

	require.False(t, tracker.Disconnect("alice", "sock-1"))
	require.True(t, tracker.Online("alice"))

	require.True(t, tracker.Disconnect("alice", "sock-2"))
	require.False(t, tracker.Online("alice"))
	require.Zero(t, tracker.OnlineCount())
}

func TestPresenceUnknownDisconnectIsNoop(t *testing.T) {
	tracker := NewPresenceTracker()

	require.False(t, tracker.Disconnect("alice", "sock-1"))

	tracker.Connect("alice", "sock-1")
	require.False(t, tracker.Disconnect("alice", "sock-2"), "unknown handle must not flip state")
	require.True(t, tracker.Online("alice"))
}

func TestPresenceDuplicateHandleCounts(t *testing.T) {
	tracker := NewPresenceTracker()

	require.True(t, tracker.Connect("alice", "sock-1"))
	require.False(t, tracker.Connect("alice", "sock-1"))

	require.False(t, tracker.Disconnect("alice", "sock-1"))
	require.True(t, tracker.Disconnect("alice", "sock-1"))
}
