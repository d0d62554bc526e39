package engine

import "sync"

// PresenceTracker maintains online/offline state per user across
// possibly-multiple concurrent connections. A user is online while they have
// at least one active connection handle; only the first connect and the last
// disconnect are transitions.
type PresenceTracker struct {
	mu    sync.Mutex
	conns map[string]map[string]int // userID -> handle -> count
}

// NewPresenceTracker creates an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{conns: make(map[string]map[string]int)}
}

// Connect records a connection handle for the user and reports whether the
// user just came online.
func (t *PresenceTracker) Connect(userID, handle string) (cameOnline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	handles := t.conns[userID]
	if handles == nil {
		handles = make(map[string]int)
		t.conns[userID] = handles
	}
	cameOnline = len(handles) == 0
	handles[handle]++
	return cameOnline
}

// Disconnect removes a connection handle and reports whether the user just
// went offline. Disconnecting an unknown handle is a no-op.
func (t *PresenceTracker) Disconnect(userID, handle string) (wentOffline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	handles := t.conns[userID]
	if handles == nil {
		return false
	}
	count, ok := handles[handle]
	if !ok {
		return false
	}
	if count <= 1 {
		delete(handles, handle)
	} else {
		handles[handle] = count - 1
	}
	if len(handles) == 0 {
		delete(t.conns, userID)
		return true
	}
	return false
}

// Online reports whether the user has at least one active connection.
func (t *PresenceTracker) Online(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns[userID]) > 0
}

// OnlineCount returns the number of users currently online.
func (t *PresenceTracker) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}
