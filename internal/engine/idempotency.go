package engine

import (
	"sync"
	"time"

	"github.com/quillchat/quill/pkg/wire"
)

// IdempotencyRegistry maps client-supplied operation tokens to the
// acknowledgment they produced, so a retry over either transport returns the
// original result instead of applying the operation again.
//
// Entries are retained for a bounded window; a retry arriving after eviction
// risks duplicate application. That tradeoff is accepted: the window is
// sized to cover realistic client retry timeouts.
type IdempotencyRegistry struct {
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[idemKey]idemEntry
}

type idemKey struct {
	actorID string
	token   string
}

type idemEntry struct {
	update     *wire.Update
	registered time.Time
}

// NewIdempotencyRegistry creates a registry with the given retention window.
func NewIdempotencyRegistry(retention time.Duration, now func() time.Time) *IdempotencyRegistry {
	if now == nil {
		now = time.Now
	}
	return &IdempotencyRegistry{
		retention: retention,
		now:       now,
		entries:   make(map[idemKey]idemEntry),
	}
}

// Resolve returns the previously produced acknowledgment for the token, if
// the operation was already applied within the retention window.
func (r *IdempotencyRegistry) Resolve(actorID, token string) (*wire.Update, bool) {
	if token == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[idemKey{actorID, token}]
	if !ok {
		return nil, false
	}
	if r.now().Sub(entry.registered) > r.retention {
		delete(r.entries, idemKey{actorID, token})
		return nil, false
	}
	return entry.update, true
}

// Register records the acknowledgment produced for a token. Registration
// also evicts expired entries, keeping the registry bounded without a
// background janitor.
func (r *IdempotencyRegistry) Register(actorID, token string, update *wire.Update) {
	if token == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked()
	r.entries[idemKey{actorID, token}] = idemEntry{update: update, registered: r.now()}
}

// Len returns the number of live entries.
func (r *IdempotencyRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *IdempotencyRegistry) evictLocked() {
	cutoff := r.now().Add(-r.retention)
	for k, e := range r.entries {
		if e.registered.Before(cutoff) {
			delete(r.entries, k)
		}
	}
}
