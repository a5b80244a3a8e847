package signalproc

import (
	"sync"
	"time"
)

// dedup.go - in-memory дедупликация по idempotency_key (§4.5)
//
// A signal's idempotency key is (game_id, team, direction): at most one
// ExecutionRequest may be in flight per key at a time. Entries older than
// 5 minutes are garbage-collected every 60s so a crashed/slow execution
// never permanently wedges a key.

const (
	idempotencyTTL     = 5 * time.Minute
	idempotencyGCEvery = 60 * time.Second
)

// IdempotencyTracker guards against emitting two ExecutionRequests for
// the same in-flight key.
type IdempotencyTracker struct {
	mu       sync.Mutex
	inFlight map[string]time.Time
}

func NewIdempotencyTracker() *IdempotencyTracker {
	return &IdempotencyTracker{inFlight: make(map[string]time.Time)}
}

// TryAcquire returns true and records key as in-flight if it was not
// already tracked (or had expired); returns false if key is still live.
func (t *IdempotencyTracker) TryAcquire(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ts, ok := t.inFlight[key]; ok && now.Sub(ts) < idempotencyTTL {
		return false
	}
	t.inFlight[key] = now
	return true
}

// Release removes key once its execution has completed (filled,
// rejected, or cancelled), freeing it for a future signal.
func (t *IdempotencyTracker) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, key)
}

// GC drops entries older than idempotencyTTL. Intended to run on a
// 60s ticker alongside the main processing loop.
func (t *IdempotencyTracker) GC(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, ts := range t.inFlight {
		if now.Sub(ts) > idempotencyTTL {
			delete(t.inFlight, key)
		}
	}
}
