package tracker

import (
	"strings"
	"sync"
	"time"

	"sportsarb/internal/models"
)

// pricebook.go - кэш последней котировки по (platform, team) (§5)
//
// Grounded on internal/shard's PriceCell, but simplified to a plain
// mutex-protected map per §5's "in-process maps: each protected by a
// fine-grained mutex held only for the critical section" — the
// position count the tracker watches at any moment is small enough
// (open positions, not every live market) that a lock-free cell per
// key buys nothing a map+mutex doesn't already give.
type quote struct {
	yesBid, yesAsk float64
	timestamp      time.Time
}

// Pricebook tracks the freshest top-of-book quote per (platform, team),
// fed from the bus's prices.* topics.
type Pricebook struct {
	mu     sync.RWMutex
	quotes map[string]quote
}

// NewPricebook constructs an empty Pricebook.
func NewPricebook() *Pricebook {
	return &Pricebook{quotes: make(map[string]quote)}
}

func bookKey(platform models.Platform, team string) string {
	return string(platform) + ":" + strings.ToLower(team)
}

// Set records a new quote for (platform, team).
func (b *Pricebook) Set(platform models.Platform, team string, yesBid, yesAsk float64, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[bookKey(platform, team)] = quote{yesBid: yesBid, yesAsk: yesAsk, timestamp: ts}
}

// Get returns the freshest quote for (platform, team) and whether one has
// ever been recorded.
func (b *Pricebook) Get(platform models.Platform, team string) (yesBid, yesAsk float64, ts time.Time, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, found := b.quotes[bookKey(platform, team)]
	if !found {
		return 0, 0, time.Time{}, false
	}
	return q.yesBid, q.yesAsk, q.timestamp, true
}
