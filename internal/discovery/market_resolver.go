package discovery

import "sportsarb/internal/models"

// market_resolver.go - signalproc.MarketResolver backed by MarketCache
//
// Kept a thin adapter rather than folding Resolve onto MarketCache
// itself: the cache's job is staleness bookkeeping (Get/Set/Invalidate),
// the resolver's job is picking one market_id out of the (possibly
// several) candidates a game's platform leg resolved to.

// CacheResolver adapts a MarketCache into a read-only market_id lookup
// keyed by (game_id, platform). It never writes to the cache; populating
// it is the discovery loop's job.
type CacheResolver struct {
	cache *MarketCache
}

// NewCacheResolver wraps cache for use as a MarketResolver.
func NewCacheResolver(cache *MarketCache) *CacheResolver {
	return &CacheResolver{cache: cache}
}

// Resolve returns the first cached market_id for gameID on platform. A
// game with multiple matched candidates on one platform (ambiguous
// discovery) still yields a deterministic pick rather than failing the
// signal outright.
func (r *CacheResolver) Resolve(gameID string, platform models.Platform) (string, bool) {
	markets, _ := r.cache.Get(gameID)
	refs, ok := markets[platform]
	if !ok || len(refs) == 0 {
		return "", false
	}
	return refs[0].MarketID, true
}
