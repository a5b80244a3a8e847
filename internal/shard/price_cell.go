package shard

import (
	"math"
	"sync/atomic"
	"time"
)

// price_cell.go - lock-free ячейка цены на контракт (§5)
//
// Adapted from internal/bot/engine.go's PairState: atomic.Uint64 +
// math.Float64bits/Float64frombits for lock-free float reads on the hot
// path, generalized from per-pair trading parameters (entry/exit spread,
// stop loss) to per-market bid/ask/size/timestamp. A monitor holds one
// PriceCell per team, written by whichever venue quoted last; the price
// listener writes it from
// the bus subscriber goroutine, the poll loop reads it without blocking.
type PriceCell struct {
	bidBits   uint64 // atomic: yes_bid bits
	askBits   uint64 // atomic: yes_ask bits
	bidSzBits uint64 // atomic: yes_bid_size bits
	askSzBits uint64 // atomic: yes_ask_size bits
	tsUnixMS  int64  // atomic: timestamp in unix milliseconds, 0 = never written
}

// Set atomically stores a full quote snapshot.
func (c *PriceCell) Set(bid, ask, bidSz, askSz float64, ts time.Time) {
	atomic.StoreUint64(&c.bidBits, math.Float64bits(bid))
	atomic.StoreUint64(&c.askBits, math.Float64bits(ask))
	atomic.StoreUint64(&c.bidSzBits, math.Float64bits(bidSz))
	atomic.StoreUint64(&c.askSzBits, math.Float64bits(askSz))
	atomic.StoreInt64(&c.tsUnixMS, ts.UnixMilli())
}

// Quote is a point-in-time read of a PriceCell; fields are read
// individually and atomically, so a torn read across fields is possible
// under concurrent Set (acceptable: the next tick supersedes it, same
// as the bus's best-effort delivery).
type Quote struct {
	YesBid, YesAsk, YesBidSize, YesAskSize float64
	Timestamp                              time.Time
	Written                                bool
}

// Get returns the latest snapshot. Written is false if Set was never called.
func (c *PriceCell) Get() Quote {
	ts := atomic.LoadInt64(&c.tsUnixMS)
	return Quote{
		YesBid:     math.Float64frombits(atomic.LoadUint64(&c.bidBits)),
		YesAsk:     math.Float64frombits(atomic.LoadUint64(&c.askBits)),
		YesBidSize: math.Float64frombits(atomic.LoadUint64(&c.bidSzBits)),
		YesAskSize: math.Float64frombits(atomic.LoadUint64(&c.askSzBits)),
		Timestamp:  time.UnixMilli(ts),
		Written:    ts != 0,
	}
}

// IsStale reports whether the quote is older than ttl or was never written.
func (q Quote) IsStale(now time.Time, ttl time.Duration) bool {
	if !q.Written {
		return true
	}
	return now.Sub(q.Timestamp) >= ttl
}

// IsPathological mirrors models.MarketPrice.IsPathological: bid=0 and
// ask=1 is treated as "no liquidity" rather than a real two-sided book.
func (q Quote) IsPathological() bool {
	return q.YesBid == 0 && q.YesAsk == 1
}

// Mid returns the midpoint of the two-sided book.
func (q Quote) Mid() float64 {
	return (q.YesBid + q.YesAsk) / 2
}
