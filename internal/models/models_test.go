package models

import (
	"testing"
	"time"
)

func TestMarketPriceValidate(t *testing.T) {
	cases := []struct {
		name    string
		price   MarketPrice
		wantErr error
	}{
		{"valid", MarketPrice{YesBid: 0.4, YesAsk: 0.6}, nil},
		{"crossed", MarketPrice{YesBid: 0.7, YesAsk: 0.6}, ErrInvalidBookCrossed},
		{"bid below zero", MarketPrice{YesBid: -0.1, YesAsk: 0.5}, ErrInvalidBookBounds},
		{"ask above one", MarketPrice{YesBid: 0.5, YesAsk: 1.1}, ErrInvalidBookBounds},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := c.price.Validate(); err != c.wantErr {
				t.Fatalf("got %v, want %v", err, c.wantErr)
			}
		})
	}
}

func TestMarketPricePathological(t *testing.T) {
	p := MarketPrice{YesBid: 0, YesAsk: 1}
	if !p.IsPathological() {
		t.Fatal("expected pathological book")
	}
	p2 := MarketPrice{YesBid: 0.4, YesAsk: 0.6}
	if p2.IsPathological() {
		t.Fatal("did not expect pathological book")
	}
}

func TestMarketPriceFreshness(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := MarketPrice{Timestamp: now.Add(-29 * time.Second)}
	if !p.IsFresh(now, 30*time.Second) {
		t.Fatal("expected fresh")
	}
	stale := MarketPrice{Timestamp: now.Add(-31 * time.Second)}
	if stale.IsFresh(now, 30*time.Second) {
		t.Fatal("expected stale")
	}
}

func TestGameStateValidate(t *testing.T) {
	gs := GameState{HomeScore: 10, AwayScore: 7, Period: 3}
	if err := gs.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := GameState{HomeScore: -1, Period: 1}
	if err := bad.Validate(); err != ErrNegativeScore {
		t.Fatalf("got %v, want ErrNegativeScore", err)
	}
	badPeriod := GameState{Period: 0}
	if err := badPeriod.Validate(); err != ErrNonPositivePeriod {
		t.Fatalf("got %v, want ErrNonPositivePeriod", err)
	}
}

func TestIdempotencyKeyFor(t *testing.T) {
	got := IdempotencyKeyFor("game-1", "Lakers", DirectionBuy)
	want := "game-1:Lakers:buy"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNewTradingSignalEdgeAndExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewTradingSignal("g1", SportNBA, "Lakers", DirectionBuy, SignalModelEdgeYes, 0.74, 0.61, PlatformPaper, 0.62, 500, 0.9, now)
	if want := 13.0; s.EdgePct < want-0.001 || s.EdgePct > want+0.001 {
		t.Fatalf("edge pct = %v, want ~%v", s.EdgePct, want)
	}
	if !s.ExpiresAt.Equal(now.Add(30 * time.Second)) {
		t.Fatalf("expires_at = %v, want now+30s", s.ExpiresAt)
	}
	if s.IsExpired(now) {
		t.Fatal("should not be expired immediately")
	}
	if !s.IsExpired(now.Add(31 * time.Second)) {
		t.Fatal("should be expired after 31s")
	}
}

func TestClientOrderIDUniquePerCounter(t *testing.T) {
	a := ClientOrderID(1700000000, 1)
	b := ClientOrderID(1700000000, 2)
	if a == b {
		t.Fatal("expected distinct client order ids for distinct counters")
	}
}
