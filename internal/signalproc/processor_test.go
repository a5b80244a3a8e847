package signalproc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"sportsarb/internal/bus"
	"sportsarb/internal/config"
	"sportsarb/internal/models"
)

var errNoOutcome = errors.New("no outcome recorded")

type fakeRepo struct {
	bankroll        *models.Bankroll
	dailyLoss       int64
	gameExposure    int64
	sportExposure   int64
	opposing        bool
	sameSideOpen    bool
	openCount       int
	lastOutcome     models.Outcome
	lastOutcomeTime time.Time
	rules           []models.TradingRule
}

func (f *fakeRepo) GetBankroll(ctx context.Context) (*models.Bankroll, error) { return f.bankroll, nil }
func (f *fakeRepo) DailyLossCents(ctx context.Context) (int64, error)         { return f.dailyLoss, nil }
func (f *fakeRepo) GameExposureCents(ctx context.Context, gameID string) (int64, error) {
	return f.gameExposure, nil
}
func (f *fakeRepo) SportExposureCents(ctx context.Context, sport models.Sport) (int64, error) {
	return f.sportExposure, nil
}
func (f *fakeRepo) HasOpposingPosition(ctx context.Context, gameID, team string, side models.Side) (bool, error) {
	return f.opposing, nil
}
func (f *fakeRepo) HasSameSideOpen(ctx context.Context, gameID, team string, side models.Side) (bool, error) {
	return f.sameSideOpen, nil
}
func (f *fakeRepo) OpenPositionCountForGame(ctx context.Context, gameID string) (int, error) {
	return f.openCount, nil
}
func (f *fakeRepo) LastOutcomeFor(ctx context.Context, gameID, team string) (models.Outcome, time.Time, error) {
	if f.lastOutcomeTime.IsZero() {
		return "", time.Time{}, errNoOutcome
	}
	return f.lastOutcome, f.lastOutcomeTime, nil
}
func (f *fakeRepo) ActiveRules(ctx context.Context, now time.Time) ([]models.TradingRule, error) {
	return f.rules, nil
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		bankroll: &models.Bankroll{CurrentBalanceCents: 1_000_00},
	}
}

func testSizing() config.SizingConfig {
	return config.SizingConfig{MinEdgePct: 3.5, MaxBuyProb: 0.95, MinSellProb: 0.05, KellyFraction: 0.25, MaxPositionPct: 5.0}
}

func testRisk() config.RiskConfig {
	return config.RiskConfig{
		MaxDailyLoss: 100_000_00, MaxGameExposure: -1, MaxSportExposure: -1,
		WinCooldownSeconds: 180, LossCooldownSeconds: 300,
	}
}

func testLiquidity() config.LiquidityConfig {
	return config.LiquidityConfig{MinThreshold: 100, MaxPositionPct: 80.0}
}

func newTestSignal(now time.Time) *models.TradingSignal {
	return &models.TradingSignal{
		SignalID: "sig-1", GameID: "nfl-kc-buf", Sport: models.SportNFL, Team: "Chiefs",
		Direction: models.DirectionBuy, SignalType: models.SignalModelEdgeYes,
		ModelProb: 0.80, MarketProb: 0.55, EdgePct: 10.0,
		PlatformBuy: models.PlatformKalshi, BuyPrice: 0.50, LiquidityAvailable: 5000,
		Confidence: 0.8, CreatedAt: now, ExpiresAt: now.Add(30 * time.Second),
	}
}

func TestHandleSignalEmitsExecutionRequest(t *testing.T) {
	b := bus.New("test")
	execSub := b.Subscribe("execution.request.*")
	defer execSub.Close()

	p := New(newFakeRepo(), b, testSizing(), testRisk(), testLiquidity())

	now := time.Now()
	sig := newTestSignal(now)
	p.handleSignal(context.Background(), envelopeFor(t, sig))

	select {
	case env := <-execSub.C():
		var req models.ExecutionRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			t.Fatalf("unmarshal execution request: %v", err)
		}
		if req.GameID != sig.GameID {
			t.Errorf("GameID = %q, want %q", req.GameID, sig.GameID)
		}
		if req.Size <= 0 {
			t.Errorf("Size = %v, want > 0", req.Size)
		}
	case <-time.After(time.Second):
		t.Fatal("no execution request published")
	}
}

func TestHandleSignalRejectsBelowMinEdge(t *testing.T) {
	b := bus.New("test")
	notifSub := b.Subscribe("notification:events")
	defer notifSub.Close()

	p := New(newFakeRepo(), b, testSizing(), testRisk(), testLiquidity())

	now := time.Now()
	sig := newTestSignal(now)
	sig.EdgePct = 1.0
	p.handleSignal(context.Background(), envelopeFor(t, sig))

	select {
	case env := <-notifSub.C():
		var evt models.NotificationEvent
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			t.Fatalf("unmarshal notification: %v", err)
		}
		if evt.Reason != models.RejectEdgeBelowMin {
			t.Errorf("Reason = %q, want %q", evt.Reason, models.RejectEdgeBelowMin)
		}
	case <-time.After(time.Second):
		t.Fatal("no rejection notification published")
	}
}

func TestHandleSignalDedupsInFlightDuplicate(t *testing.T) {
	b := bus.New("test")
	execSub := b.Subscribe("execution.request.*")
	defer execSub.Close()
	notifSub := b.Subscribe("notification:events")
	defer notifSub.Close()

	p := New(newFakeRepo(), b, testSizing(), testRisk(), testLiquidity())

	now := time.Now()
	sig := newTestSignal(now)
	p.handleSignal(context.Background(), envelopeFor(t, sig))
	select {
	case <-execSub.C():
	case <-time.After(time.Second):
		t.Fatal("first signal never emitted an execution request")
	}

	p.handleSignal(context.Background(), envelopeFor(t, sig))
	select {
	case env := <-notifSub.C():
		var evt models.NotificationEvent
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			t.Fatalf("unmarshal notification: %v", err)
		}
		if evt.Reason != models.RejectAlreadyInFlight {
			t.Errorf("Reason = %q, want %q", evt.Reason, models.RejectAlreadyInFlight)
		}
	case <-time.After(time.Second):
		t.Fatal("duplicate signal was not rejected")
	}
}

type fakeMarketResolver struct {
	marketID string
	ok       bool
}

func (f *fakeMarketResolver) Resolve(gameID string, platform models.Platform) (string, bool) {
	return f.marketID, f.ok
}

func TestHandleSignalPopulatesMarketIDFromResolver(t *testing.T) {
	b := bus.New("test")
	execSub := b.Subscribe("execution.request.*")
	defer execSub.Close()

	p := New(newFakeRepo(), b, testSizing(), testRisk(), testLiquidity())
	p.SetMarketResolver(&fakeMarketResolver{marketID: "KXNFLKCBUF-24", ok: true})

	now := time.Now()
	sig := newTestSignal(now)
	p.handleSignal(context.Background(), envelopeFor(t, sig))

	select {
	case env := <-execSub.C():
		var req models.ExecutionRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			t.Fatalf("unmarshal execution request: %v", err)
		}
		if req.MarketID != "KXNFLKCBUF-24" {
			t.Errorf("MarketID = %q, want KXNFLKCBUF-24", req.MarketID)
		}
	case <-time.After(time.Second):
		t.Fatal("no execution request published")
	}
}

func TestHandleSignalRejectsWhenResolverMisses(t *testing.T) {
	b := bus.New("test")
	execSub := b.Subscribe("execution.request.*")
	defer execSub.Close()
	notifSub := b.Subscribe("notification:events")
	defer notifSub.Close()

	p := New(newFakeRepo(), b, testSizing(), testRisk(), testLiquidity())
	p.SetMarketResolver(&fakeMarketResolver{ok: false})

	now := time.Now()
	sig := newTestSignal(now)
	p.handleSignal(context.Background(), envelopeFor(t, sig))

	select {
	case env := <-notifSub.C():
		var evt models.NotificationEvent
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			t.Fatalf("unmarshal notification: %v", err)
		}
		if evt.Reason != models.RejectNoMarket {
			t.Errorf("Reason = %q, want %q", evt.Reason, models.RejectNoMarket)
		}
	case <-time.After(time.Second):
		t.Fatal("no rejection notification published")
	}

	select {
	case env := <-execSub.C():
		t.Fatalf("unexpected execution request published: %+v", env)
	default:
	}
}

func envelopeFor(t *testing.T, sig *models.TradingSignal) bus.Envelope {
	t.Helper()
	payload, err := json.Marshal(sig)
	if err != nil {
		t.Fatalf("marshal signal: %v", err)
	}
	return bus.Envelope{Topic: "signals.trade." + sig.GameID, Payload: payload}
}
