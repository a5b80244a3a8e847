package shard

import (
	"context"
	"testing"
	"time"

	"sportsarb/internal/bus"
	"sportsarb/internal/config"
	"sportsarb/internal/models"
)

type fakeProvider struct {
	state *models.GameState
	err   error
}

func (f *fakeProvider) Fetch(ctx context.Context, gameID string) (*models.GameState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.state, nil
}

func testFreshness() config.FreshnessConfig {
	return config.FreshnessConfig{PriceStalenessTTL: 30 * time.Second, GameStateStalenessTTL: 30 * time.Second}
}

func testPolling() config.PollingConfig {
	return config.PollingConfig{PollInterval: 10 * time.Millisecond, SignalDebounceSecs: 30}
}

func newTestGame() models.Game {
	return models.Game{GameID: "nfl-kc-buf", Sport: models.SportNFL, HomeTeam: "Chiefs", AwayTeam: "Bills", State: models.GameStateInProgress}
}

func TestMonitorTickPublishesGameState(t *testing.T) {
	b := bus.New("test")
	sub := b.Subscribe("games.*.*")
	defer sub.Close()

	provider := &fakeProvider{state: &models.GameState{GameID: "nfl-kc-buf", HomeScore: 7, AwayScore: 0, Period: 1, ClockSeconds: 800, FetchedAt: time.Now()}}
	mon := NewMonitor(newTestGame(), provider, b, testFreshness(), testPolling())

	mon.tick(context.Background())

	select {
	case env := <-sub.C():
		if env.Topic != "games.nfl.nfl-kc-buf" {
			t.Errorf("unexpected topic %s", env.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a game-state publish")
	}
}

func TestMonitorEmitsSignalOnEdge(t *testing.T) {
	b := bus.New("test")
	sigSub := b.Subscribe("signals.trade.*")
	defer sigSub.Close()

	provider := &fakeProvider{state: &models.GameState{GameID: "nfl-kc-buf", HomeScore: 21, AwayScore: 0, Period: 3, ClockSeconds: 200, FetchedAt: time.Now()}}
	mon := NewMonitor(newTestGame(), provider, b, testFreshness(), testPolling())

	// Market still pricing the home team near a coinflip: a big edge.
	mon.homeCell.Set(0.48, 0.52, 500, 500, time.Now())
	mon.awayCell.Set(0.46, 0.50, 500, 500, time.Now())

	mon.tick(context.Background())

	select {
	case env := <-sigSub.C():
		var sig models.TradingSignal
		if err := unmarshalPayload(env.Payload, &sig); err != nil {
			t.Fatalf("failed to decode signal: %v", err)
		}
		if sig.Team != "Chiefs" {
			t.Errorf("expected the blown-out leader's team to get the signal, got %s", sig.Team)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a trading signal to be emitted")
	}
	if mon.State() != StateEmitting {
		t.Errorf("expected state emitting, got %s", mon.State())
	}
}

func TestMonitorDebouncesRepeatSignal(t *testing.T) {
	b := bus.New("test")
	sigSub := b.Subscribe("signals.trade.*")
	defer sigSub.Close()

	provider := &fakeProvider{state: &models.GameState{GameID: "nfl-kc-buf", HomeScore: 21, AwayScore: 0, Period: 3, ClockSeconds: 200, FetchedAt: time.Now()}}
	mon := NewMonitor(newTestGame(), provider, b, testFreshness(), testPolling())
	mon.homeCell.Set(0.48, 0.52, 500, 500, time.Now())
	mon.awayCell.Set(0.46, 0.50, 500, 500, time.Now())

	mon.tick(context.Background())
	<-sigSub.C() // drain first signal

	mon.tick(context.Background())
	select {
	case <-sigSub.C():
		t.Fatal("expected second signal to be debounced")
	case <-time.After(100 * time.Millisecond):
	}
	if mon.State() != StateDebounced {
		t.Errorf("expected state debounced, got %s", mon.State())
	}
}

func TestMonitorSkipsStaleGameState(t *testing.T) {
	b := bus.New("test")
	sigSub := b.Subscribe("signals.trade.*")
	defer sigSub.Close()

	provider := &fakeProvider{state: &models.GameState{GameID: "nfl-kc-buf", HomeScore: 21, AwayScore: 0, Period: 3, ClockSeconds: 200, FetchedAt: time.Now().Add(-time.Minute)}}
	mon := NewMonitor(newTestGame(), provider, b, testFreshness(), testPolling())
	mon.homeCell.Set(0.48, 0.52, 500, 500, time.Now())
	mon.awayCell.Set(0.46, 0.50, 500, 500, time.Now())

	mon.tick(context.Background())
	select {
	case <-sigSub.C():
		t.Fatal("expected a stale snapshot to suppress signal emission")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMonitorEmitsArbitrageSignal(t *testing.T) {
	b := bus.New("test")
	sigSub := b.Subscribe("signals.trade.*")
	defer sigSub.Close()

	provider := &fakeProvider{state: &models.GameState{GameID: "nfl-kc-buf", HomeScore: 7, AwayScore: 7, Period: 1, ClockSeconds: 800, FetchedAt: time.Now()}}
	mon := NewMonitor(newTestGame(), provider, b, testFreshness(), testPolling())

	// home yes_ask(0.40) + (1 - away yes_bid(0.65)) = 0.75, well under 1.0-fee.
	mon.homeCell.Set(0.38, 0.40, 500, 500, time.Now())
	mon.awayCell.Set(0.65, 0.68, 500, 500, time.Now())

	mon.tick(context.Background())

	foundArbitrage := false
	for i := 0; i < 2; i++ {
		select {
		case env := <-sigSub.C():
			var sig models.TradingSignal
			if err := unmarshalPayload(env.Payload, &sig); err != nil {
				t.Fatalf("failed to decode signal: %v", err)
			}
			if sig.SignalType == models.SignalArbitrage {
				foundArbitrage = true
			}
		case <-time.After(time.Second):
		}
	}
	if !foundArbitrage {
		t.Fatal("expected an arbitrage signal alongside the model-edge signal")
	}
}

func TestMonitorRecordsBreakerFailureOnFetchError(t *testing.T) {
	b := bus.New("test")
	provider := &fakeProvider{err: context.DeadlineExceeded}
	mon := NewMonitor(newTestGame(), provider, b, testFreshness(), testPolling())

	for i := 0; i < 5; i++ {
		mon.tick(context.Background())
	}
	if mon.breaker.Allow() {
		t.Fatal("expected breaker to open after repeated provider failures")
	}
}
