package tracker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"sportsarb/internal/bus"
	"sportsarb/internal/config"
	"sportsarb/internal/execution"
	"sportsarb/internal/models"
	"sportsarb/internal/venue"
)

type fakeRepo struct {
	mu        sync.Mutex
	bankroll  models.Bankroll
	positions map[string]*models.OpenPosition
	closed    []*models.OpenPosition
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		bankroll:  models.Bankroll{CurrentBalanceCents: 100_000, Version: 1},
		positions: make(map[string]*models.OpenPosition),
	}
}

func (f *fakeRepo) GetBankroll(ctx context.Context) (*models.Bankroll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.bankroll
	return &b, nil
}

func (f *fakeRepo) UpdateBankrollCAS(ctx context.Context, expectedVersion int64, next models.Bankroll) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bankroll.Version != expectedVersion {
		return models.ErrVersionConflict
	}
	next.Version = expectedVersion + 1
	f.bankroll = next
	return nil
}

func (f *fakeRepo) InsertPosition(ctx context.Context, p *models.OpenPosition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.positions[p.TradeID] = &cp
	return nil
}

func (f *fakeRepo) ClosePosition(ctx context.Context, p *models.OpenPosition, settled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.positions, p.TradeID)
	cp := *p
	f.closed = append(f.closed, &cp)
	return nil
}

func (f *fakeRepo) OpenPositions(ctx context.Context) ([]*models.OpenPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.OpenPosition
	for _, p := range f.positions {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRepo) OpenPositionsForGame(ctx context.Context, gameID string) ([]*models.OpenPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.OpenPosition
	for _, p := range f.positions {
		if p.GameID == gameID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) OrphanPositions(ctx context.Context, olderThan time.Duration) ([]*models.OpenPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.OpenPosition
	cutoff := time.Now().Add(-olderThan)
	for _, p := range f.positions {
		if p.EntryTime.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

func testEngine() *execution.Engine {
	venues := map[models.Platform]venue.Venue{
		models.PlatformPaper: venue.NewPaperClient(nil),
	}
	return execution.NewEngine(venues, &config.Config{Mode: config.ModeConfig{PaperTrading: true}})
}

func TestHandleExecutionResultInsertsPosition(t *testing.T) {
	b := bus.New("test")
	repo := newFakeRepo()
	tr := New(repo, b, testEngine(), config.FreshnessConfig{PriceStalenessTTL: 30 * time.Second}, testPolling())

	req := models.ExecutionRequest{
		RequestID: "req-1", GameID: "nfl-kc-buf", Sport: models.SportNFL, Team: "Chiefs",
		Platform: models.PlatformPaper, MarketID: "m1", Side: models.SideYes, Size: 10.0,
	}
	payload, _ := json.Marshal(req)
	tr.rememberRequest(bus.Envelope{Topic: "execution.request.req-1", Payload: payload})

	result := models.ExecutionResult{RequestID: "req-1", Status: models.ExecutionFilled, FilledQty: 10, AvgPrice: 0.52, EntryFeesCents: 7}
	resPayload, _ := json.Marshal(result)
	tr.handleExecutionResult(context.Background(), bus.Envelope{Topic: "execution.result.req-1", Payload: resPayload})

	positions, err := repo.OpenPositions(context.Background())
	if err != nil {
		t.Fatalf("OpenPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("len(positions) = %d, want 1", len(positions))
	}
	p := positions[0]
	if p.EntryPriceCents != 52 {
		t.Errorf("EntryPriceCents = %d, want 52", p.EntryPriceCents)
	}
	if p.SizeCents != 1000 {
		t.Errorf("SizeCents = %d, want 1000", p.SizeCents)
	}
}

func TestHandleExecutionResultIgnoresDuplicateFill(t *testing.T) {
	b := bus.New("test")
	repo := newFakeRepo()
	tr := New(repo, b, testEngine(), config.FreshnessConfig{PriceStalenessTTL: 30 * time.Second}, testPolling())

	req := models.ExecutionRequest{RequestID: "req-1", GameID: "g1", Platform: models.PlatformPaper, Side: models.SideYes, Size: 10}
	payload, _ := json.Marshal(req)

	result := models.ExecutionResult{RequestID: "req-1", Status: models.ExecutionFilled, FilledQty: 10, AvgPrice: 0.5}
	resPayload, _ := json.Marshal(result)

	tr.rememberRequest(bus.Envelope{Topic: "execution.request.req-1", Payload: payload})
	tr.handleExecutionResult(context.Background(), bus.Envelope{Topic: "execution.result.req-1", Payload: resPayload})
	// A second delivery of the same result (at-least-once bus semantics)
	// must not double-insert -- rememberRequest's entry is already gone.
	tr.handleExecutionResult(context.Background(), bus.Envelope{Topic: "execution.result.req-1", Payload: resPayload})

	positions, _ := repo.OpenPositions(context.Background())
	if len(positions) != 1 {
		t.Fatalf("len(positions) = %d, want 1", len(positions))
	}
}

func TestCheckExitsClosesOnTakeProfit(t *testing.T) {
	b := bus.New("test")
	repo := newFakeRepo()
	polling := testPolling()
	polling.ExitCheckInterval = time.Second
	tr := New(repo, b, testEngine(), config.FreshnessConfig{PriceStalenessTTL: 30 * time.Second}, polling)

	entryTime := time.Now().Add(-time.Minute)
	repo.positions["t1"] = &models.OpenPosition{
		TradeID: "t1", GameID: "g1", Sport: models.SportNFL, Team: "Chiefs",
		Side: models.SideYes, Platform: models.PlatformPaper, MarketID: "m1",
		EntryPriceCents: 50, SizeCents: 1000, EntryTime: entryTime, Status: models.PositionOpen,
	}
	tr.book.Set(models.PlatformPaper, "Chiefs", 0.53, 0.55, time.Now())

	// Debounce requires two consecutive triggering ticks.
	tr.checkExits(context.Background())
	if _, ok := repo.positions["t1"]; !ok {
		t.Fatal("position closed on first triggering tick, debounce not honored")
	}
	tr.checkExits(context.Background())
	if _, ok := repo.positions["t1"]; ok {
		t.Fatal("position not closed after debounce threshold reached")
	}
	if len(repo.closed) != 1 {
		t.Fatalf("len(repo.closed) = %d, want 1", len(repo.closed))
	}
	if repo.closed[0].Outcome == nil || *repo.closed[0].Outcome != models.OutcomeWin {
		t.Errorf("closed position outcome = %v, want win", repo.closed[0].Outcome)
	}
}

func TestCheckExitsSkipsWithinMinHold(t *testing.T) {
	b := bus.New("test")
	repo := newFakeRepo()
	tr := New(repo, b, testEngine(), config.FreshnessConfig{PriceStalenessTTL: 30 * time.Second}, testPolling())

	repo.positions["t1"] = &models.OpenPosition{
		TradeID: "t1", GameID: "g1", Side: models.SideYes, Platform: models.PlatformPaper,
		EntryPriceCents: 50, SizeCents: 1000, EntryTime: time.Now(), Status: models.PositionOpen,
	}
	tr.book.Set(models.PlatformPaper, "", 0.90, 0.92, time.Now())

	tr.checkExits(context.Background())
	if _, ok := repo.positions["t1"]; !ok {
		t.Fatal("position closed before MinHoldSeconds elapsed")
	}
}

func TestSettleGameClosesAllOpenPositionsForGame(t *testing.T) {
	b := bus.New("test")
	repo := newFakeRepo()
	tr := New(repo, b, testEngine(), config.FreshnessConfig{PriceStalenessTTL: 30 * time.Second}, testPolling())

	repo.positions["t1"] = &models.OpenPosition{
		TradeID: "t1", GameID: "g1", Side: models.SideYes, Platform: models.PlatformPaper, Team: "Chiefs",
		EntryPriceCents: 50, SizeCents: 1000, EntryTime: time.Now().Add(-time.Hour), Status: models.PositionOpen,
	}
	tr.book.Set(models.PlatformPaper, "Chiefs", 0.98, 0.99, time.Now())

	tr.settleGame(context.Background(), "g1")

	if len(repo.closed) != 1 {
		t.Fatalf("len(repo.closed) = %d, want 1", len(repo.closed))
	}
	if repo.closed[0].Status != models.PositionSettled {
		t.Errorf("Status = %q, want settled", repo.closed[0].Status)
	}
	if *repo.closed[0].ExitPriceCents != 100 {
		t.Errorf("ExitPriceCents = %d, want 100", *repo.closed[0].ExitPriceCents)
	}
}
