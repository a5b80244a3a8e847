package execution

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"sportsarb/internal/bus"
	"sportsarb/internal/config"
	"sportsarb/internal/models"
	"sportsarb/internal/venue"
)

type fakeVenue struct {
	name   models.Platform
	result *venue.OrderResult
	err    error
	calls  int
}

func (f *fakeVenue) Name() models.Platform { return f.name }
func (f *fakeVenue) GetBook(ctx context.Context, marketID string) (*venue.Book, error) {
	return nil, venue.ErrNotImplemented
}
func (f *fakeVenue) DiscoverMarkets(ctx context.Context, sport models.Sport, home, away string) ([]string, error) {
	return nil, venue.ErrNotImplemented
}
func (f *fakeVenue) PlaceOrder(ctx context.Context, req venue.OrderRequest) (*venue.OrderResult, error) {
	f.calls++
	return f.result, f.err
}
func (f *fakeVenue) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{Mode: config.ModeConfig{PaperTrading: true}}
}

func TestEngineExecuteFillsSuccessfully(t *testing.T) {
	fv := &fakeVenue{name: models.PlatformPaper, result: &venue.OrderResult{
		OrderID: "o1", Status: models.ExecutionFilled, FilledQty: 10, AvgPrice: 0.6,
	}}
	engine := NewEngine(map[models.Platform]venue.Venue{models.PlatformPaper: fv}, testConfig())

	req := models.ExecutionRequest{RequestID: "r1", Platform: models.PlatformPaper, MarketID: "m1", Side: models.SideYes, LimitPrice: 0.6, Size: 10}
	result := engine.Execute(context.Background(), req)

	if result.Status != models.ExecutionFilled {
		t.Fatalf("expected filled, got %v (%s)", result.Status, result.Error)
	}
	if fv.calls != 1 {
		t.Fatalf("expected exactly one PlaceOrder call, got %d", fv.calls)
	}
}

func TestEngineRejectsUnknownVenue(t *testing.T) {
	engine := NewEngine(map[models.Platform]venue.Venue{}, testConfig())
	req := models.ExecutionRequest{RequestID: "r2", Platform: models.PlatformKalshi}
	result := engine.Execute(context.Background(), req)
	if result.Status != models.ExecutionRejected {
		t.Fatalf("expected rejected, got %v", result.Status)
	}
}

func TestEngineOpenBreakerRejectsImmediately(t *testing.T) {
	fv := &fakeVenue{name: models.PlatformKalshi, err: &venue.VenueHTTPError{StatusCode: 500, Venue: "kalshi"}}
	engine := NewEngine(map[models.Platform]venue.Venue{models.PlatformKalshi: fv}, testConfig())
	breaker := engine.breakers[models.PlatformKalshi]
	for i := 0; i < breaker.cfg.FailureThreshold; i++ {
		breaker.RecordFailure()
	}

	req := models.ExecutionRequest{RequestID: "r3", Platform: models.PlatformKalshi, MarketID: "m1"}
	result := engine.Execute(context.Background(), req)
	if result.Status != models.ExecutionRejected {
		t.Fatalf("expected rejected while breaker open, got %v", result.Status)
	}
	if fv.calls != 0 {
		t.Fatal("venue should not be called while breaker is open")
	}
}

func TestEngineRunPublishesExecutionResult(t *testing.T) {
	fv := &fakeVenue{name: models.PlatformPaper, result: &venue.OrderResult{
		OrderID: "o1", Status: models.ExecutionFilled, FilledQty: 5, AvgPrice: 0.55,
	}}
	engine := NewEngine(map[models.Platform]venue.Venue{models.PlatformPaper: fv}, testConfig())
	b := bus.New("test")

	resultSub := b.Subscribe("execution.result.*")
	defer resultSub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx, b)

	req := models.ExecutionRequest{RequestID: "r9", Platform: models.PlatformPaper, MarketID: "m1", Side: models.SideYes, LimitPrice: 0.55, Size: 5}
	if err := b.Publish("execution.request.r9", req); err != nil {
		t.Fatalf("publish request: %v", err)
	}

	select {
	case env := <-resultSub.C():
		var result models.ExecutionResult
		if err := json.Unmarshal(env.Payload, &result); err != nil {
			t.Fatalf("unmarshal result: %v", err)
		}
		if result.Status != models.ExecutionFilled || result.RequestID != "r9" {
			t.Errorf("result = %+v, want filled r9", result)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for execution result")
	}
}

func TestNextClientOrderIDIsUniquePerCall(t *testing.T) {
	engine := NewEngine(nil, testConfig())
	now := time.Now()
	a := engine.NextClientOrderID(now)
	b := engine.NextClientOrderID(now)
	if a == b {
		t.Fatal("expected distinct client order ids across calls")
	}
}
