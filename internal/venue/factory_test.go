package venue

import (
	"context"
	"testing"
)

func TestIsSupported(t *testing.T) {
	if !IsSupported("Kalshi") {
		t.Error("kalshi should be supported (case-insensitive)")
	}
	if IsSupported("coinbase") {
		t.Error("coinbase should not be a supported venue")
	}
}

func TestNewPaperClientSimulatesFullFill(t *testing.T) {
	client := NewPaperClient(nil)
	req := OrderRequest{ClientOrderID: "arb1-1", MarketID: "KXNFL-KC-BUF", LimitPrice: 0.62, Size: 10}

	result, err := client.PlaceOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FilledQty != 10 || result.AvgPrice != 0.62 {
		t.Fatalf("expected full fill at limit price, got %+v", result)
	}
	if len(client.Fills()) != 1 {
		t.Fatalf("expected 1 recorded fill, got %d", len(client.Fills()))
	}
}
