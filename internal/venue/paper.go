package venue

import (
	"context"
	"sync"

	"sportsarb/internal/models"
	"sportsarb/pkg/utils"
)

// paper.go - симулятор исполнения для paper trading (§4.6)
//
// Fills immediately at the requested limit price with zero latency and no
// partial fills — the simplification spec.md's paper-trading mode calls
// for. A real venue's book is still consulted for GetBook/DiscoverMarkets
// via an injected delegate, so discovery and pricing stay realistic while
// only execution is simulated.

type PaperClient struct {
	delegate Venue // underlying venue used for GetBook/DiscoverMarkets; nil allowed if unused
	mu       sync.Mutex
	fills    []OrderResult
	logger   *utils.Logger
}

func NewPaperClient(delegate Venue) *PaperClient {
	return &PaperClient{
		delegate: delegate,
		logger:   utils.L().WithComponent("venue-paper"),
	}
}

func (c *PaperClient) Name() models.Platform { return models.PlatformPaper }

func (c *PaperClient) Close() error { return nil }

func (c *PaperClient) GetBook(ctx context.Context, marketID string) (*Book, error) {
	if c.delegate == nil {
		return nil, ErrNotImplemented
	}
	return c.delegate.GetBook(ctx, marketID)
}

func (c *PaperClient) DiscoverMarkets(ctx context.Context, sport models.Sport, homeTeam, awayTeam string) ([]string, error) {
	if c.delegate == nil {
		return nil, ErrNotImplemented
	}
	return c.delegate.DiscoverMarkets(ctx, sport, homeTeam, awayTeam)
}

// PlaceOrder simulates an instant full fill at the requested limit price.
func (c *PaperClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	result := &OrderResult{
		OrderID:   "paper-" + req.ClientOrderID,
		Status:    models.ExecutionFilled,
		FilledQty: req.Size,
		AvgPrice:  req.LimitPrice,
	}

	c.mu.Lock()
	c.fills = append(c.fills, *result)
	c.mu.Unlock()

	c.logger.Debug("paper fill",
		utils.String("market_id", req.MarketID),
		utils.Float64("price", req.LimitPrice),
		utils.Float64("size", req.Size),
	)
	return result, nil
}

// Fills returns a snapshot of all simulated fills, for tests and audit.
func (c *PaperClient) Fills() []OrderResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]OrderResult, len(c.fills))
	copy(out, c.fills)
	return out
}
