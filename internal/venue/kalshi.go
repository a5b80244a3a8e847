package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"sportsarb/internal/models"
	"sportsarb/pkg/utils"
)

// kalshi.go - клиент Kalshi REST
//
// Endpoints per §6: GET /markets, GET /markets/{ticker},
// GET /markets/{ticker}/orderbook, POST /portfolio/orders,
// DELETE /portfolio/orders/{id}, GET /portfolio/positions, GET /events.
// Orderbook wire form: YES/NO bid arrays of [price_cents, qty]; YES ask is
// derived as 100 - best NO bid (no separate ask array on the wire).

type KalshiClient struct {
	baseURL string
	http    *http.Client
	signer  *kalshiSigner
	logger  *utils.Logger
}

// NewKalshiClient builds a client against baseURL (the elections/sports/demo
// subdomain is selected by the caller via KALSHI_BASE_URL). keyID/privateKeyPEM
// may both be empty for a read-only, unauthenticated discovery client.
func NewKalshiClient(baseURL, keyID string, privateKeyPEM []byte) (*KalshiClient, error) {
	signer, err := newKalshiSigner(keyID, privateKeyPEM)
	if err != nil {
		return nil, err
	}
	return &KalshiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    NewHTTPClient(DefaultHTTPClientConfig()),
		signer:  signer,
		logger:  utils.L().WithComponent("venue-kalshi"),
	}, nil
}

func (c *KalshiClient) Name() models.Platform { return models.PlatformKalshi }

func (c *KalshiClient) Close() error {
	if transport, ok := c.http.Transport.(interface{ CloseIdleConnections() }); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

func (c *KalshiClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody []byte
	var err error
	if body != nil {
		reqBody, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, jsonReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.signer.SignRequest(req); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &VenueHTTPError{StatusCode: resp.StatusCode, Venue: "kalshi"}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type kalshiOrderbookResponse struct {
	Orderbook struct {
		Yes [][2]int64 `json:"yes"` // [price_cents, qty]
		No  [][2]int64 `json:"no"`
	} `json:"orderbook"`
}

// GetBook fetches the orderbook for ticker and derives top-of-book,
// computing YES ask as 100 - best NO bid per the Kalshi wire form.
func (c *KalshiClient) GetBook(ctx context.Context, marketID string) (*Book, error) {
	var resp kalshiOrderbookResponse
	path := fmt.Sprintf("/markets/%s/orderbook", marketID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	book := &Book{MarketID: marketID}
	if len(resp.Orderbook.Yes) > 0 {
		best := bestLevel(resp.Orderbook.Yes)
		book.YesBid = utils.PriceCentsToProb(best[0])
		book.YesBidSz = float64(best[1])
	}
	if len(resp.Orderbook.No) > 0 {
		best := bestLevel(resp.Orderbook.No)
		book.YesAsk = 1 - utils.PriceCentsToProb(best[0])
		book.YesAskSz = float64(best[1])
	} else {
		book.YesAsk = 1
	}
	return book, nil
}

// bestLevel returns the level with the highest price (best bid) from a
// Kalshi side array.
func bestLevel(levels [][2]int64) [2]int64 {
	best := levels[0]
	for _, l := range levels[1:] {
		if l[0] > best[0] {
			best = l
		}
	}
	return best
}

type kalshiMarket struct {
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

type kalshiMarketsResponse struct {
	Markets []kalshiMarket `json:"markets"`
}

// DiscoverMarkets lists open markets and returns tickers whose title
// contains both team names (coarse pre-filter; fine scoring happens in
// internal/discovery).
func (c *KalshiClient) DiscoverMarkets(ctx context.Context, sport models.Sport, homeTeam, awayTeam string) ([]string, error) {
	var resp kalshiMarketsResponse
	if err := c.do(ctx, http.MethodGet, "/markets?status=open", nil, &resp); err != nil {
		return nil, err
	}

	var out []string
	homeLower, awayLower := strings.ToLower(homeTeam), strings.ToLower(awayTeam)
	for _, m := range resp.Markets {
		title := strings.ToLower(m.Title)
		if strings.Contains(title, homeLower) && strings.Contains(title, awayLower) {
			out = append(out, m.Ticker)
		}
	}
	return out, nil
}

type kalshiOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"` // "buy" | "sell"
	Side          string `json:"side"`   // "yes" | "no"
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	Count         int64  `json:"count"`
	YesPrice      *int64 `json:"yes_price,omitempty"`
	NoPrice       *int64 `json:"no_price,omitempty"`
}

type kalshiOrderResponse struct {
	Order struct {
		OrderID    string `json:"order_id"`
		Status     string `json:"status"`
		FilledQty  int64  `json:"filled_quantity"`
		AvgPrice   int64  `json:"avg_fill_price"`
	} `json:"order"`
}

// PlaceOrder submits an IOC order, translating side/price into Kalshi's
// yes_price/no_price-in-cents convention.
func (c *KalshiClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	order := kalshiOrderRequest{
		Ticker:        req.MarketID,
		ClientOrderID: req.ClientOrderID,
		Action:        strings.ToLower(string(req.Direction)),
		Side:          strings.ToLower(string(req.Side)),
		Type:          "limit",
		TimeInForce:   "immediate_or_cancel",
		Count:         int64(req.Size),
	}
	priceCents := utils.ProbToPriceCents(req.LimitPrice)
	if req.Side == models.SideYes {
		order.YesPrice = &priceCents
	} else {
		order.NoPrice = &priceCents
	}

	var resp kalshiOrderResponse
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders", order, &resp); err != nil {
		return nil, err
	}

	return &OrderResult{
		OrderID:   resp.Order.OrderID,
		Status:    kalshiStatus(resp.Order.Status, resp.Order.FilledQty),
		FilledQty: float64(resp.Order.FilledQty),
		AvgPrice:  utils.PriceCentsToProb(resp.Order.AvgPrice),
	}, nil
}

func kalshiStatus(status string, filledQty int64) models.ExecutionStatus {
	switch {
	case status == "executed" && filledQty > 0:
		return models.ExecutionFilled
	case filledQty > 0:
		return models.ExecutionPartial
	default:
		return models.ExecutionCancelled
	}
}

// RateLimitError signals an HTTP 429; callers retry with backoff without
// decrementing the circuit breaker (§4.6).
type RateLimitError struct {
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("venue: rate limited (status %d)", e.StatusCode)
}

// VenueHTTPError is any other non-2xx venue response.
type VenueHTTPError struct {
	StatusCode int
	Venue      string
}

func (e *VenueHTTPError) Error() string {
	return fmt.Sprintf("venue %s: http status %d", e.Venue, e.StatusCode)
}

func jsonReader(data []byte) *strings.Reader {
	return strings.NewReader(string(data))
}
