package venue

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"sportsarb/internal/models"
	"sportsarb/pkg/utils"
)

// polymarket.go - клиент Polymarket (Gamma + CLOB REST)
//
// Gamma REST обслуживает каталог рынков (GET /markets, /markets/{id}, /tags);
// CLOB REST отдаёт книгу заявок (GET /book?token_id=...). PlaceOrder
// намеренно не реализован: подпись CLOB-ордеров (EIP-712) — отдельная
// интеграционная задача за пределами ядра пайплайна, см. DESIGN.md.

var hexIDPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]+$`)
var digitsOnlyPattern = regexp.MustCompile(`^[0-9]+$`)

type PolymarketClient struct {
	gamma *resty.Client
	clob  *resty.Client
	logger *utils.Logger
}

const defaultPolymarketTimeout = 10 * time.Second

func NewPolymarketClient(gammaBaseURL, clobBaseURL string) *PolymarketClient {
	return &PolymarketClient{
		gamma:  resty.New().SetBaseURL(gammaBaseURL).SetTimeout(defaultPolymarketTimeout),
		clob:   resty.New().SetBaseURL(clobBaseURL).SetTimeout(defaultPolymarketTimeout),
		logger: utils.L().WithComponent("venue-polymarket"),
	}
}

func (c *PolymarketClient) Name() models.Platform { return models.PlatformPolymarket }

func (c *PolymarketClient) Close() error { return nil }

type gammaMarket struct {
	ConditionID string   `json:"condition_id"`
	Question    string   `json:"question"`
	ClobTokenIDs []string `json:"clobTokenIds"`
}

type gammaMarketsResponse []gammaMarket

// DiscoverMarkets lists Gamma markets (no status filter is sent) and returns
// the condition ids of those whose question mentions both team names.
func (c *PolymarketClient) DiscoverMarkets(ctx context.Context, sport models.Sport, homeTeam, awayTeam string) ([]string, error) {
	var markets gammaMarketsResponse
	resp, err := c.gamma.R().SetContext(ctx).SetResult(&markets).Get("/markets")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &VenueHTTPError{StatusCode: resp.StatusCode(), Venue: "polymarket-gamma"}
	}

	homeLower, awayLower := strings.ToLower(homeTeam), strings.ToLower(awayTeam)
	var out []string
	for _, m := range markets {
		q := strings.ToLower(m.Question)
		if strings.Contains(q, homeLower) && strings.Contains(q, awayLower) {
			out = append(out, m.ConditionID)
		}
	}
	return out, nil
}

type clobBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type clobBookResponse struct {
	Bids []clobBookLevel `json:"bids"`
	Asks []clobBookLevel `json:"asks"`
}

// GetBook fetches the CLOB book for marketID, which may be a token_id
// (digits-only) or a condition_id (hex). For a condition_id, the caller is
// expected to have already resolved the YES token_id via DiscoverMarkets;
// GetBook accepts either and dispatches to /book?token_id= or the
// /markets/{condition_id} fallback accordingly.
func (c *PolymarketClient) GetBook(ctx context.Context, marketID string) (*Book, error) {
	var resp *resty.Response
	var err error
	var parsed clobBookResponse

	if isTokenID(marketID) {
		resp, err = c.clob.R().SetContext(ctx).
			SetQueryParam("token_id", marketID).
			SetResult(&parsed).
			Get("/book")
	} else if isConditionID(marketID) {
		resp, err = c.clob.R().SetContext(ctx).SetResult(&parsed).
			Get(fmt.Sprintf("/markets/%s", marketID))
	} else {
		return nil, fmt.Errorf("polymarket: marketID %q is neither a token_id nor condition_id", marketID)
	}
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &VenueHTTPError{StatusCode: resp.StatusCode(), Venue: "polymarket-clob"}
	}

	book := &Book{MarketID: marketID}
	if best, sz, ok := bestDecimalLevel(parsed.Bids, true); ok {
		book.YesBid = best
		book.YesBidSz = sz
	}
	if best, sz, ok := bestDecimalLevel(parsed.Asks, false); ok {
		book.YesAsk = best
		book.YesAskSz = sz
	} else {
		book.YesAsk = 1
	}
	return book, nil
}

// bestDecimalLevel picks the best bid (max price) or best ask (min price)
// from a CLOB level list, parsing decimal strings via shopspring/decimal.
func bestDecimalLevel(levels []clobBookLevel, wantMax bool) (price, size float64, ok bool) {
	if len(levels) == 0 {
		return 0, 0, false
	}
	bestPrice, err := decimal.NewFromString(levels[0].Price)
	if err != nil {
		return 0, 0, false
	}
	bestSize, _ := decimal.NewFromString(levels[0].Size)

	for _, l := range levels[1:] {
		p, err := decimal.NewFromString(l.Price)
		if err != nil {
			continue
		}
		if (wantMax && p.GreaterThan(bestPrice)) || (!wantMax && p.LessThan(bestPrice)) {
			bestPrice = p
			bestSize, _ = decimal.NewFromString(l.Size)
		}
	}

	f, _ := bestPrice.Float64()
	s, _ := bestSize.Float64()
	return f, s, true
}

// PlaceOrder is intentionally unimplemented: Polymarket order placement
// requires EIP-712 signed CLOB orders, an integration concern the core
// pipeline does not own.
func (c *PolymarketClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	return nil, ErrNotImplemented
}

// isTokenID reports whether id is a CLOB token_id (digits-only).
func isTokenID(id string) bool {
	return digitsOnlyPattern.MatchString(id)
}

// isConditionID reports whether id is a condition_id (hex, optional 0x
// prefix). Callers check isTokenID first since digit strings also match
// the hex alphabet.
func isConditionID(id string) bool {
	return hexIDPattern.MatchString(id)
}
