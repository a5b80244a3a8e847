package venue

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"sportsarb/internal/bus"
	"sportsarb/pkg/utils"
)

// kalshi_ws.go - клиент Kalshi WebSocket v2
//
// Single connection per venue process, subscribed to orderbook_delta and
// orderbook_snapshot for a dynamic set of tickers (market discovery adds
// tickers as games are resolved). Публикует top-of-book обновления на шину
// в топик prices.kalshi.{ticker}, откуда их забирает shard конкретной игры.

const kalshiWSPathV2 = "/trade-api/ws/v2"

type kalshiWSSubscribeCmd struct {
	ID     int64                  `json:"id"`
	Cmd    string                 `json:"cmd"`
	Params kalshiWSSubscribeParam `json:"params"`
}

type kalshiWSSubscribeParam struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

type kalshiWSMessage struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

type kalshiOrderbookMsg struct {
	MarketTicker string     `json:"market_ticker"`
	Yes          [][2]int64 `json:"yes"`
	No           [][2]int64 `json:"no"`
}

// KalshiStream manages the Kalshi v2 WebSocket connection and republishes
// top-of-book changes onto the bus.
type KalshiStream struct {
	mgr      *WSReconnectManager
	b        *bus.Bus
	logger   *utils.Logger
	cmdSeq   int64
	tickers  map[string]bool
}

// NewKalshiStream dials wsURL (e.g. wss://.../trade-api/ws/v2). signer may
// be nil for the public orderbook feed (Kalshi's market data is public;
// auth headers are only required for fills/portfolio channels, out of
// scope here).
func NewKalshiStream(wsURL string, signer *kalshiSigner, b *bus.Bus) *KalshiStream {
	s := &KalshiStream{
		b:       b,
		logger:  utils.L().WithComponent("venue-kalshi-ws"),
		tickers: make(map[string]bool),
	}

	var headersFunc func() http.Header
	if signer != nil && signer.Enabled() {
		headersFunc = func() http.Header { return signer.Headers(http.MethodGet, kalshiWSPathV2) }
	}

	s.mgr = NewWSReconnectManager("kalshi", wsURL, DefaultWSReconnectConfig(), headersFunc)
	s.mgr.SetOnMessage(s.handleMessage)
	return s
}

func (s *KalshiStream) Connect() error { return s.mgr.Connect() }
func (s *KalshiStream) Close() error   { return s.mgr.Close() }

// Subscribe adds ticker to the orderbook subscription set. Safe to call
// repeatedly; a reconnect replays the full accumulated set.
func (s *KalshiStream) Subscribe(ticker string) error {
	if s.tickers[ticker] {
		return nil
	}
	s.tickers[ticker] = true

	cmd := kalshiWSSubscribeCmd{
		ID:  atomic.AddInt64(&s.cmdSeq, 1),
		Cmd: "subscribe",
		Params: kalshiWSSubscribeParam{
			Channels:      []string{"orderbook_delta"},
			MarketTickers: []string{ticker},
		},
	}
	s.mgr.AddSubscription(cmd)
	if s.mgr.IsConnected() {
		return s.mgr.Send(cmd)
	}
	return nil
}

func (s *KalshiStream) handleMessage(raw []byte) {
	var env kalshiWSMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn("malformed ws message", utils.Err(err))
		return
	}
	if env.Type != "orderbook_snapshot" && env.Type != "orderbook_delta" {
		return
	}

	var book kalshiOrderbookMsg
	if err := json.Unmarshal(env.Msg, &book); err != nil {
		s.logger.Warn("malformed orderbook payload", utils.Err(err))
		return
	}

	out := Book{MarketID: book.MarketTicker}
	if len(book.Yes) > 0 {
		best := bestLevel(book.Yes)
		out.YesBid = utils.PriceCentsToProb(best[0])
		out.YesBidSz = float64(best[1])
	}
	if len(book.No) > 0 {
		best := bestLevel(book.No)
		out.YesAsk = 1 - utils.PriceCentsToProb(best[0])
		out.YesAskSz = float64(best[1])
	} else {
		out.YesAsk = 1
	}

	topic := fmt.Sprintf("prices.kalshi.%s", strings.ToLower(book.MarketTicker))
	if err := s.b.Publish(topic, out); err != nil {
		s.logger.Warn("publish failed", utils.Err(err))
	}
}
