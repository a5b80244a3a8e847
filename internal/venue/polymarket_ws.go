package venue

import (
	"encoding/json"
	"fmt"
	"strings"

	"sportsarb/internal/bus"
	"sportsarb/pkg/utils"
)

// polymarket_ws.go - публичный WebSocket-клиент Polymarket
//
// No auth: market data channel is public. Subscribes by asset (token) id
// and republishes top-of-book onto prices.polymarket.{token_id}.

type polymarketWSSubscribeMsg struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

type polymarketWSUpdate struct {
	AssetID string          `json:"asset_id"`
	Bids    []clobBookLevel `json:"bids"`
	Asks    []clobBookLevel `json:"asks"`
}

type PolymarketStream struct {
	mgr      *WSReconnectManager
	b        *bus.Bus
	logger   *utils.Logger
	assetIDs []string
}

func NewPolymarketStream(wsURL string, b *bus.Bus) *PolymarketStream {
	s := &PolymarketStream{
		b:      b,
		logger: utils.L().WithComponent("venue-polymarket-ws"),
	}
	s.mgr = NewWSReconnectManager("polymarket", wsURL, DefaultWSReconnectConfig(), nil)
	s.mgr.SetOnMessage(s.handleMessage)
	return s
}

func (s *PolymarketStream) Connect() error { return s.mgr.Connect() }
func (s *PolymarketStream) Close() error   { return s.mgr.Close() }

// Subscribe adds assetID (CLOB token id) to the market-channel subscription.
func (s *PolymarketStream) Subscribe(assetID string) error {
	s.assetIDs = append(s.assetIDs, assetID)
	msg := polymarketWSSubscribeMsg{Type: "market", AssetIDs: s.assetIDs}
	s.mgr.AddSubscription(msg)
	if s.mgr.IsConnected() {
		return s.mgr.Send(msg)
	}
	return nil
}

func (s *PolymarketStream) handleMessage(raw []byte) {
	var update polymarketWSUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		s.logger.Warn("malformed ws message", utils.Err(err))
		return
	}
	if update.AssetID == "" {
		return
	}

	book := Book{MarketID: update.AssetID}
	if best, sz, ok := bestDecimalLevel(update.Bids, true); ok {
		book.YesBid = best
		book.YesBidSz = sz
	}
	if best, sz, ok := bestDecimalLevel(update.Asks, false); ok {
		book.YesAsk = best
		book.YesAskSz = sz
	} else {
		book.YesAsk = 1
	}

	topic := fmt.Sprintf("prices.polymarket.%s", strings.ToLower(update.AssetID))
	if err := s.b.Publish(topic, book); err != nil {
		s.logger.Warn("publish failed", utils.Err(err))
	}
}
