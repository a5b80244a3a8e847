package models

import "time"

// SignalType — классификация торгового сигнала.
type SignalType string

const (
	SignalModelEdgeYes SignalType = "model_edge_yes"
	SignalModelEdgeNo  SignalType = "model_edge_no"
	SignalArbitrage    SignalType = "arbitrage"
)

// TradingSignal — выход game shard, вход signal processor.
type TradingSignal struct {
	SignalID           string     `json:"signal_id"`
	GameID             string     `json:"game_id"`
	Sport              Sport      `json:"sport"`
	Team               string     `json:"team"`
	Direction          Direction  `json:"direction"`
	SignalType         SignalType `json:"signal_type"`
	ModelProb          float64    `json:"model_prob"`
	MarketProb         float64    `json:"market_prob"`
	EdgePct            float64    `json:"edge_pct"`
	PlatformBuy        Platform   `json:"platform_buy"`
	BuyPrice           float64    `json:"buy_price"`
	LiquidityAvailable float64    `json:"liquidity_available"`
	Confidence         float64    `json:"confidence"`
	CreatedAt          time.Time  `json:"created_at"`
	ExpiresAt          time.Time  `json:"expires_at"`
}

// NewTradingSignal populates EdgePct and ExpiresAt (created_at + 30s) consistently.
func NewTradingSignal(gameID string, sport Sport, team string, direction Direction, signalType SignalType, modelProb, marketProb float64, platform Platform, buyPrice, liquidity, confidence float64, now time.Time) *TradingSignal {
	return &TradingSignal{
		GameID:             gameID,
		Sport:              sport,
		Team:               team,
		Direction:          direction,
		SignalType:         signalType,
		ModelProb:          modelProb,
		MarketProb:         marketProb,
		EdgePct:            (modelProb - marketProb) * 100,
		PlatformBuy:        platform,
		BuyPrice:           buyPrice,
		LiquidityAvailable: liquidity,
		Confidence:         confidence,
		CreatedAt:          now,
		ExpiresAt:          now.Add(30 * time.Second),
	}
}

// IsExpired reports whether the signal has outlived its 30s window.
func (s *TradingSignal) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// TradingRule — dynamically reloaded filter/override applied by the signal processor.
type RuleAction string

const (
	RuleActionReject         RuleAction = "reject"
	RuleActionOverrideMinEdge RuleAction = "override_min_edge"
)

type TradingRule struct {
	RuleID     string            `json:"rule_id" db:"rule_id"`
	Conditions map[string]string `json:"conditions" db:"conditions"` // field -> "op:value", e.g. "edge_pct":"gte:5"
	Action     RuleAction        `json:"action" db:"action"`
	MinEdgePct *float64          `json:"min_edge_pct,omitempty" db:"min_edge_pct"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty" db:"expires_at"`
	Active     bool              `json:"active" db:"active"`
}

// IsExpired reports whether the rule has lapsed and should not be applied.
func (r *TradingRule) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}
