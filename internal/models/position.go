package models

import "time"

type PositionStatus string

const (
	PositionOpen     PositionStatus = "open"
	PositionClosed   PositionStatus = "closed"
	PositionSettled  PositionStatus = "settled"
)

type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomePush Outcome = "push"
)

// OpenPosition — позиция трекера; на закрытии заполняются Exit*/Pnl*/Outcome.
type OpenPosition struct {
	TradeID      string         `json:"trade_id" db:"trade_id"`
	GameID       string         `json:"game_id" db:"game_id"`
	Sport        Sport          `json:"sport" db:"sport"`
	Team         string         `json:"team" db:"team"`
	Side         Side           `json:"side" db:"side"`
	Platform     Platform       `json:"platform" db:"platform"`
	MarketID     string         `json:"market_id" db:"market_id"`
	EntryPriceCents int64       `json:"entry_price_cents" db:"entry_price_cents"`
	SizeCents    int64          `json:"size_cents" db:"size_cents"` // notional in cents
	EntryTime    time.Time      `json:"entry_time" db:"entry_time"`
	EntryFeesCents int64        `json:"entry_fees_cents" db:"entry_fees_cents"`
	Status       PositionStatus `json:"status" db:"status"`

	ExitPriceCents *int64    `json:"exit_price_cents,omitempty" db:"exit_price_cents"`
	ExitTime       *time.Time `json:"exit_time,omitempty" db:"exit_time"`
	ExitFeesCents  *int64    `json:"exit_fees_cents,omitempty" db:"exit_fees_cents"`
	PnlGrossCents  *int64    `json:"pnl_gross_cents,omitempty" db:"pnl_gross_cents"`
	PnlNetCents    *int64    `json:"pnl_net_cents,omitempty" db:"pnl_net_cents"`
	Outcome        *Outcome  `json:"outcome,omitempty" db:"outcome"`
}

// HeldFor returns how long the position has been open as of now.
func (p *OpenPosition) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// Bankroll — единственная логическая строка с CAS по version.
type Bankroll struct {
	CurrentBalanceCents   int64     `json:"current_balance_cents" db:"current_balance_cents"`
	PiggybankBalanceCents int64     `json:"piggybank_balance_cents" db:"piggybank_balance_cents"`
	PeakBalanceCents      int64     `json:"peak_balance_cents" db:"peak_balance_cents"`
	TroughBalanceCents    int64     `json:"trough_balance_cents" db:"trough_balance_cents"`
	Version               int64     `json:"version" db:"version"`
	UpdatedAt             time.Time `json:"updated_at" db:"updated_at"`
}
