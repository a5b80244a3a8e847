package models

import "fmt"

// ExecutionRequest — единственный побочный эффект signal processor'а.
// IdempotencyKey уникален среди находящихся в полёте запросов.
type ExecutionRequest struct {
	RequestID    string    `json:"request_id"`
	IdempotencyKey string  `json:"idempotency_key"`
	GameID       string    `json:"game_id"`
	Sport        Sport     `json:"sport"`
	Team         string    `json:"team"`
	SignalID     string    `json:"signal_id"`
	Platform     Platform  `json:"platform"`
	MarketID     string    `json:"market_id"`
	Side         Side      `json:"side"`
	LimitPrice   float64   `json:"limit_price"`
	Size         float64   `json:"size"`
	EdgePct      float64   `json:"edge_pct"`
	ModelProb    float64   `json:"model_prob"`
	MarketProb   float64   `json:"market_prob"`
}

// IdempotencyKeyFor builds "{game_id}:{team}:{direction}" per spec §3.
func IdempotencyKeyFor(gameID, team string, direction Direction) string {
	return fmt.Sprintf("%s:%s:%s", gameID, team, direction)
}

// ExecutionStatus — итог попытки IOC-исполнения.
type ExecutionStatus string

const (
	ExecutionFilled    ExecutionStatus = "filled"
	ExecutionPartial   ExecutionStatus = "partial"
	ExecutionCancelled ExecutionStatus = "cancelled"
	ExecutionRejected  ExecutionStatus = "rejected"
)

// ExecutionResult — публикуется execution service'ом; IOC-ордер никогда
// не переходит в "resting".
type ExecutionResult struct {
	RequestID  string          `json:"request_id"`
	Status     ExecutionStatus `json:"status"`
	OrderID    string          `json:"order_id,omitempty"`
	FilledQty  float64         `json:"filled_qty"`
	AvgPrice   float64         `json:"avg_price"`
	EntryFeesCents int64       `json:"entry_fees_cents"`
	Error      string          `json:"error,omitempty"`
}

// ClientOrderID builds "arb{unix_seconds}{counter}" per spec §4.6.
func ClientOrderID(unixSeconds int64, counter uint64) string {
	return fmt.Sprintf("arb%d%d", unixSeconds, counter)
}
