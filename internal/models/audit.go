package models

import (
	"encoding/json"
	"time"
)

// AuditOp — тип операции, зафиксированной в audit-логе.
type AuditOp string

const (
	AuditOpBankrollUpdate AuditOp = "bankroll_update"
	AuditOpTradeTransition AuditOp = "trade_transition"
	AuditOpDeletion        AuditOp = "deletion"
)

// AuditRow — неизменяемая запись аудита. Никакая логическая информация
// не покидает систему без строки аудита (§3 Ownership).
type AuditRow struct {
	ID        int64           `json:"id" db:"id"`
	Op        AuditOp         `json:"op" db:"op"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	Old       json.RawMessage `json:"old,omitempty" db:"old"`
	New       json.RawMessage `json:"new,omitempty" db:"new"`
}

// RejectionReason — типизированная причина отказа сигнала/риск-проверки,
// публикуется на notification:events и инкрементирует счётчик по причине.
type RejectionReason string

const (
	RejectNoMarket         RejectionReason = "no_market"
	RejectEdgeBelowMin     RejectionReason = "edge_below_min"
	RejectProbBounds       RejectionReason = "prob_bounds"
	RejectDuplicateSide    RejectionReason = "duplicate_side"
	RejectCooldown         RejectionReason = "cooldown"
	RejectRuleReject       RejectionReason = "rule_reject"
	RejectInsufficientFunds RejectionReason = "insufficient_funds"
	RejectDailyLoss        RejectionReason = "daily_loss_limit"
	RejectGameExposure     RejectionReason = "game_exposure_limit"
	RejectSportExposure    RejectionReason = "sport_exposure_limit"
	RejectOpposingPosition RejectionReason = "opposing_position"
	RejectTooManyPositions RejectionReason = "too_many_positions"
	RejectLowLiquidity     RejectionReason = "low_liquidity"
	RejectDebounce         RejectionReason = "debounce"
	RejectVenueNotImplemented RejectionReason = "venue_not_implemented"
	RejectExpired          RejectionReason = "expired"
	RejectRiskCheckError   RejectionReason = "risk_check_error"
	RejectBankrollUnavailable RejectionReason = "bankroll_unavailable"
	RejectSizeBelowFloor   RejectionReason = "size_below_floor"
	RejectAlreadyInFlight  RejectionReason = "already_in_flight"
)

// NotificationEvent — сообщение на topic notification:events.
type NotificationEvent struct {
	EventID   string          `json:"event_id"`
	Kind      string          `json:"kind"` // "rejection" | "exit" | "entry" | "conflict" | "alert"
	Reason    RejectionReason `json:"reason,omitempty"`
	GameID    string          `json:"game_id,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
