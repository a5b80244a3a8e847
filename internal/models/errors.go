package models

import "errors"

// Инварианты доменных типов — нарушение любой из них указывает на
// повреждённые входные данные от провайдера или биржи, не на баг вызывающего.
var (
	ErrNegativeScore       = errors.New("models: score must be >= 0")
	ErrNonPositivePeriod   = errors.New("models: period must be > 0")
	ErrInvalidBookCrossed  = errors.New("models: yes_bid must be <= yes_ask")
	ErrInvalidBookBounds   = errors.New("models: yes_bid/yes_ask must be within [0,1]")
	ErrEdgeBelowThreshold  = errors.New("models: |edge_pct| below configured minimum")
	ErrNotFound            = errors.New("models: entity not found")
	ErrVersionConflict     = errors.New("models: bankroll version conflict")
	ErrInvalidSport        = errors.New("models: sport not in the supported allowlist")
)
