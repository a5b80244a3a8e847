package tracker

import (
	"sportsarb/internal/config"
	"sportsarb/internal/models"
)

// exit.go - критерии выхода из позиции (§4.7)

// exitDebounceCount is the number of consecutive triggering ticks
// required before an exit fires, per §4.7's "optional debounce: require
// N consecutive triggers before exit" — so a single noisy tick does not
// close a position.
const exitDebounceCount = 2

// maxSpreadForExit bounds how wide a book may be and still be trusted
// for an exit mark, per §4.7: "non-pathological book with spread ≤ 0.5".
const maxSpreadForExit = 0.5

type exitDecision int

const (
	exitNone exitDecision = iota
	exitHoldForSettlement
	exitTakeProfit
	exitStopLoss
)

// ourPrice converts a two-sided yes quote into the price of the side this
// position actually holds: the yes mid for a Yes position, the mirrored
// (1-mid) no price for a No position. Both §4.5's sizing and §4.7's
// entry recording already store prices in these same side-relative terms
// (see signalproc.LimitPrice), so entry and mark are directly comparable.
func ourPrice(side models.Side, yesBid, yesAsk float64) float64 {
	mid := (yesBid + yesAsk) / 2
	if side == models.SideNo {
		return 1 - mid
	}
	return mid
}

// stopLossPctFor resolves the sport-specific override if one is
// configured, falling back to DefaultStopLossPct.
func stopLossPctFor(sport models.Sport, polling config.PollingConfig) float64 {
	if pct, ok := polling.StopLossPctBySport[string(sport)]; ok {
		return pct
	}
	return polling.DefaultStopLossPct
}

// evaluateExit applies §4.7's ordered checks: hold-for-settlement short-
// circuits before take-profit/stop-loss are even considered.
func evaluateExit(p *models.OpenPosition, yesBid, yesAsk float64, polling config.PollingConfig) exitDecision {
	price := ourPrice(p.Side, yesBid, yesAsk)

	if (p.Side == models.SideYes && price > 0.85) || (p.Side == models.SideNo && price < 0.15) {
		return exitHoldForSettlement
	}

	entryPrice := float64(p.EntryPriceCents) / 100
	moveFavor := price - entryPrice

	if moveFavor >= polling.TakeProfitPct/100 {
		return exitTakeProfit
	}
	if moveFavor <= -stopLossPctFor(p.Sport, polling)/100 {
		return exitStopLoss
	}
	return exitNone
}
