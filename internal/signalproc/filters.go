package signalproc

import (
	"context"
	"time"

	"sportsarb/internal/config"
	"sportsarb/internal/models"
)

// filters.go - последовательные pre-trade фильтры (§4.5)
//
// Six numbered filters, fail-fast: the first rejection short-circuits and
// nothing downstream (risk checks, sizing) runs.

// FilterResult carries the outcome of the sequential pre-trade filters:
// either a rejection reason, or a (possibly rule-overridden) min-edge
// threshold to carry into sizing.
type FilterResult struct {
	Rejected   bool
	Reason     models.RejectionReason
	Detail     string
	MinEdgePct float64
}

// RunPreTradeFilters applies §4.5's six sequential filters in order.
func RunPreTradeFilters(ctx context.Context, sig *models.TradingSignal, repo Repository, sizing config.SizingConfig, risk config.RiskConfig, rules []models.TradingRule, now time.Time) FilterResult {
	// 0: expiry isn't one of the six numbered filters, but an expired
	// signal (§3: 30s window) must never reach sizing/risk regardless.
	if sig.IsExpired(now) {
		return FilterResult{Rejected: true, Reason: models.RejectExpired}
	}

	// 1: signal has a market to trade against.
	if sig.MarketProb <= 0 && sig.SignalType != models.SignalArbitrage {
		return FilterResult{Rejected: true, Reason: models.RejectNoMarket}
	}

	minEdge := sizing.MinEdgePct

	// 6 is evaluated early (logically independent of 2-5) so an
	// OverrideMinEdge rule can raise minEdge before filter 2 checks it.
	if reject, detail, override := ApplyRules(sig, rules, now); reject {
		return FilterResult{Rejected: true, Reason: models.RejectRuleReject, Detail: detail}
	} else if override > minEdge {
		minEdge = override
	}

	// 2: minimum edge.
	if absFloat(sig.EdgePct) < minEdge {
		return FilterResult{Rejected: true, Reason: models.RejectEdgeBelowMin, MinEdgePct: minEdge}
	}

	// 3: probability bounds, bypassed for Arbitrage.
	if sig.SignalType != models.SignalArbitrage {
		if sig.Direction == models.DirectionBuy && sig.ModelProb > sizing.MaxBuyProb {
			return FilterResult{Rejected: true, Reason: models.RejectProbBounds, MinEdgePct: minEdge}
		}
		if sig.Direction == models.DirectionSell && sig.ModelProb < sizing.MinSellProb {
			return FilterResult{Rejected: true, Reason: models.RejectProbBounds, MinEdgePct: minEdge}
		}
	}

	// 4: no same-side open duplicate, unless hedging is explicitly allowed.
	if !sizing.AllowHedging {
		dup, err := repo.HasSameSideOpen(ctx, sig.GameID, sig.Team, sideFor(sig.Direction))
		if err == nil && dup {
			return FilterResult{Rejected: true, Reason: models.RejectDuplicateSide, MinEdgePct: minEdge}
		}
	}

	// 5: team win/loss cooldown.
	if outcome, exitTime, err := repo.LastOutcomeFor(ctx, sig.GameID, sig.Team); err == nil {
		cooldown := time.Duration(risk.LossCooldownSeconds) * time.Second
		if outcome == models.OutcomeWin {
			cooldown = time.Duration(risk.WinCooldownSeconds) * time.Second
		}
		if now.Sub(exitTime) < cooldown {
			return FilterResult{Rejected: true, Reason: models.RejectCooldown, MinEdgePct: minEdge}
		}
	}

	return FilterResult{Rejected: false, MinEdgePct: minEdge}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
