package signalproc

import (
	"strconv"
	"strings"
	"time"

	"sportsarb/internal/models"
)

// rules.go - вычисление TradingRule против сигнала (§4.5 шаг 6)
//
// Conditions are "field": "op:value" (models.TradingRule's documented
// wire shape) — op in {eq, lt, lte, gt, gte}, defaulting to eq when the
// value carries no "op:" prefix. A Reject rule short-circuits; an
// OverrideMinEdge rule raises the effective min-edge threshold for this
// signal only.

// ApplyRules evaluates every active, non-expired rule against sig, in
// order. Returns (reject=true, reason) if any matching rule rejects, and
// the highest MinEdgePct override among matching OverrideMinEdge rules
// (0 if none matched).
func ApplyRules(sig *models.TradingSignal, rules []models.TradingRule, now time.Time) (reject bool, reason string, minEdgeOverride float64) {
	for _, r := range rules {
		if r.IsExpired(now) || !r.Active {
			continue
		}
		if !ruleMatches(sig, r.Conditions) {
			continue
		}
		switch r.Action {
		case models.RuleActionReject:
			return true, "trading_rule:" + r.RuleID, minEdgeOverride
		case models.RuleActionOverrideMinEdge:
			if r.MinEdgePct != nil && *r.MinEdgePct > minEdgeOverride {
				minEdgeOverride = *r.MinEdgePct
			}
		}
	}
	return false, "", minEdgeOverride
}

func ruleMatches(sig *models.TradingSignal, conditions map[string]string) bool {
	for field, cond := range conditions {
		if !conditionMatches(sig, field, cond) {
			return false
		}
	}
	return true
}

func conditionMatches(sig *models.TradingSignal, field, cond string) bool {
	op, value := "eq", cond
	if idx := strings.IndexByte(cond, ':'); idx >= 0 {
		op, value = cond[:idx], cond[idx+1:]
	}

	if num, ok := numericField(sig, field); ok {
		threshold, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false
		}
		switch op {
		case "lt":
			return num < threshold
		case "lte":
			return num <= threshold
		case "gt":
			return num > threshold
		case "gte":
			return num >= threshold
		default:
			return num == threshold
		}
	}

	str, ok := stringField(sig, field)
	return ok && str == value
}

func numericField(sig *models.TradingSignal, field string) (float64, bool) {
	switch field {
	case "edge_pct":
		return sig.EdgePct, true
	case "model_prob":
		return sig.ModelProb, true
	case "market_prob":
		return sig.MarketProb, true
	case "confidence":
		return sig.Confidence, true
	case "liquidity_available":
		return sig.LiquidityAvailable, true
	default:
		return 0, false
	}
}

func stringField(sig *models.TradingSignal, field string) (string, bool) {
	switch field {
	case "sport":
		return string(sig.Sport), true
	case "team":
		return sig.Team, true
	case "direction":
		return string(sig.Direction), true
	case "signal_type":
		return string(sig.SignalType), true
	case "platform_buy":
		return string(sig.PlatformBuy), true
	default:
		return "", false
	}
}
