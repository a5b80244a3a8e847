package tracker

import (
	"sportsarb/internal/models"
)

// accounting.go - integer-cents close accounting (§4.7)
//
// Fee rates per side, exactly half of internal/signalproc's round-trip
// reservation (sizing.go's roundTripFee): a round trip pays the fee on
// both legs, the tracker only ever accounts for the exit leg here (the
// entry leg's fee was already captured at fill time in EntryFeesCents).

// feeRate returns the per-side fee rate for platform, per §4.7: "Kalshi
// 0.7% per side; Polymarket 2% per side; Paper mirrors Kalshi."
func feeRate(platform models.Platform) float64 {
	if platform == models.PlatformPolymarket {
		return 0.02
	}
	return 0.007
}

// closeResult is the outcome of closing one position: gross/net pnl in
// cents, the exit fee charged, and the win/loss/push outcome.
type closeResult struct {
	ExitPriceCents int64
	ExitFeesCents  int64
	PnlGrossCents  int64
	PnlNetCents    int64
	Outcome        models.Outcome
}

// closePosition computes §4.7's close-accounting formula in integer
// cents: gross = size * (exit - entry), flipped for a No/Sell position;
// exit_fees = fee_rate(platform) * exit notional; net = gross - entry_fees
// - exit_fees.
func closePosition(p *models.OpenPosition, exitPriceCents int64) closeResult {
	sign := int64(1)
	if p.Side == models.SideNo {
		sign = -1
	}

	priceDeltaCents := exitPriceCents - p.EntryPriceCents
	grossCents := sign * p.SizeCents * priceDeltaCents / 100

	exitNotionalCents := p.SizeCents * exitPriceCents / 100
	exitFeesCents := int64(float64(exitNotionalCents) * feeRate(p.Platform))

	netCents := grossCents - p.EntryFeesCents - exitFeesCents

	outcome := models.OutcomePush
	switch {
	case netCents > 0:
		outcome = models.OutcomeWin
	case netCents < 0:
		outcome = models.OutcomeLoss
	}

	return closeResult{
		ExitPriceCents: exitPriceCents,
		ExitFeesCents:  exitFeesCents,
		PnlGrossCents:  grossCents,
		PnlNetCents:    netCents,
		Outcome:        outcome,
	}
}

// applyToBankroll computes the next Bankroll state after a close: half of
// a positive net profit moves to the piggybank, the other half (and the
// whole of a loss) accrues to current_balance. Peak/trough are updated
// to track the running extremes.
func applyToBankroll(b models.Bankroll, netCents int64) models.Bankroll {
	next := b
	if netCents > 0 {
		half := netCents / 2
		next.PiggybankBalanceCents += half
		next.CurrentBalanceCents += netCents - half
	} else {
		next.CurrentBalanceCents += netCents
	}

	if next.CurrentBalanceCents > next.PeakBalanceCents {
		next.PeakBalanceCents = next.CurrentBalanceCents
	}
	if next.CurrentBalanceCents < next.TroughBalanceCents || next.TroughBalanceCents == 0 {
		next.TroughBalanceCents = next.CurrentBalanceCents
	}
	return next
}
