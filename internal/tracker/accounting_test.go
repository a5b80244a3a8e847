package tracker

import (
	"testing"

	"sportsarb/internal/models"
)

func TestClosePositionWinningYes(t *testing.T) {
	p := &models.OpenPosition{
		Side: models.SideYes, Platform: models.PlatformKalshi,
		EntryPriceCents: 50, SizeCents: 1000, EntryFeesCents: 7,
	}
	result := closePosition(p, 100)

	wantGross := int64(1000 * (100 - 50) / 100)
	if result.PnlGrossCents != wantGross {
		t.Errorf("PnlGrossCents = %d, want %d", result.PnlGrossCents, wantGross)
	}
	wantExitFees := int64(float64(1000) * 0.007)
	if result.ExitFeesCents != wantExitFees {
		t.Errorf("ExitFeesCents = %d, want %d", result.ExitFeesCents, wantExitFees)
	}
	wantNet := wantGross - 7 - wantExitFees
	if result.PnlNetCents != wantNet {
		t.Errorf("PnlNetCents = %d, want %d", result.PnlNetCents, wantNet)
	}
	if result.Outcome != models.OutcomeWin {
		t.Errorf("Outcome = %q, want win", result.Outcome)
	}
}

func TestClosePositionLosingNo(t *testing.T) {
	// A No position's pnl sign flips: priceDeltaCents positive (price rose
	// toward Yes) is a loss for the No holder.
	p := &models.OpenPosition{
		Side: models.SideNo, Platform: models.PlatformPolymarket,
		EntryPriceCents: 40, SizeCents: 500, EntryFeesCents: 10,
	}
	result := closePosition(p, 100)

	wantGross := -int64(500 * (100 - 40) / 100)
	if result.PnlGrossCents != wantGross {
		t.Errorf("PnlGrossCents = %d, want %d", result.PnlGrossCents, wantGross)
	}
	if result.Outcome != models.OutcomeLoss {
		t.Errorf("Outcome = %q, want loss", result.Outcome)
	}
}

func TestFeeRateByPlatform(t *testing.T) {
	if got := feeRate(models.PlatformPolymarket); got != 0.02 {
		t.Errorf("Polymarket feeRate = %v, want 0.02", got)
	}
	if got := feeRate(models.PlatformKalshi); got != 0.007 {
		t.Errorf("Kalshi feeRate = %v, want 0.007", got)
	}
	if got := feeRate(models.PlatformPaper); got != 0.007 {
		t.Errorf("Paper feeRate = %v, want 0.007", got)
	}
}

func TestApplyToBankrollSplitsProfitToPiggybank(t *testing.T) {
	b := models.Bankroll{CurrentBalanceCents: 100_00, PeakBalanceCents: 100_00, TroughBalanceCents: 100_00}
	next := applyToBankroll(b, 200)

	if next.PiggybankBalanceCents != 100 {
		t.Errorf("PiggybankBalanceCents = %d, want 100", next.PiggybankBalanceCents)
	}
	if next.CurrentBalanceCents != 100_00+100 {
		t.Errorf("CurrentBalanceCents = %d, want %d", next.CurrentBalanceCents, 100_00+100)
	}
	if next.PeakBalanceCents != next.CurrentBalanceCents {
		t.Errorf("PeakBalanceCents not updated to new high")
	}
}

func TestApplyToBankrollLossSkipsPiggybank(t *testing.T) {
	b := models.Bankroll{CurrentBalanceCents: 100_00, PeakBalanceCents: 100_00, TroughBalanceCents: 100_00}
	next := applyToBankroll(b, -500)

	if next.PiggybankBalanceCents != 0 {
		t.Errorf("PiggybankBalanceCents = %d, want 0 on a loss", next.PiggybankBalanceCents)
	}
	if next.CurrentBalanceCents != 100_00-500 {
		t.Errorf("CurrentBalanceCents = %d, want %d", next.CurrentBalanceCents, 100_00-500)
	}
	if next.TroughBalanceCents != next.CurrentBalanceCents {
		t.Errorf("TroughBalanceCents not updated to new low")
	}
}
