package signalproc

import (
	"context"

	"golang.org/x/sync/errgroup"

	"sportsarb/internal/config"
	"sportsarb/internal/models"
)

// risk.go - семь параллельных risk-проверок (§4.5)
//
// golang.org/x/sync/errgroup, already wired for internal/discovery's
// team-match singleflight coalescing, gets its first fan-out-and-join
// call site here: every check is an independent store query, run
// concurrently and joined with Wait.

// RunRiskChecks executes §4.5's seven checks concurrently against repo.
// sizeCents is the proposed position size in cents. Returns the first
// failing check's RejectionReason, or "" if every check passed.
func RunRiskChecks(ctx context.Context, sig *models.TradingSignal, repo Repository, risk config.RiskConfig, liquidity config.LiquidityConfig, sizeCents, bankrollCents int64) models.RejectionReason {
	g, gctx := errgroup.WithContext(ctx)
	reasons := make(chan models.RejectionReason, 7)

	check := func(fn func(context.Context) (bool, error), reason models.RejectionReason) {
		g.Go(func() error {
			ok, err := fn(gctx)
			if err != nil {
				return err
			}
			if !ok {
				reasons <- reason
			}
			return nil
		})
	}

	check(func(ctx context.Context) (bool, error) {
		return sizeCents <= bankrollCents, nil
	}, models.RejectInsufficientFunds)

	check(func(ctx context.Context) (bool, error) {
		loss, err := repo.DailyLossCents(ctx)
		if err != nil {
			return false, err
		}
		return loss < risk.MaxDailyLoss, nil
	}, models.RejectDailyLoss)

	check(func(ctx context.Context) (bool, error) {
		if risk.MaxGameExposure < 0 {
			return true, nil
		}
		exposure, err := repo.GameExposureCents(ctx, sig.GameID)
		if err != nil {
			return false, err
		}
		return exposure+sizeCents <= risk.MaxGameExposure, nil
	}, models.RejectGameExposure)

	check(func(ctx context.Context) (bool, error) {
		if risk.MaxSportExposure < 0 {
			return true, nil
		}
		exposure, err := repo.SportExposureCents(ctx, sig.Sport)
		if err != nil {
			return false, err
		}
		return exposure+sizeCents <= risk.MaxSportExposure, nil
	}, models.RejectSportExposure)

	check(func(ctx context.Context) (bool, error) {
		opposing, err := repo.HasOpposingPosition(ctx, sig.GameID, sig.Team, sideFor(sig.Direction))
		if err != nil {
			return false, err
		}
		return !opposing, nil
	}, models.RejectOpposingPosition)

	check(func(ctx context.Context) (bool, error) {
		count, err := repo.OpenPositionCountForGame(ctx, sig.GameID)
		if err != nil {
			return false, err
		}
		return count < 2, nil
	}, models.RejectTooManyPositions)

	check(func(ctx context.Context) (bool, error) {
		return meetsLiquidity(sig, liquidity), nil
	}, models.RejectLowLiquidity)

	if err := g.Wait(); err != nil {
		return models.RejectRiskCheckError
	}
	close(reasons)

	// First reason wins deterministically by check order above, not by
	// goroutine completion order: collect all and report the one whose
	// check was registered first.
	var failed []models.RejectionReason
	for r := range reasons {
		failed = append(failed, r)
	}
	if len(failed) == 0 {
		return ""
	}
	return firstByPriority(failed)
}

// checkPriority fixes the §4.5-documented check order so a multi-failure
// rejection always reports the same reason regardless of goroutine
// scheduling.
var checkPriority = []models.RejectionReason{
	models.RejectInsufficientFunds, models.RejectDailyLoss, models.RejectGameExposure,
	models.RejectSportExposure, models.RejectOpposingPosition, models.RejectTooManyPositions,
	models.RejectLowLiquidity,
}

func firstByPriority(failed []models.RejectionReason) models.RejectionReason {
	set := make(map[models.RejectionReason]bool, len(failed))
	for _, r := range failed {
		set[r] = true
	}
	for _, r := range checkPriority {
		if set[r] {
			return r
		}
	}
	return failed[0]
}

func meetsLiquidity(sig *models.TradingSignal, liquidity config.LiquidityConfig) bool {
	threshold := liquidity.MinThreshold
	switch sig.PlatformBuy {
	case models.PlatformKalshi:
		if liquidity.MinThresholdKalshi != nil {
			threshold = *liquidity.MinThresholdKalshi
		}
	case models.PlatformPolymarket:
		if liquidity.MinThresholdPolymarket != nil {
			threshold = *liquidity.MinThresholdPolymarket
		}
	case models.PlatformPaper:
		if liquidity.MinThresholdPaper != nil {
			threshold = *liquidity.MinThresholdPaper
		}
	}
	return sig.LiquidityAvailable >= threshold
}
