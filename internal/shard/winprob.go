package shard

import (
	"math"

	"sportsarb/internal/models"
	"sportsarb/pkg/utils"
)

// winprob.go - детерминированные модели win-probability по видам спорта (§4.4)
//
// Every function is a pure (GameState, sport, for_home) -> p map, no I/O,
// no shared state -- mirrors internal/bot's spread-calculation helpers
// (pure functions over a snapshot, called from the hot path without
// locking anything beyond the snapshot itself).

// regulationSecondsRemaining estimates seconds left in regulation for a
// period-and-clock based sport, given periods-per-game and seconds-per-period.
func regulationSecondsRemaining(period, clockSeconds, periodsPerGame, secondsPerPeriod int) float64 {
	if period <= 0 {
		period = 1
	}
	remainingPeriods := periodsPerGame - period
	if remainingPeriods < 0 {
		remainingPeriods = 0
	}
	total := float64(remainingPeriods*secondsPerPeriod + clockSeconds)
	if total < 0 {
		total = 0
	}
	return total
}

// WinProbability dispatches to a sport-specific model and returns
// home_win_prob. Callers derive away_win_prob as 1 - home_win_prob.
func WinProbability(gs *models.GameState, sport models.Sport) float64 {
	switch sport {
	case models.SportNFL, models.SportNCAAF:
		return footballWinProb(gs, 4, 900)
	case models.SportNBA:
		return basketballWinProb(gs, 4, 720, 2.2)
	case models.SportNCAAB:
		return basketballWinProb(gs, 2, 1200, 2.2)
	case models.SportNHL:
		return clockLogisticWinProb(gs, 3, 1200, 1.8)
	case models.SportMLB:
		return baseballWinProb(gs)
	case models.SportMLS, models.SportSoccer:
		return clockLogisticWinProb(gs, 2, 2700, 1.1)
	case models.SportTennis:
		return clockLogisticWinProb(gs, 1, 3600, 0.9)
	case models.SportMMA:
		return clockLogisticWinProb(gs, 3, 300, 2.5)
	default:
		return clockLogisticWinProb(gs, 1, 3600, 2.0)
	}
}

// footballWinProb: score_diff shrunk by time-dependent sigma, plus
// possession/field-position/down-distance adjustments (§4.4).
func footballWinProb(gs *models.GameState, periodsPerGame, secondsPerPeriod int) float64 {
	scoreDiff := float64(gs.HomeScore - gs.AwayScore)
	remaining := regulationSecondsRemaining(gs.Period, gs.ClockSeconds, periodsPerGame, secondsPerPeriod)
	total := float64(periodsPerGame * secondsPerPeriod)
	timeFractionRemaining := utils.Clamp(remaining/total, 0, 1)
	sigma := 14 * math.Sqrt(math.Max(timeFractionRemaining, 1e-6))

	adjustment := 0.0
	if gs.Possession != "" {
		possessionSign := 1.0
		if gs.Possession == "away" {
			possessionSign = -1.0
		}
		fieldPositionWeight := 1.0
		if gs.FieldPosition > 0 {
			// Closer to the end zone (smaller FieldPosition) weights the
			// possession bonus up, capped at 2x near the goal line.
			fieldPositionWeight = utils.Clamp(2.0-float64(gs.FieldPosition)/50.0, 1.0, 2.0)
		}
		adjustment += possessionSign * 2.5 * fieldPositionWeight
		if gs.FieldPosition > 0 && gs.FieldPosition <= 20 {
			adjustment += possessionSign * 4.0 // red zone
		}
		if gs.Down > 0 {
			adjustment -= possessionSign * float64(gs.Down-1) * 0.8 // down/distance penalty
		}
	}

	return utils.Logistic((scoreDiff + adjustment) / sigma)
}

// basketballWinProb estimates possessions remaining from clock+period and
// treats one possession as roughly one expected point; larger deficits
// harden (become more certain) as possessions run out.
func basketballWinProb(gs *models.GameState, periodsPerGame, secondsPerPeriod int, sigmaPerPossession float64) float64 {
	scoreDiff := float64(gs.HomeScore - gs.AwayScore)
	remaining := regulationSecondsRemaining(gs.Period, gs.ClockSeconds, periodsPerGame, secondsPerPeriod)
	const secondsPerPossession = 15.0
	possessionsRemaining := math.Max(remaining/secondsPerPossession, 0.5)
	sigma := sigmaPerPossession * math.Sqrt(possessionsRemaining)

	// Catch-up effect: late in the game a fixed deficit is harder to erase
	// than early, so scale the effective score_diff up as possessions thin out.
	catchUpFactor := 1.0 + 1.0/possessionsRemaining
	return utils.Logistic((scoreDiff * catchUpFactor) / sigma)
}

// baseballWinProb reduces outs-remaining (derived from period=inning,
// clockSeconds repurposed as outs-in-half-inning) to a logistic of
// score_diff versus innings left, the same clock-vs-score shape as the
// other sports but scaled to a 9-inning game.
func baseballWinProb(gs *models.GameState) float64 {
	scoreDiff := float64(gs.HomeScore - gs.AwayScore)
	inningsRemaining := math.Max(float64(9-gs.Period)+0.5, 0.5)
	sigma := 2.6 * math.Sqrt(inningsRemaining)
	return utils.Logistic(scoreDiff / sigma)
}

// clockLogisticWinProb is the generic score-diff-vs-time-remaining
// logistic used for sports without a bespoke model (§4.4: "analogous
// reductions ... with sport-specific variance").
func clockLogisticWinProb(gs *models.GameState, periodsPerGame, secondsPerPeriod int, sigmaScale float64) float64 {
	scoreDiff := float64(gs.HomeScore - gs.AwayScore)
	remaining := regulationSecondsRemaining(gs.Period, gs.ClockSeconds, periodsPerGame, secondsPerPeriod)
	total := float64(periodsPerGame * secondsPerPeriod)
	timeFractionRemaining := utils.Clamp(remaining/total, 0, 1)
	sigma := sigmaScale * math.Sqrt(math.Max(timeFractionRemaining, 1e-6)) * 10
	return utils.Logistic(scoreDiff / sigma)
}

// GameProgress returns a [0,1] fraction of the game elapsed, used for
// BlendLogOdds's pregame-weight decay.
func GameProgress(gs *models.GameState, sport models.Sport) float64 {
	periodsPerGame, secondsPerPeriod := periodShape(sport)
	remaining := regulationSecondsRemaining(gs.Period, gs.ClockSeconds, periodsPerGame, secondsPerPeriod)
	total := float64(periodsPerGame * secondsPerPeriod)
	if total <= 0 {
		return 1
	}
	return utils.Clamp(1-remaining/total, 0, 1)
}

func periodShape(sport models.Sport) (periodsPerGame, secondsPerPeriod int) {
	switch sport {
	case models.SportNFL, models.SportNCAAF:
		return 4, 900
	case models.SportNBA:
		return 4, 720
	case models.SportNCAAB:
		return 2, 1200
	case models.SportNHL:
		return 3, 1200
	case models.SportMLB:
		return 9, 1
	case models.SportMLS, models.SportSoccer:
		return 2, 2700
	case models.SportTennis:
		return 1, 3600
	case models.SportMMA:
		return 3, 300
	default:
		return 1, 3600
	}
}

// BlendedWinProbability applies §4.4's pregame/live log-odds blend,
// falling back to the live estimate alone when no pregame prior exists.
func BlendedWinProbability(gs *models.GameState, sport models.Sport) float64 {
	live := WinProbability(gs, sport)
	if gs.PregameHomeProb == nil {
		return live
	}
	return utils.BlendLogOdds(*gs.PregameHomeProb, live, GameProgress(gs, sport))
}
