package signalproc

import (
	"context"
	"time"

	"sportsarb/internal/models"
)

// Repository is the store surface the signal processor depends on: the
// pre-trade filters' open-position/cooldown lookups and the risk checks'
// exposure/balance queries. internal/store.Store satisfies this; tests
// use a fake.
type Repository interface {
	GetBankroll(ctx context.Context) (*models.Bankroll, error)
	DailyLossCents(ctx context.Context) (int64, error)
	GameExposureCents(ctx context.Context, gameID string) (int64, error)
	SportExposureCents(ctx context.Context, sport models.Sport) (int64, error)
	HasOpposingPosition(ctx context.Context, gameID, team string, side models.Side) (bool, error)
	HasSameSideOpen(ctx context.Context, gameID, team string, side models.Side) (bool, error)
	OpenPositionCountForGame(ctx context.Context, gameID string) (int, error)
	LastOutcomeFor(ctx context.Context, gameID, team string) (models.Outcome, time.Time, error)
	ActiveRules(ctx context.Context, now time.Time) ([]models.TradingRule, error)
}

// sideFor maps a signal's Direction to the contract Side it trades:
// Buy signals take the YES leg, Sell signals take the synthetic NO leg.
func sideFor(direction models.Direction) models.Side {
	if direction == models.DirectionSell {
		return models.SideNo
	}
	return models.SideYes
}
