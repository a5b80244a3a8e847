package tracker

import (
	"context"
	"time"

	"sportsarb/internal/models"
)

// repository.go - хранилищная поверхность, нужная трекеру позиций (§4.7)

// Repository is the store surface the position tracker depends on.
// internal/store.Store satisfies this; tests use a fake.
type Repository interface {
	GetBankroll(ctx context.Context) (*models.Bankroll, error)
	UpdateBankrollCAS(ctx context.Context, expectedVersion int64, next models.Bankroll) error
	InsertPosition(ctx context.Context, p *models.OpenPosition) error
	ClosePosition(ctx context.Context, p *models.OpenPosition, settled bool) error
	OpenPositions(ctx context.Context) ([]*models.OpenPosition, error)
	OpenPositionsForGame(ctx context.Context, gameID string) ([]*models.OpenPosition, error)
	OrphanPositions(ctx context.Context, olderThan time.Duration) ([]*models.OpenPosition, error)
}
