package schedule

import (
	"context"

	"sportsarb/internal/models"
)

// provider.go - интерфейс провайдера расписания (§4.3, §6: "ESPN-like")
//
// Два потребителя: оркестратор вызывает ListLive на каждом тике discovery
// loop'а, шард вызывает Fetch на каждом тике poll loop'а для уже назначенной
// игры. Один провайдер реализует оба метода, т.к. оба бьют в один и тот же
// upstream API с одной и той же path-segment валидацией.

// Provider discovers live games per sport and fetches live state for a
// single game. Implementations must validate every sport/league path
// segment against the fixed allowlist before building a request (§6).
type Provider interface {
	// ListLive returns games currently live (or imminently starting) for
	// sport, venue-neutral. It does not know about shard assignment; the
	// caller skips games it has already assigned.
	ListLive(ctx context.Context, sport models.Sport) ([]models.Game, error)

	// Fetch returns the freshest snapshot for gameID.
	Fetch(ctx context.Context, gameID string) (*models.GameState, error)
}
