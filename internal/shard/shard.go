package shard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sportsarb/internal/bus"
	"sportsarb/internal/config"
	"sportsarb/internal/models"
	"sportsarb/pkg/utils"
)

// shard.go - реестр мониторов одного шарда: heartbeat, bounded capacity,
// добавление/удаление игр по команде оркестратора (§4.3, §4.4)
//
// Grounded on internal/bot/engine.go's pairsBySymbol/pairs registry
// (sync.Map index + RWMutex-guarded map) generalized from trading pairs
// to games, and on internal/exchange/ws_reconnect.go's heartbeat-by-
// publish idiom generalized from one connection's liveness to one
// shard's liveness.

// DefaultMaxGames bounds how many concurrent monitors one shard process
// hosts, matching §4.4's "bounded number of per-game monitors."
const DefaultMaxGames = 200

// Shard hosts a bounded set of per-game Monitors and announces its own
// liveness on health:heartbeats for the orchestrator's assignment
// protocol (§4.3).
type Shard struct {
	id       string
	b        *bus.Bus
	provider func(sport models.Sport) StateProvider
	freshness config.FreshnessConfig
	polling   config.PollingConfig
	maxGames  int
	logger    *utils.Logger

	mu       sync.RWMutex
	monitors map[string]*Monitor // game_id -> monitor

	cmdSub *bus.Subscription
}

// New constructs a Shard identified by id. provider resolves the right
// StateProvider per sport (football vs basketball schedule endpoints
// differ upstream, even against the same vendor).
func New(id string, b *bus.Bus, provider func(sport models.Sport) StateProvider, freshness config.FreshnessConfig, polling config.PollingConfig) *Shard {
	return &Shard{
		id:        id,
		b:         b,
		provider:  provider,
		freshness: freshness,
		polling:   polling,
		maxGames:  DefaultMaxGames,
		logger:    utils.L().WithComponent("shard").With(utils.ShardID(id)),
		monitors:  make(map[string]*Monitor),
	}
}

// shardAssignCommand mirrors the orchestrator's assignment payload on
// shard:{shard_id}:command.
type shardAssignCommand struct {
	Action string      `json:"action"` // "assign" | "remove"
	Game   models.Game `json:"game"`
}

// Run subscribes to this shard's command topic and heartbeats until ctx
// is cancelled, publishing an empty heartbeat every interval.
func (s *Shard) Run(ctx context.Context, heartbeatInterval time.Duration) {
	s.cmdSub = s.b.Subscribe(fmt.Sprintf("shard:%s:command", s.id))
	defer s.cmdSub.Close()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return
		case env := <-s.cmdSub.C():
			s.handleCommand(ctx, env)
		case <-ticker.C:
			s.heartbeat()
		}
	}
}

func (s *Shard) heartbeat() {
	payload := struct {
		ShardID   string `json:"shard_id"`
		GameCount int    `json:"game_count"`
		Timestamp int64  `json:"timestamp"`
	}{ShardID: s.id, GameCount: s.GameCount(), Timestamp: time.Now().Unix()}

	if err := s.b.Publish("health:heartbeats", payload); err != nil {
		s.logger.Warn("heartbeat publish failed", utils.Err(err))
	}
}

func (s *Shard) handleCommand(ctx context.Context, env bus.Envelope) {
	var cmd shardAssignCommand
	if err := unmarshalPayload(env.Payload, &cmd); err != nil {
		s.logger.Warn("malformed shard command", utils.Err(err))
		return
	}

	switch cmd.Action {
	case "assign":
		s.AddGame(ctx, cmd.Game)
	case "remove":
		s.RemoveGame(cmd.Game.GameID)
	default:
		s.logger.Warn("unknown shard command action", utils.String("action", cmd.Action))
	}
}

// AddGame registers a new monitor for game and starts it, unless the
// shard is already at capacity or the game is already hosted.
func (s *Shard) AddGame(ctx context.Context, game models.Game) error {
	s.mu.Lock()
	if _, exists := s.monitors[game.GameID]; exists {
		s.mu.Unlock()
		return nil
	}
	if len(s.monitors) >= s.maxGames {
		s.mu.Unlock()
		return fmt.Errorf("shard %s at capacity (%d games)", s.id, s.maxGames)
	}
	var provider StateProvider
	if s.provider != nil {
		provider = s.provider(game.Sport)
	}
	mon := NewMonitor(game, provider, s.b, s.freshness, s.polling)
	s.monitors[game.GameID] = mon
	s.mu.Unlock()

	go mon.Run(ctx)
	s.logger.Info("game assigned", utils.GameID(game.GameID))
	return nil
}

// RemoveGame stops and unregisters a game's monitor (orchestrator
// reassignment, or game reaching Final).
func (s *Shard) RemoveGame(gameID string) {
	s.mu.Lock()
	mon, ok := s.monitors[gameID]
	if ok {
		delete(s.monitors, gameID)
	}
	s.mu.Unlock()
	if ok {
		mon.Stop()
		s.logger.Info("game removed", utils.GameID(gameID))
	}
}

// GameCount returns the number of actively hosted monitors.
func (s *Shard) GameCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.monitors)
}

// MonitorState reports a hosted game's state-machine state, or "" if not hosted.
func (s *Shard) MonitorState(gameID string) string {
	s.mu.RLock()
	mon, ok := s.monitors[gameID]
	s.mu.RUnlock()
	if !ok {
		return ""
	}
	return mon.State()
}

func (s *Shard) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, mon := range s.monitors {
		mon.Stop()
		delete(s.monitors, id)
	}
}
