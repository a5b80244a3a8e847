// Package orchestrator discovers live games and assigns them to shards,
// tracks shard liveness via heartbeats, and bounds auto-restart of
// stateless services (§4.3).
package orchestrator

import (
	"context"
	"sync"
	"time"

	"sportsarb/internal/bus"
	"sportsarb/internal/config"
	"sportsarb/internal/execution"
	"sportsarb/internal/models"
	"sportsarb/internal/schedule"
	"sportsarb/pkg/utils"
)

// orchestrator.go - discovery loop, shard registry wiring, supervisor
// startup (§4.3)
//
// Grounded on internal/exchange/ws_reconnect.go's state-machine/backoff
// idiom (supervisor.go) and internal/bot/engine.go's registry-plus-
// dispatch-loop shape (assignment.go), generalized from one connection's
// or one pair's liveness to a fleet of shards.

// Orchestrator discovers live games per configured sport, assigns each to
// the least-loaded healthy shard, and reassigns games off shards that
// stop heartbeating.
type Orchestrator struct {
	b        *bus.Bus
	provider schedule.Provider
	sports   []models.Sport
	polling  config.PollingConfig
	hb       config.HeartbeatConfig
	logger   *utils.Logger

	shards *shardRegistry

	assignedMu sync.Mutex
	assigned   map[string]string // game_id -> shard_id

	breakersMu sync.Mutex
	breakers   map[models.Sport]*execution.CircuitBreaker

	supervisor *Supervisor

	// onDiscovered, if set, is called once per newly discovered (not yet
	// assigned) game before it is handed to a shard. Lets the process
	// wiring (e.g. the market-discovery RPC server's team registry) learn
	// about a game without the orchestrator importing that package.
	onDiscovered func(models.Game)
}

// OnDiscovered registers a callback invoked for each newly discovered,
// not-yet-assigned game.
func (o *Orchestrator) OnDiscovered(fn func(models.Game)) {
	o.onDiscovered = fn
}

// New validates the configured sport list against the closed enum and
// constructs an Orchestrator. Per §4.3's "input sport/league identifiers
// must be validated against a fixed allowlist," rejecting an unknown
// sport at startup rather than silently skipping it on the first tick.
func New(b *bus.Bus, provider schedule.Provider, sports []models.Sport, polling config.PollingConfig, hb config.HeartbeatConfig) (*Orchestrator, error) {
	for _, sp := range sports {
		if !sp.IsValid() {
			return nil, models.ErrInvalidSport
		}
	}
	return &Orchestrator{
		b:          b,
		provider:   provider,
		sports:     sports,
		polling:    polling,
		hb:         hb,
		logger:     utils.L().WithComponent("orchestrator"),
		shards:     newShardRegistry(),
		assigned:   make(map[string]string),
		breakers:   make(map[models.Sport]*execution.CircuitBreaker),
		supervisor: NewSupervisor(hb, utils.L().WithComponent("supervisor")),
	}, nil
}

// RegisterRestart adds name to the supervisor's stateless-service
// allowlist, associating it with the function the supervisor calls to
// bring it back up. Stateful services (store, cache, messaging, the
// orchestrator itself) must never be registered here (§4.3).
func (o *Orchestrator) RegisterRestart(name string, fn RestartFunc) {
	o.supervisor.Register(name, fn)
}

// RecordHeartbeat feeds the supervisor a liveness signal for a named
// service, distinct from shard heartbeats which arrive over the bus and
// are handled by handleHeartbeat.
func (o *Orchestrator) RecordHeartbeat(name string) {
	o.supervisor.RecordHeartbeat(name)
}

// Run drives the discovery loop, the shard-heartbeat listener, the
// staleness sweep, and the supervisor until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	hbSub := o.b.Subscribe("health:heartbeats")
	defer hbSub.Close()

	discoveryInterval := time.Duration(o.polling.DiscoveryIntervalSecs) * time.Second
	discoveryTicker := time.NewTicker(discoveryInterval)
	defer discoveryTicker.Stop()

	staleTicker := time.NewTicker(time.Duration(o.hb.IntervalSecs) * time.Second)
	defer staleTicker.Stop()

	if o.hb.SupervisorEnabled {
		go o.supervisor.Run(ctx)
	}

	o.runDiscoveryTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-hbSub.C():
			o.handleHeartbeat(env)
		case <-discoveryTicker.C:
			o.runDiscoveryTick(ctx)
		case <-staleTicker.C:
			o.reassignStaleShards(ctx)
		}
	}
}

func (o *Orchestrator) runDiscoveryTick(ctx context.Context) {
	for _, sport := range o.sports {
		o.discoverSport(ctx, sport)
	}
}

// breakerFor returns the per-sport circuit breaker around the schedule
// provider, matching §4.4's "circuit breaker around the schedule
// provider trips on N consecutive failures" for the discovery loop's own
// provider calls.
func (o *Orchestrator) breakerFor(sport models.Sport) *execution.CircuitBreaker {
	o.breakersMu.Lock()
	defer o.breakersMu.Unlock()
	b, ok := o.breakers[sport]
	if !ok {
		b = execution.NewCircuitBreaker(execution.DefaultBreakerConfig())
		o.breakers[sport] = b
	}
	return b
}

func (o *Orchestrator) discoverSport(ctx context.Context, sport models.Sport) {
	breaker := o.breakerFor(sport)
	if !breaker.Allow() {
		return
	}

	games, err := o.provider.ListLive(ctx, sport)
	if err != nil {
		breaker.RecordFailure()
		o.logger.Warn("schedule discovery failed", utils.String("sport", string(sport)), utils.Err(err))
		return
	}
	breaker.RecordSuccess()

	for _, g := range games {
		o.handleDiscoveredGame(ctx, g)
	}
}

func (o *Orchestrator) handleDiscoveredGame(ctx context.Context, g models.Game) {
	o.assignedMu.Lock()
	shardID, known := o.assigned[g.GameID]
	o.assignedMu.Unlock()

	if g.IsTerminal() {
		if known {
			o.removeGame(g.GameID, shardID)
			o.assignedMu.Lock()
			delete(o.assigned, g.GameID)
			o.assignedMu.Unlock()
		}
		// The tracker settles open positions off a terminal transition on
		// games.{sport}.{game_id}; the shard's own game-state ticks never
		// carry a "state" field (GameState has none), so the orchestrator
		// — the only place that actually observes Game.State going
		// terminal — publishes this one broadcast itself.
		o.publishTerminalStatus(g)
		return
	}

	if known {
		return
	}

	if o.onDiscovered != nil {
		o.onDiscovered(g)
	}
	o.assignGame(ctx, g)
}
