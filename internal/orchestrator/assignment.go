package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"sportsarb/internal/bus"
	"sportsarb/internal/models"
	"sportsarb/pkg/utils"
)

// assignment.go - shard health registry and the assignment protocol
// (§4.3: "maintains a set of shard identities with heartbeats...
// selects the healthy shard with fewest assignments")
//
// Grounded on internal/bot/engine.go's pairsBySymbol registry shape,
// applied here to shards instead of trading pairs: a mutex-guarded map
// updated from one side by a bus subscription (heartbeats) and read from
// the other by the discovery loop's assignment decision.

// shardHeartbeat mirrors the payload Shard.heartbeat publishes on
// health:heartbeats.
type shardHeartbeat struct {
	ShardID   string `json:"shard_id"`
	GameCount int    `json:"game_count"`
	Timestamp int64  `json:"timestamp"`
}

// shardAssignCommand mirrors internal/shard.shardAssignCommand; kept as a
// parallel type (rather than an import) since the wire contract, not the
// Go type, is what both sides must agree on.
type shardAssignCommand struct {
	Action string      `json:"action"`
	Game   models.Game `json:"game"`
}

type shardRecord struct {
	lastSeen    time.Time
	gameCount   int
	assignedIDs map[string]bool
}

type shardRegistry struct {
	mu     sync.Mutex
	shards map[string]*shardRecord
}

func newShardRegistry() *shardRegistry {
	return &shardRegistry{shards: make(map[string]*shardRecord)}
}

func (r *shardRegistry) touch(hb shardHeartbeat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.shards[hb.ShardID]
	if !ok {
		rec = &shardRecord{assignedIDs: make(map[string]bool)}
		r.shards[hb.ShardID] = rec
	}
	rec.lastSeen = time.Now()
	rec.gameCount = hb.GameCount
}

// pickHealthy returns the shard ID with the fewest assignments among those
// seen within staleAfter, or "" if none are healthy. A shard's count is
// the larger of the assignments tracked here and the game_count its last
// heartbeat reported.
func (r *shardRegistry) pickHealthy(staleAfter time.Duration) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	best := ""
	bestCount := -1
	cutoff := time.Now().Add(-staleAfter)
	for id, rec := range r.shards {
		if rec.lastSeen.Before(cutoff) {
			continue
		}
		n := len(rec.assignedIDs)
		if rec.gameCount > n {
			n = rec.gameCount
		}
		if bestCount == -1 || n < bestCount {
			best = id
			bestCount = n
		}
	}
	return best
}

func (r *shardRegistry) recordAssignment(shardID, gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.shards[shardID]
	if !ok {
		rec = &shardRecord{assignedIDs: make(map[string]bool)}
		r.shards[shardID] = rec
	}
	rec.assignedIDs[gameID] = true
}

func (r *shardRegistry) recordRemoval(shardID, gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.shards[shardID]; ok {
		delete(rec.assignedIDs, gameID)
	}
}

// stale returns shard IDs unseen for longer than staleAfter, along with
// the game IDs assigned to each, removing them from the registry so a
// dead shard isn't picked again.
func (r *shardRegistry) stale(staleAfter time.Duration) map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]string)
	cutoff := time.Now().Add(-staleAfter)
	for id, rec := range r.shards {
		if rec.lastSeen.IsZero() || rec.lastSeen.After(cutoff) {
			continue
		}
		games := make([]string, 0, len(rec.assignedIDs))
		for gid := range rec.assignedIDs {
			games = append(games, gid)
		}
		out[id] = games
		delete(r.shards, id)
	}
	return out
}

// staleAfter is the shard-unhealthy threshold: HEARTBEAT_TTL_SECS,
// configured independently of IntervalSecs but intended to track roughly
// 3x it (§4.3's ">3x heartbeat interval marks it unhealthy"), falling
// back to a literal 3x multiple if TTLSecs was left unset.
func (o *Orchestrator) staleAfter() time.Duration {
	if o.hb.TTLSecs > 0 {
		return time.Duration(o.hb.TTLSecs) * time.Second
	}
	return 3 * time.Duration(o.hb.IntervalSecs) * time.Second
}

func (o *Orchestrator) handleHeartbeat(env bus.Envelope) {
	var hb shardHeartbeat
	if err := json.Unmarshal(env.Payload, &hb); err != nil {
		o.logger.Warn("malformed shard heartbeat", utils.Err(err))
		return
	}
	if hb.ShardID == "" {
		return
	}
	o.shards.touch(hb)
}

// assignGame selects the healthy shard with fewest assignments and
// publishes an "assign" command, per §4.3.
func (o *Orchestrator) assignGame(ctx context.Context, g models.Game) {
	shardID := o.shards.pickHealthy(o.staleAfter())
	if shardID == "" {
		o.logger.Warn("no healthy shard available for assignment", utils.GameID(g.GameID))
		return
	}

	if err := o.publishCommand(shardID, "assign", g); err != nil {
		o.logger.Warn("assign command publish failed", utils.GameID(g.GameID), utils.Err(err))
		return
	}

	o.shards.recordAssignment(shardID, g.GameID)
	o.assignedMu.Lock()
	o.assigned[g.GameID] = shardID
	o.assignedMu.Unlock()
	o.logger.Info("game assigned", utils.GameID(g.GameID), utils.ShardID(shardID))
}

func (o *Orchestrator) removeGame(gameID, shardID string) {
	if shardID == "" {
		return
	}
	if err := o.publishCommand(shardID, "remove", models.Game{GameID: gameID}); err != nil {
		o.logger.Warn("remove command publish failed", utils.GameID(gameID), utils.Err(err))
	}
	o.shards.recordRemoval(shardID, gameID)
}

func (o *Orchestrator) publishCommand(shardID, action string, g models.Game) error {
	return o.b.Publish(fmt.Sprintf("shard:%s:command", shardID), shardAssignCommand{Action: action, Game: g})
}

// publishTerminalStatus broadcasts g's terminal state on
// games.{sport}.{game_id}, the same topic shards publish GameState ticks
// on, so the tracker's settlement handler (which looks for a "state" key
// that only this envelope, not a plain GameState snapshot, carries) fires.
func (o *Orchestrator) publishTerminalStatus(g models.Game) {
	topic := fmt.Sprintf("games.%s.%s", g.Sport, g.GameID)
	if err := o.b.Publish(topic, g); err != nil {
		o.logger.Warn("terminal status publish failed", utils.GameID(g.GameID), utils.Err(err))
	}
}

// reassignStaleShards finds shards absent from heartbeats for longer than
// staleAfter(), drops them from the registry and clears their games'
// assignments, so the next discovery tick assigns each of those games to
// a healthy shard. It publishes no assign command itself.
func (o *Orchestrator) reassignStaleShards(ctx context.Context) {
	dead := o.shards.stale(o.staleAfter())

	for shardID, gameIDs := range dead {
		if len(gameIDs) == 0 {
			continue
		}
		o.logger.Warn("shard unhealthy, reassigning games",
			utils.ShardID(shardID), utils.Int("game_count", len(gameIDs)))

		for _, gameID := range gameIDs {
			o.assignedMu.Lock()
			delete(o.assigned, gameID)
			o.assignedMu.Unlock()

			// The dead shard's own monitor goroutines are gone; only a
			// fresh discovery tick (or a replay from the store) carries
			// enough game context (sport/teams) to reassign. Clearing the
			// assignment here lets the next discovery tick re-route it.
		}
	}
}
