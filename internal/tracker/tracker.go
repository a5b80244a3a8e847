package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sportsarb/internal/bus"
	"sportsarb/internal/config"
	"sportsarb/internal/execution"
	"sportsarb/internal/models"
	"sportsarb/pkg/utils"
)

// tracker.go - position tracker (§4.7): entry on fill, exit-check loop,
// settlement on Final, bankroll close-accounting, orphan sweep.
//
// Grounded on internal/shard/monitor.go's subscribe-plus-ticker Run shape
// (one goroutine per concern, a single select loop driving them), adapted
// from one-game-per-monitor to one-process-wide tracker since position
// count is small relative to live-game count (§5: "position count much
// smaller" than the per-market cell traffic the shard handles).

const orphanSweepInterval = 5 * time.Minute
const statsLogInterval = 60 * time.Second

// orphanStaleAfter is how long a position may sit Open before the sweep
// treats it as orphaned (its game-end message presumably lost) and closes
// it against the freshest mark, per §4.7.
const orphanStaleAfter = 4 * time.Hour

// Tracker watches every open position across all games, closing them on
// take-profit/stop-loss/settlement and keeping bankroll accounting exact.
type Tracker struct {
	repo    Repository
	b       *bus.Bus
	engine  *execution.Engine
	book    *Pricebook
	freshness config.FreshnessConfig
	polling config.PollingConfig
	logger  *utils.Logger
	stats   listenerStats

	pendingMu sync.Mutex
	pending   map[string]models.ExecutionRequest // request_id -> request, until its result arrives

	enteredMu sync.Mutex
	entered   map[string]bool // request_id -> true once a position row exists (dedup)

	debounceMu sync.Mutex
	debounce   map[string]int // trade_id -> consecutive exit-trigger count
}

// New constructs a Tracker wired to bus b, backed by repo for storage and
// engine for placing exit orders.
func New(repo Repository, b *bus.Bus, engine *execution.Engine, freshness config.FreshnessConfig, polling config.PollingConfig) *Tracker {
	return &Tracker{
		repo:      repo,
		b:         b,
		engine:    engine,
		book:      NewPricebook(),
		freshness: freshness,
		polling:   polling,
		logger:    utils.L().WithComponent("tracker"),
		pending:   make(map[string]models.ExecutionRequest),
		entered:   make(map[string]bool),
		debounce:  make(map[string]int),
	}
}

// Run drives every tracker subsystem until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	reqSub := t.b.Subscribe("execution.request.*")
	defer reqSub.Close()
	resultSub := t.b.Subscribe("execution.result.*")
	defer resultSub.Close()
	priceSub := t.b.Subscribe("prices.*.*.*")
	defer priceSub.Close()
	gameSub := t.b.Subscribe("games.*.*")
	defer gameSub.Close()

	stop := make(chan struct{})
	defer close(stop)
	go t.stats.logPeriodically(t.logger, statsLogInterval, stop)

	exitTicker := time.NewTicker(t.polling.ExitCheckInterval)
	defer exitTicker.Stop()
	orphanTicker := time.NewTicker(orphanSweepInterval)
	defer orphanTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-reqSub.C():
			if !ok {
				return
			}
			t.rememberRequest(env)
		case env, ok := <-resultSub.C():
			if !ok {
				return
			}
			t.handleExecutionResult(ctx, env)
		case env, ok := <-priceSub.C():
			if !ok {
				return
			}
			t.handlePriceEnvelope(env)
		case env, ok := <-gameSub.C():
			if !ok {
				return
			}
			t.handleGameEnvelope(ctx, env)
		case <-exitTicker.C:
			t.checkExits(ctx)
		case <-orphanTicker.C:
			t.sweepOrphans(ctx)
		}
	}
}

func (t *Tracker) rememberRequest(env bus.Envelope) {
	var req models.ExecutionRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return
	}
	t.pendingMu.Lock()
	t.pending[req.RequestID] = req
	t.pendingMu.Unlock()
}

func (t *Tracker) takeRequest(requestID string) (models.ExecutionRequest, bool) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	req, ok := t.pending[requestID]
	if ok {
		delete(t.pending, requestID)
	}
	return req, ok
}

func (t *Tracker) handlePriceEnvelope(env bus.Envelope) {
	t.stats.received()
	parts := strings.Split(env.Topic, ".")
	if len(parts) < 4 {
		t.stats.parseFailure()
		return
	}
	venue, team := parts[1], parts[3]

	var quote struct {
		YesBid, YesAsk, YesBidSz, YesAskSz float64
	}
	if err := json.Unmarshal(env.Payload, &quote); err != nil {
		t.stats.parseFailure()
		return
	}
	if team == "" {
		t.stats.noTeam()
		return
	}
	if quote.YesBidSz <= 0 && quote.YesAskSz <= 0 {
		t.stats.noLiquidity()
		return
	}

	ts := env.PublishTS
	if ts.IsZero() {
		ts = time.Now()
	}
	t.book.Set(models.Platform(venue), team, quote.YesBid, quote.YesAsk, ts)
	t.stats.processed()
}

func (t *Tracker) handleExecutionResult(ctx context.Context, env bus.Envelope) {
	var result models.ExecutionResult
	if err := json.Unmarshal(env.Payload, &result); err != nil {
		t.logger.Warn("discarding malformed execution result", utils.Err(err))
		return
	}
	if result.Status != models.ExecutionFilled && result.Status != models.ExecutionPartial {
		return
	}
	if result.FilledQty <= 0 {
		return
	}

	t.enteredMu.Lock()
	if t.entered[result.RequestID] {
		t.enteredMu.Unlock()
		return
	}
	t.entered[result.RequestID] = true
	t.enteredMu.Unlock()

	req, ok := t.takeRequest(result.RequestID)
	if !ok {
		t.logger.Warn("execution result with no matching pending request", utils.RequestID(result.RequestID))
		return
	}

	pos := &models.OpenPosition{
		TradeID:        result.RequestID,
		GameID:         req.GameID,
		Sport:          req.Sport,
		Team:           req.Team,
		Side:           req.Side,
		Platform:       req.Platform,
		MarketID:       req.MarketID,
		EntryPriceCents: utils.CentsFromDollars(result.AvgPrice),
		SizeCents:      utils.CentsFromDollars(req.Size),
		EntryTime:      time.Now(),
		EntryFeesCents: result.EntryFeesCents,
		Status:         models.PositionOpen,
	}

	if err := t.repo.InsertPosition(ctx, pos); err != nil {
		t.logger.Warn("failed to insert entered position", utils.Err(err))
		return
	}

	topic := fmt.Sprintf("trades.entered.%s", pos.GameID)
	if err := t.b.Publish(topic, pos); err != nil {
		t.logger.Warn("failed to publish trade-entered event", utils.Err(err))
	}
}

// gameStatus is the minimal shape read off games.{sport}.{game_id}
// looking only for a terminal transition; a plain GameState snapshot
// tick (no "state" key) unmarshals with an empty State and is ignored.
type gameStatus struct {
	GameID string `json:"game_id"`
	State  string `json:"state"`
}

func (t *Tracker) handleGameEnvelope(ctx context.Context, env bus.Envelope) {
	var status gameStatus
	if err := json.Unmarshal(env.Payload, &status); err != nil {
		return
	}
	if status.State != models.GameStateFinal {
		return
	}
	t.settleGame(ctx, status.GameID)
}

func (t *Tracker) settleGame(ctx context.Context, gameID string) {
	positions, err := t.repo.OpenPositionsForGame(ctx, gameID)
	if err != nil {
		t.logger.Warn("failed to load open positions for settlement", utils.Err(err), utils.GameID(gameID))
		return
	}
	for _, p := range positions {
		t.closeAndRecord(ctx, p, t.settlementPriceCents(p), true)
	}
}

// settlementPriceCents marks a position 100 (won) unless the freshest book
// says its own-side price closed under the mid, in which case it's 0
// (lost). A missing book defaults to 100 -- the game is already Final by
// the time this runs, so a stale/absent quote is rarer than a real win.
func (t *Tracker) settlementPriceCents(p *models.OpenPosition) int64 {
	yesBid, yesAsk, _, ok := t.book.Get(p.Platform, p.Team)
	if ok && ourPrice(p.Side, yesBid, yesAsk) < 0.5 {
		return 0
	}
	return 100
}

// checkExits runs one pass of §4.7's exit evaluation over every open
// position: skips positions still inside their minimum hold window or
// whose book is stale/too wide to trust, then applies the debounce before
// acting on a triggered exit.
func (t *Tracker) checkExits(ctx context.Context) {
	positions, err := t.repo.OpenPositions(ctx)
	if err != nil {
		t.logger.Warn("failed to load open positions for exit check", utils.Err(err))
		return
	}

	now := time.Now()
	minHold := time.Duration(t.polling.MinHoldSeconds) * time.Second
	for _, p := range positions {
		if p.HeldFor(now) < minHold {
			continue
		}

		yesBid, yesAsk, ts, ok := t.book.Get(p.Platform, p.Team)
		if !ok || now.Sub(ts) > t.freshness.PriceStalenessTTL {
			continue
		}
		if spread := yesAsk - yesBid; spread < 0 || spread > maxSpreadForExit {
			continue
		}

		decision := evaluateExit(p, yesBid, yesAsk, t.polling)
		if decision == exitNone {
			t.clearDebounce(p.TradeID)
			continue
		}
		if !t.debounceTrigger(p.TradeID) {
			continue
		}
		t.executeExit(ctx, p, decision, yesBid, yesAsk)
	}
}

func (t *Tracker) debounceTrigger(tradeID string) bool {
	t.debounceMu.Lock()
	defer t.debounceMu.Unlock()
	t.debounce[tradeID]++
	if t.debounce[tradeID] >= exitDebounceCount {
		delete(t.debounce, tradeID)
		return true
	}
	return false
}

func (t *Tracker) clearDebounce(tradeID string) {
	t.debounceMu.Lock()
	delete(t.debounce, tradeID)
	t.debounceMu.Unlock()
}

// executeExit places a symmetric IOC order on the opposite side of p
// (§4.7: "closes positions via symmetric IOC orders"), since
// execution.Engine.Execute only ever places Buy orders -- exiting a Yes
// holding means buying No, and vice versa. The position's own-side exit
// mark is 1-avg_price, mirroring signalproc.LimitPrice's Sell convention.
func (t *Tracker) executeExit(ctx context.Context, p *models.OpenPosition, decision exitDecision, yesBid, yesAsk float64) {
	exitSide := models.SideYes
	limitPrice := yesAsk
	if p.Side == models.SideYes {
		exitSide = models.SideNo
		limitPrice = 1 - yesBid
	}

	req := models.ExecutionRequest{
		RequestID:      uuid.NewString(),
		IdempotencyKey: p.TradeID + ":exit",
		GameID:         p.GameID,
		Sport:          p.Sport,
		Team:           p.Team,
		Platform:       p.Platform,
		MarketID:       p.MarketID,
		Side:           exitSide,
		LimitPrice:     limitPrice,
		Size:           utils.CentsToDollars(p.SizeCents),
	}

	result := t.engine.Execute(ctx, req)
	if result.Status != models.ExecutionFilled && result.Status != models.ExecutionPartial {
		t.logger.Warn("exit order not filled, will re-evaluate next tick",
			utils.String("trade_id", p.TradeID), utils.String("status", string(result.Status)),
			utils.String("error", result.Error))
		return
	}

	t.logger.Info("position exited",
		utils.String("trade_id", p.TradeID), utils.Int("exit_decision", int(decision)))
	exitPriceCents := utils.CentsFromDollars(1 - result.AvgPrice)
	t.closeAndRecord(ctx, p, exitPriceCents, false)
}

// closeAndRecord finalizes p's exit fields, persists the close, and
// applies the net pnl to the bankroll.
func (t *Tracker) closeAndRecord(ctx context.Context, p *models.OpenPosition, exitPriceCents int64, settled bool) {
	result := closePosition(p, exitPriceCents)

	exitTime := time.Now()
	p.ExitPriceCents = &result.ExitPriceCents
	p.ExitTime = &exitTime
	p.ExitFeesCents = &result.ExitFeesCents
	p.PnlGrossCents = &result.PnlGrossCents
	p.PnlNetCents = &result.PnlNetCents
	p.Outcome = &result.Outcome
	if settled {
		p.Status = models.PositionSettled
	} else {
		p.Status = models.PositionClosed
	}

	if err := t.repo.ClosePosition(ctx, p, settled); err != nil {
		t.logger.Warn("failed to persist closed position", utils.Err(err), utils.String("trade_id", p.TradeID))
		return
	}

	netCents := result.PnlNetCents
	if err := t.applyBankrollDelta(ctx, func(b models.Bankroll) models.Bankroll {
		return applyToBankroll(b, netCents)
	}); err != nil {
		t.logger.Warn("failed to update bankroll after close", utils.Err(err), utils.String("trade_id", p.TradeID))
	}

	t.clearDebounce(p.TradeID)
}

// sweepOrphans closes positions that outran orphanStaleAfter without ever
// seeing a Final message for their game, per §4.7's 5-minute safety net.
func (t *Tracker) sweepOrphans(ctx context.Context) {
	orphans, err := t.repo.OrphanPositions(ctx, orphanStaleAfter)
	if err != nil {
		t.logger.Warn("orphan sweep query failed", utils.Err(err))
		return
	}
	for _, p := range orphans {
		t.logger.Warn("closing orphaned position via sweep", utils.String("trade_id", p.TradeID), utils.GameID(p.GameID))
		t.closeAndRecord(ctx, p, t.settlementPriceCents(p), true)
	}
}
