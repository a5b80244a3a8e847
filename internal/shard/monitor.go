package shard

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

func unmarshalPayload(raw json.RawMessage, out interface{}) error {
	return json.Unmarshal(raw, out)
}

// monitor.go - монитор одной игры: poll loop, win probability, edge
// detection, debounce (§4.4)
//
// Grounded on internal/bot/engine.go's priceEventWorker/routePriceUpdate/
// checkArbitrageOpportunity trio: a price-update consumer feeds lock-free
// cells, a separate tick driver reads them and decides whether to act.
// Here the tick driver is the poll loop itself (ESPN-style snapshot
// fetch), since §4.4 ties signal emission to the same cadence as the
// state poll rather than to every individual price tick.

// StateProvider fetches the freshest live snapshot for a game. One
// implementation talks to a schedule provider's REST API; tests and the
// paper mode use a canned/fake implementation.
type StateProvider interface {
	Fetch(ctx context.Context, gameID string) (*models.GameState, error)
}

// Monitor tracks one game: polls live state, consumes market prices for
// both teams, computes win probability and edge, and emits TradingSignals
// on the bus.
type Monitor struct {
	game     models.Game
	provider StateProvider
	b        *bus.Bus
	cfg      config.FreshnessConfig
	polling  config.PollingConfig
	logger   *utils.Logger

	breaker *execution.CircuitBreaker

	mu          sync.RWMutex
	state       string
	lastSignal  map[string]time.Time // team -> last emitted-signal time
	lastGame    *models.GameState

	homeCell     PriceCell
	awayCell     PriceCell
	homePlatform models.Platform
	awayPlatform models.Platform

	cancel context.CancelFunc
}

// NewMonitor constructs a Monitor for game, subscribed to its own price
// topics. Callers must call Run in a goroutine and Stop to tear down.
func NewMonitor(game models.Game, provider StateProvider, b *bus.Bus, freshness config.FreshnessConfig, polling config.PollingConfig) *Monitor {
	return &Monitor{
		game:       game,
		provider:   provider,
		b:          b,
		cfg:        freshness,
		polling:    polling,
		logger:     utils.L().WithComponent("shard-monitor").With(utils.GameID(game.GameID)),
		breaker:    execution.NewCircuitBreaker(execution.DefaultBreakerConfig()),
		state:      StateIdle,
		lastSignal: make(map[string]time.Time),
	}
}

// State returns the monitor's current state machine state.
func (m *Monitor) State() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Monitor) transition(to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransition(m.state, to) {
		return
	}
	m.state = to
}

// Run drives the poll loop until ctx is cancelled or Stop is called.
// It also subscribes to this game's price topics for both teams so the
// lock-free cells stay warm between poll ticks.
func (m *Monitor) Run(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.transition(StateMonitoring)

	priceSub := m.b.Subscribe(fmt.Sprintf("prices.*.%s.*", strings.ToLower(m.game.GameID)))
	defer priceSub.Close()
	go m.consumePrices(ctx, priceSub)

	ticker := time.NewTicker(m.polling.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.transition(StateStopped)
			return
		case <-ticker.C:
			m.tick(ctx)
			if m.game.IsTerminal() {
				m.transition(StateStopped)
				return
			}
		}
	}
}

// Stop cancels the monitor's poll loop.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// consumePrices feeds the monitor's lock-free price cells from the bus.
// Payload shape mirrors venue.Book published by the venue streaming
// clients, keyed per (team, platform) by topic convention
// "prices.{venue}.{game_id}.{team}".
func (m *Monitor) consumePrices(ctx context.Context, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			m.handlePriceEnvelope(env)
		}
	}
}

func (m *Monitor) handlePriceEnvelope(env bus.Envelope) {
	parts := strings.Split(env.Topic, ".")
	if len(parts) < 4 {
		return
	}
	venue, team := parts[1], parts[3]

	var quote struct {
		YesBid, YesAsk, YesBidSz, YesAskSz float64
	}
	if err := unmarshalPayload(env.Payload, &quote); err != nil {
		return
	}

	cell := m.cellFor(team)
	if cell == nil {
		return
	}
	cell.Set(quote.YesBid, quote.YesAsk, quote.YesBidSz, quote.YesAskSz, env.PublishTS)

	m.mu.Lock()
	if strings.EqualFold(team, m.game.HomeTeam) {
		m.homePlatform = models.Platform(venue)
	} else {
		m.awayPlatform = models.Platform(venue)
	}
	m.mu.Unlock()
}

func (m *Monitor) cellFor(team string) *PriceCell {
	switch {
	case strings.EqualFold(team, m.game.HomeTeam):
		return &m.homeCell
	case strings.EqualFold(team, m.game.AwayTeam):
		return &m.awayCell
	default:
		return nil
	}
}

// tick executes one poll-loop iteration per §4.4's numbered steps.
func (m *Monitor) tick(ctx context.Context) {
	// Every tick re-enters Monitoring first, whatever the previous tick's
	// outcome was (Emitting/Debounced are one-tick states per §4.4's
	// Monitoring -> (Emitting|Debounced) -> Monitoring cycle).
	m.transition(StateMonitoring)

	if !m.breaker.Allow() {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	gs, err := m.provider.Fetch(fetchCtx, m.game.GameID)
	cancel()
	if err != nil {
		m.breaker.RecordFailure()
		m.logger.Warn("state fetch failed, skipping tick", utils.Err(err))
		return
	}
	m.breaker.RecordSuccess()

	stale := time.Since(gs.FetchedAt) >= m.cfg.GameStateStalenessTTL
	m.storeAndPublish(gs)

	if stale {
		return // still stored the snapshot, but skip signal emission
	}
	if m.game.State != models.GameStateInProgress {
		return
	}

	m.evaluateEdge(gs)
	m.checkArbitrage(time.Now())
}

// assumedRoundTripFee approximates the combined entry+exit fee drag used
// to net out the arbitrage check (§4.4: "net of an assumed round-trip fee").
const assumedRoundTripFee = 0.02

// checkArbitrage runs independently of the model-edge check: it compares
// the cost of buying YES on one side against buying NO (1-yes_bid) on the
// mirrored side, in both directions, and emits an Arbitrage signal if
// either combination nets under 1.0 after fees.
func (m *Monitor) checkArbitrage(now time.Time) {
	home := m.homeCell.Get()
	away := m.awayCell.Get()
	if home.IsStale(now, m.cfg.PriceStalenessTTL) || away.IsStale(now, m.cfg.PriceStalenessTTL) {
		return
	}
	if home.IsPathological() || away.IsPathological() {
		return
	}

	type leg struct {
		team     string
		net      float64
		buyPrice float64
		platform models.Platform
	}
	legs := []leg{
		{team: m.game.HomeTeam, net: home.YesAsk + (1 - away.YesBid), buyPrice: home.YesAsk, platform: m.homePlatform},
		{team: m.game.AwayTeam, net: away.YesAsk + (1 - home.YesBid), buyPrice: away.YesAsk, platform: m.awayPlatform},
	}

	for _, l := range legs {
		if l.net >= 1.0-assumedRoundTripFee {
			continue
		}
		debounceKey := l.team + ":arb"
		if m.debounced(debounceKey, now) {
			continue
		}

		platform := l.platform
		if platform == "" {
			platform = models.PlatformKalshi
		}
		modelProb := 1 - (l.net - l.buyPrice) // implied fair value of the mirrored leg
		signal := models.NewTradingSignal(
			m.game.GameID, m.game.Sport, l.team, models.DirectionBuy, models.SignalArbitrage,
			modelProb, l.buyPrice, platform, l.buyPrice, 0, 1.0, now,
		)
		signal.SignalID = uuid.NewString()

		topic := fmt.Sprintf("signals.trade.%s", m.game.GameID)
		if err := m.b.Publish(topic, signal); err != nil {
			m.logger.Warn("publish arbitrage signal failed", utils.Err(err))
			continue
		}
		m.mu.Lock()
		m.lastSignal[debounceKey] = now
		m.mu.Unlock()
	}
}

func (m *Monitor) storeAndPublish(gs *models.GameState) {
	m.mu.Lock()
	m.lastGame = gs
	m.mu.Unlock()

	topic := fmt.Sprintf("games.%s.%s", m.game.Sport, m.game.GameID)
	if err := m.b.Publish(topic, gs); err != nil {
		m.logger.Warn("publish game state failed", utils.Err(err))
	}
}

// evaluateEdge computes win probability for both teams, reads the
// freshest quote for each, and emits a signal for whichever team has the
// larger absolute edge -- never both, per §4.4 step 6.
func (m *Monitor) evaluateEdge(gs *models.GameState) {
	homeProb := BlendedWinProbability(gs, m.game.Sport)
	awayProb := 1 - homeProb

	homeQuote := m.homeCell.Get()
	awayQuote := m.awayCell.Get()
	now := time.Now()

	m.mu.RLock()
	homePlatform, awayPlatform := m.homePlatform, m.awayPlatform
	m.mu.RUnlock()

	type candidate struct {
		team     string
		prob     float64
		quote    Quote
		platform models.Platform
	}
	candidates := []candidate{
		{team: m.game.HomeTeam, prob: homeProb, quote: homeQuote, platform: homePlatform},
		{team: m.game.AwayTeam, prob: awayProb, quote: awayQuote, platform: awayPlatform},
	}

	var best *candidate
	var bestEdge float64
	for i := range candidates {
		c := &candidates[i]
		if c.quote.IsStale(now, m.cfg.PriceStalenessTTL) || c.quote.IsPathological() {
			continue
		}
		edge := (c.prob - c.quote.Mid()) * 100
		if best == nil || absFloat(edge) > absFloat(bestEdge) {
			best = c
			bestEdge = edge
		}
	}
	if best == nil {
		return
	}

	if m.debounced(best.team, now) {
		m.transition(StateDebounced)
		return
	}

	direction := models.DirectionBuy
	marketProb := best.quote.Mid()
	buyPrice := best.quote.YesAsk
	if bestEdge < 0 {
		direction = models.DirectionSell
		buyPrice = best.quote.YesBid
	}

	platform := best.platform
	if platform == "" {
		platform = models.PlatformKalshi
	}
	signal := models.NewTradingSignal(
		m.game.GameID, m.game.Sport, best.team, direction, models.SignalModelEdgeYes,
		best.prob, marketProb, platform, buyPrice, best.quote.YesAskSize, 1.0, now,
	)
	signal.SignalID = uuid.NewString()

	topic := fmt.Sprintf("signals.trade.%s", m.game.GameID)
	if err := m.b.Publish(topic, signal); err != nil {
		m.logger.Warn("publish signal failed", utils.Err(err))
		return
	}

	m.mu.Lock()
	m.lastSignal[best.team] = now
	m.mu.Unlock()
	m.transition(StateEmitting)
}

func (m *Monitor) debounced(team string, now time.Time) bool {
	m.mu.RLock()
	last, ok := m.lastSignal[team]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return now.Sub(last) < time.Duration(m.polling.SignalDebounceSecs)*time.Second
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
