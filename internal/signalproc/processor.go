package signalproc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sportsarb/internal/bus"
	"sportsarb/internal/config"
	"sportsarb/internal/models"
	"sportsarb/pkg/utils"
)

// processor.go - связка фильтров/риск-проверок/сайзинга в единый процессор (§4.5)
//
// Grounded on internal/shard/monitor.go's Run/tick split: Run owns the
// bus subscriptions and timers, one synchronous per-signal handler does
// the actual work. Decoupled mode only (publish+subscribe over the hot
// plane) — the spec's inline mode is a deployment choice for a future
// cmd, not a second code path here.

// MarketResolver maps a game's platform leg to the concrete market_id an
// order must reference, backed by market discovery's per-game cache.
// Binary-outcome markets trade the whole game on one market_id per
// platform (Yes/No sides cover both teams), so the lookup needs no team
// argument.
type MarketResolver interface {
	Resolve(gameID string, platform models.Platform) (marketID string, ok bool)
}

// Processor consumes TradingSignals and emits ExecutionRequests.
type Processor struct {
	repo      Repository
	b         *bus.Bus
	sizing    config.SizingConfig
	risk      config.RiskConfig
	liquidity config.LiquidityConfig
	dedup     *IdempotencyTracker
	logger    *utils.Logger
	markets   MarketResolver

	rulesMu sync.RWMutex
	rules   []models.TradingRule
}

// SetMarketResolver wires market-id lookup for outgoing ExecutionRequests.
// Left nil (e.g. in tests), MarketID is left empty rather than rejecting
// every signal; once wired, a failed lookup rejects with RejectNoMarket
// instead of placing an order with an empty market_id.
func (p *Processor) SetMarketResolver(r MarketResolver) {
	p.markets = r
}

// New constructs a Processor wired to bus b and backed by repo.
func New(repo Repository, b *bus.Bus, sizing config.SizingConfig, risk config.RiskConfig, liquidity config.LiquidityConfig) *Processor {
	return &Processor{
		repo:      repo,
		b:         b,
		sizing:    sizing,
		risk:      risk,
		liquidity: liquidity,
		dedup:     NewIdempotencyTracker(),
		logger:    utils.L().WithComponent("signalproc"),
	}
}

// Run drives the processor until ctx is cancelled: subscribes to
// signals.trade.* and feedback:rules, and runs the idempotency GC every
// 60s.
func (p *Processor) Run(ctx context.Context) {
	p.reloadRules(ctx)

	sigSub := p.b.Subscribe("signals.trade.*")
	defer sigSub.Close()
	ruleSub := p.b.Subscribe("feedback:rules")
	defer ruleSub.Close()

	gcTicker := time.NewTicker(idempotencyGCEvery)
	defer gcTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sigSub.C():
			if !ok {
				return
			}
			p.handleSignal(ctx, env)
		case _, ok := <-ruleSub.C():
			if !ok {
				return
			}
			p.reloadRules(ctx)
		case now := <-gcTicker.C:
			p.dedup.GC(now)
		}
	}
}

func (p *Processor) reloadRules(ctx context.Context) {
	rules, err := p.repo.ActiveRules(ctx, time.Now())
	if err != nil {
		p.logger.Warn("failed to reload trading rules", utils.Err(err))
		return
	}
	p.rulesMu.Lock()
	p.rules = rules
	p.rulesMu.Unlock()
}

func (p *Processor) activeRules() []models.TradingRule {
	p.rulesMu.RLock()
	defer p.rulesMu.RUnlock()
	return p.rules
}

func (p *Processor) handleSignal(ctx context.Context, env bus.Envelope) {
	var sig models.TradingSignal
	if err := json.Unmarshal(env.Payload, &sig); err != nil {
		p.logger.Warn("discarding malformed trading signal", utils.Err(err))
		return
	}

	now := time.Now()
	filtered := RunPreTradeFilters(ctx, &sig, p.repo, p.sizing, p.risk, p.activeRules(), now)
	if filtered.Rejected {
		p.reject(&sig, filtered.Reason, filtered.Detail, now)
		return
	}

	bankroll, err := p.repo.GetBankroll(ctx)
	if err != nil {
		p.logger.Warn("failed to read bankroll for sizing", utils.Err(err))
		p.reject(&sig, models.RejectBankrollUnavailable, err.Error(), now)
		return
	}

	sizeCents := SizePosition(&sig, bankroll.CurrentBalanceCents, p.sizing, p.liquidity)
	if sizeCents == 0 {
		p.reject(&sig, models.RejectSizeBelowFloor, "", now)
		return
	}

	if reason := RunRiskChecks(ctx, &sig, p.repo, p.risk, p.liquidity, sizeCents, bankroll.CurrentBalanceCents); reason != "" {
		p.reject(&sig, reason, "", now)
		return
	}

	var marketID string
	if p.markets != nil {
		var ok bool
		marketID, ok = p.markets.Resolve(sig.GameID, sig.PlatformBuy)
		if !ok {
			p.reject(&sig, models.RejectNoMarket, string(sig.PlatformBuy), now)
			return
		}
	}

	idemKey := models.IdempotencyKeyFor(sig.GameID, sig.Team, sig.Direction)
	if !p.dedup.TryAcquire(idemKey, now) {
		p.reject(&sig, models.RejectAlreadyInFlight, idemKey, now)
		return
	}

	req := models.ExecutionRequest{
		RequestID:      uuid.NewString(),
		IdempotencyKey: idemKey,
		GameID:         sig.GameID,
		Sport:          sig.Sport,
		Team:           sig.Team,
		SignalID:       sig.SignalID,
		Platform:       sig.PlatformBuy,
		MarketID:       marketID,
		Side:           sideFor(sig.Direction),
		LimitPrice:     LimitPrice(sig.Direction, sig.BuyPrice),
		Size:           utils.CentsToDollars(sizeCents),
		EdgePct:        sig.EdgePct,
		ModelProb:      sig.ModelProb,
		MarketProb:     sig.MarketProb,
	}

	topic := fmt.Sprintf("execution.request.%s", req.RequestID)
	if err := p.b.Publish(topic, req); err != nil {
		p.logger.Warn("failed to publish execution request", utils.Err(err))
		p.dedup.Release(idemKey)
		return
	}
	executionRequestsTotal.Inc()
}

func (p *Processor) reject(sig *models.TradingSignal, reason models.RejectionReason, detail string, now time.Time) {
	rejectionsTotal.WithLabelValues(string(reason)).Inc()
	if detail != "" {
		detail = sig.Team + ": " + detail
	} else {
		detail = sig.Team
	}
	event := models.NotificationEvent{
		EventID: sig.SignalID, Kind: "rejection", Reason: reason,
		GameID: sig.GameID, Detail: detail, CreatedAt: now,
	}
	if err := p.b.Publish("notification:events", event); err != nil {
		p.logger.Warn("failed to publish rejection notification", utils.Err(err))
	}
}
