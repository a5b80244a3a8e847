package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"sportsarb/internal/bus"
	"sportsarb/internal/config"
	"sportsarb/internal/models"
	"sportsarb/internal/venue"
	"sportsarb/pkg/ratelimit"
	"sportsarb/pkg/retry"
	"sportsarb/pkg/utils"
)

// engine.go - оркестрация исполнения IOC-ордеров (§4.6)
//
// Adapted from internal/service/risk_service.go's documented placement
// rationale (direct state access, no DB round-trip on the hot path) and
// internal/bot/order.go's OrderExecutor shape: one stateless call per
// ExecutionRequest, venue clients and rate limiters held by name.

// Engine routes ExecutionRequests to the right venue client, enforcing
// per-venue rate limiting and circuit breaking, and returns ExecutionResult.
type Engine struct {
	venues    map[models.Platform]venue.Venue
	breakers  map[models.Platform]*CircuitBreaker
	limiter   *ratelimit.MultiLimiter
	orderSeq  uint64
	paperMode bool
	logger    *utils.Logger
}

func NewEngine(venues map[models.Platform]venue.Venue, cfg *config.Config) *Engine {
	limiter := ratelimit.NewMultiLimiter()
	breakers := make(map[models.Platform]*CircuitBreaker)
	for platform := range venues {
		// Conservative default: venue APIs publish burstier limits in
		// practice, but the shared default keeps every venue admitted by
		// the same policy until a platform-specific override is added.
		limiter.Add(string(platform), 5, 10)
		breakers[platform] = NewCircuitBreaker(DefaultBreakerConfig())
	}

	return &Engine{
		venues:    venues,
		breakers:  breakers,
		limiter:   limiter,
		paperMode: cfg.Mode.PaperTrading,
		logger:    utils.L().WithComponent("execution-engine"),
	}
}

// NextClientOrderID builds "arb{unix_seconds}{counter}" with a process-wide
// atomic counter per §4.6.
func (e *Engine) NextClientOrderID(now time.Time) string {
	counter := atomic.AddUint64(&e.orderSeq, 1)
	return models.ClientOrderID(now.Unix(), counter)
}

// Execute places req's IOC order against its venue, handling rate-limit
// retries (which do not count against the circuit breaker) and recording
// circuit-breaker outcomes for any other failure.
func (e *Engine) Execute(ctx context.Context, req models.ExecutionRequest) *models.ExecutionResult {
	v, ok := e.venues[req.Platform]
	if !ok {
		return rejected(req.RequestID, fmt.Sprintf("no venue client registered for %s", req.Platform))
	}

	breaker := e.breakers[req.Platform]
	if breaker != nil && !breaker.Allow() {
		return rejected(req.RequestID, "circuit breaker open for "+string(req.Platform))
	}

	if err := e.limiter.Wait(ctx, string(req.Platform)); err != nil {
		return rejected(req.RequestID, "rate limiter wait: "+err.Error())
	}

	orderReq := venue.OrderRequest{
		ClientOrderID: e.NextClientOrderID(time.Now()),
		MarketID:      req.MarketID,
		Side:          req.Side,
		Direction:     models.DirectionBuy,
		LimitPrice:    req.LimitPrice,
		Size:          req.Size,
	}

	result, err := retry.DoWithResult(ctx, func() (*venue.OrderResult, error) {
		res, err := v.PlaceOrder(ctx, orderReq)
		if err != nil {
			if _, isRateLimit := err.(*venue.RateLimitError); isRateLimit {
				// Rate-limit retries must not decrement the breaker (§4.6).
				return nil, err
			}
			if breaker != nil {
				breaker.RecordFailure()
			}
			return nil, retry.Permanent(err)
		}
		if breaker != nil {
			breaker.RecordSuccess()
		}
		return res, nil
	}, rateLimitRetryConfig())
	if err != nil {
		return rejected(req.RequestID, err.Error())
	}

	return &models.ExecutionResult{
		RequestID: req.RequestID,
		Status:    result.Status,
		OrderID:   result.OrderID,
		FilledQty: result.FilledQty,
		AvgPrice:  result.AvgPrice,
	}
}

// Run subscribes to execution.request.* until ctx is cancelled, placing
// each request against its venue and publishing the outcome on
// execution.result.{request_id} — closing the loop signalproc's
// ExecutionRequest and the tracker's entry/exit correlation both depend
// on (§4.5, §4.7).
func (e *Engine) Run(ctx context.Context, b *bus.Bus) {
	sub := b.Subscribe("execution.request.*")
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-sub.C():
			e.handleRequest(ctx, b, env)
		}
	}
}

func (e *Engine) handleRequest(ctx context.Context, b *bus.Bus, env bus.Envelope) {
	var req models.ExecutionRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		e.logger.Warn("malformed execution request", utils.Err(err))
		return
	}

	result := e.Execute(ctx, req)

	topic := fmt.Sprintf("execution.result.%s", result.RequestID)
	if err := b.Publish(topic, result); err != nil {
		e.logger.Warn("execution result publish failed", utils.RequestID(result.RequestID), utils.Err(err))
	}
}

// rateLimitRetryConfig matches §4.6: exponential backoff starting at 2s,
// doubling, up to 5 attempts.
func rateLimitRetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:   5,
		InitialDelay: 2 * time.Second,
		MaxDelay:     32 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
		RetryIf:      retry.IsRetryable,
	}
}

func rejected(requestID, reason string) *models.ExecutionResult {
	return &models.ExecutionResult{
		RequestID: requestID,
		Status:    models.ExecutionRejected,
		Error:     reason,
	}
}
