package orchestrator

import (
	"context"
	"sync"
	"time"

	"sportsarb/internal/config"
	"sportsarb/pkg/utils"
)

// supervisor.go - bounded auto-restart policy for stateless services
// (§4.3)
//
// Grounded on internal/exchange/ws_reconnect.go's reconnectLoop: a
// per-entity retry counter, fixed backoff schedule instead of exponential-
// times-attempt, and a terminal give-up state once the attempt cap is
// hit. Unlike the websocket reconnector (which keeps retrying forever),
// §4.3 bounds attempts at K and then cools down and alerts rather than
// retrying indefinitely.

// RestartFunc brings a named stateless service back up. It should block
// until the service is either running again or has failed to start.
type RestartFunc func(ctx context.Context) error

type serviceRecord struct {
	restart        RestartFunc
	lastHeartbeat  time.Time
	missedBeats    int
	restartAttempt int
	cooldownUntil  time.Time
}

// Supervisor watches a named allowlist of stateless services for missed
// heartbeats and restarts them with bounded, backed-off attempts. Stateful
// services (store, cache, messaging, the orchestrator itself) must never
// be registered.
type Supervisor struct {
	cfg    config.HeartbeatConfig
	logger *utils.Logger

	mu       sync.Mutex
	services map[string]*serviceRecord
}

func NewSupervisor(cfg config.HeartbeatConfig, logger *utils.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, logger: logger, services: make(map[string]*serviceRecord)}
}

// Register adds name to the allowlist with its restart function. Safe to
// call before or after Run starts.
func (s *Supervisor) Register(name string, fn RestartFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[name] = &serviceRecord{restart: fn, lastHeartbeat: time.Now()}
}

// RecordHeartbeat resets a service's missed-beat counter. Call this from
// wherever the named service reports liveness (e.g. a periodic self-ping
// inside its own run loop).
func (s *Supervisor) RecordHeartbeat(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.services[name]; ok {
		rec.lastHeartbeat = time.Now()
		rec.missedBeats = 0
		rec.restartAttempt = 0
	}
}

// Run checks every registered service once per heartbeat interval and
// restarts any that have missed MissThreshold consecutive beats.
func (s *Supervisor) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.IntervalSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx, interval)
		}
	}
}

func (s *Supervisor) checkAll(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	due := make([]string, 0, len(s.services))
	for name, rec := range s.services {
		if time.Since(rec.lastHeartbeat) < interval {
			continue
		}
		if time.Now().Before(rec.cooldownUntil) {
			continue
		}
		rec.missedBeats++
		if rec.missedBeats >= s.cfg.MissThreshold {
			due = append(due, name)
		}
	}
	s.mu.Unlock()

	for _, name := range due {
		s.attemptRestart(ctx, name)
	}
}

func (s *Supervisor) attemptRestart(ctx context.Context, name string) {
	s.mu.Lock()
	rec, ok := s.services[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	attempt := rec.restartAttempt
	s.mu.Unlock()

	if attempt >= s.cfg.MaxRestartAttempts {
		s.enterCooldown(name)
		return
	}

	delay := s.backoffFor(attempt)
	s.logger.Warn("service missed heartbeats, restarting",
		utils.String("service", name), utils.Int("attempt", attempt+1), utils.Float64("delay_secs", delay.Seconds()))

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	err := rec.restart(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	rec.restartAttempt++
	if err != nil {
		s.logger.Warn("restart attempt failed", utils.String("service", name), utils.Err(err))
		if rec.restartAttempt >= s.cfg.MaxRestartAttempts {
			s.enterCooldownLocked(name, rec)
		}
		return
	}
	rec.missedBeats = 0
	rec.restartAttempt = 0
	rec.lastHeartbeat = time.Now()
	s.logger.Info("service restarted successfully", utils.String("service", name))
}

// backoffFor computes attempt's delay from cfg.RestartBackoffSecs tripled
// per attempt, reproducing §4.3's "5,15,45s" schedule when
// RestartBackoffSecs is left at its default of 5.
func (s *Supervisor) backoffFor(attempt int) time.Duration {
	base := time.Duration(s.cfg.RestartBackoffSecs) * time.Second
	if base <= 0 {
		base = 5 * time.Second
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 3
	}
	return delay
}

// enterCooldown puts a service into cooldown after exhausting its
// restart attempts, per §4.3: "then enter cooldown and alert."
func (s *Supervisor) enterCooldown(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.services[name]; ok {
		s.enterCooldownLocked(name, rec)
	}
}

func (s *Supervisor) enterCooldownLocked(name string, rec *serviceRecord) {
	rec.cooldownUntil = time.Now().Add(time.Duration(s.cfg.RestartCooldownSecs) * time.Second)
	rec.missedBeats = 0
	rec.restartAttempt = 0
	s.logger.Error("service exhausted restart attempts, entering cooldown",
		utils.String("service", name), utils.Int("cooldown_secs", s.cfg.RestartCooldownSecs))
	// TODO: wire to an external alerting channel once one exists; for now
	// the Error-level log line is the alert.
}
