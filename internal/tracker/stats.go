package tracker

import (
	"sync/atomic"
	"time"

	"sportsarb/pkg/utils"
)

// stats.go - atomic price-listener counters (§4.7)
//
// Grounded on internal/bot/metrics.go's counter-field-plus-periodic-log
// pattern, generalized from Prometheus counters to plain atomics here
// since these are logged, not scraped (§4.7 only asks for periodic
// logging and a parse-failure-rate alert, not an exported metric).

type listenerStats struct {
	messagesReceived  uint64
	messagesProcessed uint64
	parseFailures     uint64
	noLiquiditySkipped uint64
	noTeamSkipped     uint64
}

func (s *listenerStats) received()  { atomic.AddUint64(&s.messagesReceived, 1) }
func (s *listenerStats) processed() { atomic.AddUint64(&s.messagesProcessed, 1) }
func (s *listenerStats) parseFailure() { atomic.AddUint64(&s.parseFailures, 1) }
func (s *listenerStats) noLiquidity() { atomic.AddUint64(&s.noLiquiditySkipped, 1) }
func (s *listenerStats) noTeam()      { atomic.AddUint64(&s.noTeamSkipped, 1) }

func (s *listenerStats) snapshot() (received, processed, parseFails, noLiquidity, noTeam uint64) {
	return atomic.LoadUint64(&s.messagesReceived), atomic.LoadUint64(&s.messagesProcessed),
		atomic.LoadUint64(&s.parseFailures), atomic.LoadUint64(&s.noLiquiditySkipped),
		atomic.LoadUint64(&s.noTeamSkipped)
}

// parseFailureRateAlertThreshold is §4.7's "raise ERROR if parse-failure
// rate > 5%".
const parseFailureRateAlertThreshold = 0.05

// logPeriodically runs until stop is closed, logging stats every interval
// and raising an ERROR line if the parse-failure rate exceeds threshold.
func (s *listenerStats) logPeriodically(logger *utils.Logger, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			received, processed, parseFails, noLiquidity, noTeam := s.snapshot()
			logger.Info("price listener stats",
				utils.Int64("messages_received", int64(received)),
				utils.Int64("messages_processed", int64(processed)),
				utils.Int64("parse_failures", int64(parseFails)),
				utils.Int64("no_liquidity_skipped", int64(noLiquidity)),
				utils.Int64("no_team_skipped", int64(noTeam)))

			if received > 0 && float64(parseFails)/float64(received) > parseFailureRateAlertThreshold {
				logger.Error("parse-failure rate exceeds threshold",
					utils.Float64("rate", float64(parseFails)/float64(received)))
			}
		}
	}
}
