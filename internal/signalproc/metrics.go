package signalproc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics.go - метрики процессора сигналов
//
// Adapted from internal/bot/metrics.go's promauto vector pattern
// (previously unwired in this tree): a signal-rejection counter labeled
// by reason, and an emitted-request counter, give the same operational
// visibility the teacher's EventsProcessed counter gave the crypto bot.

var rejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sportsarb",
		Subsystem: "signalproc",
		Name:      "rejections_total",
		Help:      "Total signals rejected by the signal processor, labeled by reason",
	},
	[]string{"reason"},
)

var executionRequestsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "sportsarb",
		Subsystem: "signalproc",
		Name:      "execution_requests_total",
		Help:      "Total ExecutionRequests emitted by the signal processor",
	},
)
