// internal/blockchain/solbc/transaction/metrics.go
package transaction

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	sentCounter        prometheus.Counter
	confirmedCounter   prometheus.Counter
	failureCounter     *prometheus.CounterVec
	rebroadcastCounter prometheus.Counter
	durationHistogram  prometheus.Histogram
}

// NewMetrics создаёт метрики и регистрирует их в reg. При reg == nil метрики
// работают, но никуда не экспортируются.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sentCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solana_tx_sent_total",
			Help: "Total number of transactions accepted by the RPC node",
		}),
		confirmedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solana_tx_confirmed_total",
			Help: "Total number of transactions confirmed without error",
		}),
		failureCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solana_tx_failure_total",
			Help: "Total number of failed transactions by reason",
		}, []string{"reason"}),
		rebroadcastCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solana_tx_rebroadcast_total",
			Help: "Total number of raw transaction resubmissions",
		}),
		durationHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "solana_tx_duration_seconds",
			Help:    "Time from submission to a terminal outcome",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.sentCounter, m.confirmedCounter, m.failureCounter,
			m.rebroadcastCounter, m.durationHistogram)
	}
	return m
}

func (m *Metrics) TrackTransaction(start time.Time) {
	m.durationHistogram.Observe(time.Since(start).Seconds())
}

func (m *Metrics) sent()           { m.sentCounter.Inc() }
func (m *Metrics) confirmed()      { m.confirmedCounter.Inc() }
func (m *Metrics) rebroadcast()    { m.rebroadcastCounter.Inc() }
func (m *Metrics) failed(r string) { m.failureCounter.WithLabelValues(r).Inc() }
