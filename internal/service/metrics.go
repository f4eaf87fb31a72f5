package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records sign-in outcomes and per-stage latency.
type Metrics struct {
	attempts      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// NewMetrics registers the flow metrics on reg. Tests pass a fresh
// prometheus.NewRegistry(); main passes prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_attempts_total",
				Help: "Third-party sign-in attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auth_stage_duration_seconds",
				Help:    "Time spent reaching each sign-in stage",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "stage"},
		),
	}
}

func (m *Metrics) observeStage(provider string, stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(provider, string(stage)).Observe(d.Seconds())
}

func (m *Metrics) countAttempt(provider, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(provider, outcome).Inc()
}
