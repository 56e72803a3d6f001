package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the attendance collectors. A nil *Metrics is a no-op.
type Metrics struct {
	tokensIssued *prometheus.CounterVec
	redemptions  *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "tokens_issued_total",
			Help:      "Session tokens issued, by kind.",
		}, []string{"kind"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "redemptions_total",
			Help:      "Token redemptions, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qrattend",
			Name:      "redemption_duration_seconds",
			Help:      "Time spent redeeming a token.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	reg.MustRegister(m.tokensIssued, m.redemptions, m.duration)
	return m
}

// TokenIssued counts an issued token.
func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(kind).Inc()
}

// Redemption counts a redemption attempt and its latency.
func (m *Metrics) Redemption(kind, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(kind, outcome).Inc()
	m.duration.WithLabelValues(kind).Observe(took.Seconds())
}
