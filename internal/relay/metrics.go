package relay

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the relay collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phq_relay_requests_total",
			Help: "Relay calls labeled by phase and outcome (ok, guarded, fallback, config_error).",
		}, []string{"phase", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "phq_relay_duration_seconds",
			Help:    "Wall-clock duration of upstream generation calls by phase.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 25, 30},
		}, []string{"phase"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

func (m *Metrics) observe(phase Phase, outcome string, seconds float64, called bool) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(string(phase), outcome).Inc()
	if called {
		m.duration.WithLabelValues(string(phase)).Observe(seconds)
	}
}
