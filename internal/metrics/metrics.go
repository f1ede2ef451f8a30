package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AdmissionDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_admission_decision_total",
			Help: "Protected-route admission decisions by outcome and reason",
		},
		[]string{"decision", "reason"},
	)
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_login_attempts_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"},
	)
	LoginDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_login_duration_seconds",
			Help:    "Latency of login handling including progressive delay",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
	LockoutsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_permanent_blocks",
			Help: "Clients currently under a permanent block",
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(AdmissionDecision, LoginAttempts, LoginDuration, LockoutsActive)
}
