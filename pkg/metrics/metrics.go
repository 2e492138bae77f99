package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cutover_deployments_total",
			Help: "Total number of deployment pipeline runs by terminal state",
		},
		[]string{"outcome"},
	)

	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cutover_phase_duration_seconds",
			Help:    "Time spent in each pipeline phase in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"phase"},
	)

	// Health gate metrics
	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cutover_probes_total",
			Help: "Total number of health probes by gate mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	ProbeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cutover_probe_latency_seconds",
			Help:    "Health probe latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Traffic metrics
	SwitchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cutover_switches_total",
			Help: "Total number of traffic cutovers by target color and outcome",
		},
		[]string{"color", "outcome"},
	)

	SwitchVerificationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cutover_switch_verification_failures_total",
			Help: "Total number of cutovers whose post-switch verification found a mismatched active color",
		},
	)

	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cutover_rollbacks_total",
			Help: "Total number of rollback executions by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(PhaseDuration)
	prometheus.MustRegister(ProbesTotal)
	prometheus.MustRegister(ProbeLatency)
	prometheus.MustRegister(SwitchesTotal)
	prometheus.MustRegister(SwitchVerificationFailures)
	prometheus.MustRegister(RollbacksTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
