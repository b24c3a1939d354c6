// Package metrics expõe as métricas do rate limiter no formato Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Pulse-project-300/atu-project-300/internal/core/ports"
)

const namespace = "pulse"

type Recorder struct {
	decisions   *prometheus.CounterVec
	storeCalls  *prometheus.HistogramVec
	storeErrors *prometheus.CounterVec
}

var _ ports.Metrics = (*Recorder)(nil)

// NewRecorder cria e registra os coletores em reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Window checks by window and outcome.",
		}, []string{"window", "outcome"}),
		storeCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "store_call_duration_seconds",
			Help:      "Latency of rate limit store round trips.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "store_errors_total",
			Help:      "Failed rate limit store round trips.",
		}, []string{"operation"}),
	}
	reg.MustRegister(r.decisions, r.storeCalls, r.storeErrors)
	return r
}

func (r *Recorder) ObserveDecision(window, outcome string) {
	r.decisions.WithLabelValues(window, outcome).Inc()
}

func (r *Recorder) ObserveStoreCall(operation string, elapsed time.Duration, err error) {
	r.storeCalls.WithLabelValues(operation).Observe(elapsed.Seconds())
	if err != nil {
		r.storeErrors.WithLabelValues(operation).Inc()
	}
}
