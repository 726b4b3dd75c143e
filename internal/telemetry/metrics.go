package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the process-wide Prometheus counters/histograms the
// gateway serves at `/metrics`. Kept separate from Log (the per-trace
// event record) since these are cumulative across every session.
type Metrics struct {
	StepTotal    *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	TokensTotal  *prometheus.CounterVec
}

// NewMetrics registers the counters against the given registry, or the
// default global registry when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StepTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_step_total",
			Help: "Count of workflow steps by worker and terminal status.",
		}, []string{"worker", "status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchestrator_step_duration_seconds",
			Help:    "Step duration in seconds by worker.",
			Buckets: prometheus.DefBuckets,
		}, []string{"worker"}),
		TokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_tokens_total",
			Help: "Prompt/completion tokens consumed by worker.",
		}, []string{"worker", "kind"}),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.StepTotal, m.StepDuration, m.TokensTotal)
	return m
}

// Record implements Sink, so Metrics can sit directly in a MultiSink
// alongside Log.
func (m *Metrics) Record(e Event) {
	m.Observe(e)
}

// Observe folds one telemetry Event into the Prometheus series.
func (m *Metrics) Observe(e Event) {
	if e.Worker == "" {
		return
	}
	m.StepTotal.WithLabelValues(e.Worker, string(e.Status)).Inc()
	m.StepDuration.WithLabelValues(e.Worker).Observe(float64(e.DurationMS) / 1000.0)
	if e.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(e.Worker, "prompt").Add(float64(e.PromptTokens))
	}
	if e.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(e.Worker, "completion").Add(float64(e.CompletionTokens))
	}
}
