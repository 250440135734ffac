package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusMetrics struct {
	turns           *prometheus.CounterVec
	toolInvocations *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	synthesis       *prometheus.CounterVec
	registeredTools prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		turns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolsmith_turns_total",
				Help: "Total number of conversation turns by outcome",
			},
			[]string{"outcome"},
		),
		toolInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolsmith_tool_invocations_total",
				Help: "Total number of tool invocations by result status",
			},
			[]string{"tool", "status"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolsmith_tool_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tool"},
		),
		synthesis: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolsmith_synthesis_total",
				Help: "Total number of tool synthesis attempts by outcome",
			},
			[]string{"outcome"},
		),
		registeredTools: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolsmith_registered_tools",
				Help: "Current number of live tools in the registry",
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveTurn(outcome string) {
	p.turns.WithLabelValues(outcome).Inc()
}

func (p *PrometheusMetrics) ObserveToolInvocation(tool string, status string, duration time.Duration) {
	p.toolInvocations.WithLabelValues(tool, status).Inc()
	p.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveSynthesis(outcome string) {
	p.synthesis.WithLabelValues(outcome).Inc()
}

func (p *PrometheusMetrics) SetRegisteredTools(count int) {
	p.registeredTools.Set(float64(count))
}

var _ Metrics = (*PrometheusMetrics)(nil)
