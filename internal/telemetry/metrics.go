package telemetry

import "time"

// Metrics is the observation surface used by the turn pipeline.
type Metrics interface {
	ObserveTurn(outcome string)
	ObserveToolInvocation(tool string, status string, duration time.Duration)
	ObserveSynthesis(outcome string)
	SetRegisteredTools(count int)
}

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveTurn(_ string) {}

func (n *NoopMetrics) ObserveToolInvocation(_ string, _ string, _ time.Duration) {}

func (n *NoopMetrics) ObserveSynthesis(_ string) {}

func (n *NoopMetrics) SetRegisteredTools(_ int) {}

var _ Metrics = (*NoopMetrics)(nil)
