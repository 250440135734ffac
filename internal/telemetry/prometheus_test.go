package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrometheusMetrics_UsesProvidedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewPrometheusMetrics(registry)
	m.ObserveTurn("answered")
	m.ObserveToolInvocation("calculate_math", "success", 5*time.Millisecond)
	m.ObserveSynthesis("installed")
	m.SetRegisteredTools(3)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}

	assert.Contains(t, names, "toolsmith_turns_total")
	assert.Contains(t, names, "toolsmith_tool_invocations_total")
	assert.Contains(t, names, "toolsmith_tool_duration_seconds")
	assert.Contains(t, names, "toolsmith_synthesis_total")
	assert.Contains(t, names, "toolsmith_registered_tools")
}

func TestPrometheusMetrics_RegisteredToolsGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)

	m.SetRegisteredTools(4)
	m.SetRegisteredTools(2)

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "toolsmith_registered_tools" {
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, 2.0, f.GetMetric()[0].GetGauge().GetValue())
			return
		}
	}
	t.Fatal("registered tools gauge not gathered")
}

func TestNoopMetrics_ImplementsInterface(t *testing.T) {
	var m Metrics = NewNoopMetrics()
	m.ObserveTurn("answered")
	m.SetRegisteredTools(1)
}
