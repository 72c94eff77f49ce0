package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/dokzlo13/streamlights/internal/applicator"
)

func TestMetrics_LightCommand(t *testing.T) {
	m := New()

	m.LightCommand(applicator.PhaseEffect, nil)
	m.LightCommand(applicator.PhaseEffect, errors.New("boom"))
	m.LightCommand(applicator.PhaseReset, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LightCommands.WithLabelValues("effect", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LightCommands.WithLabelValues("effect", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LightCommands.WithLabelValues("reset", "ok")))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.Dropped(DropQueueFull, 3)

	assert.Equal(t, 3.0, testutil.ToFloat64(a.EventsDropped.WithLabelValues(DropQueueFull)))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.EventsDropped.WithLabelValues(DropQueueFull)))
}

func TestMetrics_TransportGauge(t *testing.T) {
	m := New()
	m.SetTransportConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransportUp))
	m.SetTransportConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TransportUp))
}
