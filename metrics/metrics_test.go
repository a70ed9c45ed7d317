package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopDiscardsEverything(t *testing.T) {
	sink := Noop()
	sink.IncCounter("children_started", "github")
	sink.SetGauge("uptime_seconds", 12.5)
	sink.ObserveDuration("route_duration", 5*time.Millisecond, "github")
}

func TestRecorderCountsByNameAndLabels(t *testing.T) {
	rec := NewRecorder()
	rec.IncCounter("messages_routed", "github")
	rec.IncCounter("messages_routed", "github")
	rec.IncCounter("messages_routed", "slack")

	assert.Equal(t, 2, rec.Count("messages_routed", "github"))
	assert.Equal(t, 1, rec.Count("messages_routed", "slack"))
	assert.Equal(t, 0, rec.Count("messages_routed", "unknown"))
}

func TestRecorderSetGauge(t *testing.T) {
	rec := NewRecorder()
	rec.SetGauge("uptime_seconds", 42)
	rec.SetGauge("uptime_seconds", 43)
	assert.Equal(t, float64(43), rec.Gauge("uptime_seconds"))
}

func TestRecorderObserveDuration(t *testing.T) {
	rec := NewRecorder()
	rec.ObserveDuration("route_duration", 10*time.Millisecond, "github")
	rec.ObserveDuration("route_duration", 20*time.Millisecond, "github")
	samples := rec.DurationSamples("route_duration", "github")
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, samples)
	assert.Empty(t, rec.DurationSamples("route_duration", "slack"))
}
