package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visca-camera/internal/monitor"
	"visca-camera/internal/visca"
)

type fakeSource struct{}

func (fakeSource) ID() int                { return 1 }
func (fakeSource) Name() string           { return "Lectern" }
func (fakeSource) IsConnected() bool      { return true }
func (fakeSource) Status() monitor.Status { return monitor.StatusWarning }

func (fakeSource) Snapshot() map[visca.Property]int {
	return map[visca.Property]int{visca.PropertyZoomPosition: 0x4000}
}

func (fakeSource) ProcessorStats() visca.Stats {
	return visca.Stats{Queued: 2, Sent: 10, Acks: 4, Completions: 4, Answers: 5, Timeouts: 1}
}

func TestCollector(t *testing.T) {
	registry := NewRegistry(NewCollector(fakeSource{}, func() float64 { return 21.5 }))
	families, err := registry.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	counts := make(map[string]int)
	for _, f := range families {
		counts[f.GetName()] = len(f.GetMetric())
		m := f.GetMetric()[0]
		if m.GetGauge() != nil {
			values[f.GetName()] = m.GetGauge().GetValue()
		} else {
			values[f.GetName()] = m.GetCounter().GetValue()
		}
	}

	assert.Equal(t, 1.0, values["visca_camera_connected"])
	assert.Equal(t, 2.0, values["visca_camera_link_status"])
	assert.Equal(t, 21.5, values["visca_camera_silence_seconds"])
	assert.Equal(t, 16384.0, values["visca_camera_property"])
	assert.Equal(t, 2.0, values["visca_command_queue_length"])
	assert.Equal(t, 10.0, values["visca_commands_sent_total"])
	assert.Equal(t, 1.0, values["visca_reply_timeouts_total"])
	assert.Equal(t, 4, counts["visca_replies_total"])
}

func TestCollectorLabels(t *testing.T) {
	registry := NewRegistry(NewCollector(fakeSource{}, nil))
	families, err := registry.Gather()
	require.NoError(t, err)

	for _, f := range families {
		assert.NotEqual(t, "visca_camera_silence_seconds", f.GetName())
		if f.GetName() != "visca_camera_property" {
			continue
		}
		labels := map[string]string{}
		for _, l := range f.GetMetric()[0].GetLabel() {
			labels[l.GetName()] = l.GetValue()
		}
		assert.Equal(t, map[string]string{"camera": "1", "name": "Lectern", "property": "ZoomPosition"}, labels)
	}
}
