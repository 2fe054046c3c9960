// Package metrics exposes camera state to Prometheus. Values are read from
// the camera on every scrape; nothing is cached here.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"visca-camera/internal/monitor"
	"visca-camera/internal/visca"
)

// Source is what the collector reads on scrape
type Source interface {
	ID() int
	Name() string
	IsConnected() bool
	Status() monitor.Status
	Snapshot() map[visca.Property]int
	ProcessorStats() visca.Stats
}

var (
	labels = []string{"camera", "name"}

	connectedDesc = prometheus.NewDesc(
		"visca_camera_connected", "Whether the control link is open.", labels, nil,
	)
	statusDesc = prometheus.NewDesc(
		"visca_camera_link_status", "Link health (0=Stopped, 1=Online, 2=Warning, 3=Error).", labels, nil,
	)
	silenceDesc = prometheus.NewDesc(
		"visca_camera_silence_seconds", "Time since the camera last sent anything.", labels, nil,
	)
	propertyDesc = prometheus.NewDesc(
		"visca_camera_property", "Last known value of a camera property.", append(labels, "property"), nil,
	)
	queueDesc = prometheus.NewDesc(
		"visca_command_queue_length", "Commands waiting to be sent.", labels, nil,
	)
	commandsDesc = prometheus.NewDesc(
		"visca_commands_sent_total", "Commands and inquiries written to the link.", labels, nil,
	)
	repliesDesc = prometheus.NewDesc(
		"visca_replies_total", "Replies received, grouped by type.", append(labels, "type"), nil,
	)
	timeoutsDesc = prometheus.NewDesc(
		"visca_reply_timeouts_total", "Commands abandoned without a reply.", labels, nil,
	)
)

// Collector implements prometheus.Collector for one camera
type Collector struct {
	src     Source
	silence func() float64
	mu      sync.Mutex
}

// NewCollector creates a collector reading src. silence may be nil.
func NewCollector(src Source, silence func() float64) *Collector {
	return &Collector{src: src, silence: silence}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- connectedDesc
	ch <- statusDesc
	ch <- silenceDesc
	ch <- propertyDesc
	ch <- queueDesc
	ch <- commandsDesc
	ch <- repliesDesc
	ch <- timeoutsDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := strconv.Itoa(c.src.ID())
	name := c.src.Name()

	connected := 0.0
	if c.src.IsConnected() {
		connected = 1.0
	}
	ch <- prometheus.MustNewConstMetric(connectedDesc, prometheus.GaugeValue, connected, id, name)
	ch <- prometheus.MustNewConstMetric(statusDesc, prometheus.GaugeValue, float64(c.src.Status()), id, name)
	if c.silence != nil {
		ch <- prometheus.MustNewConstMetric(silenceDesc, prometheus.GaugeValue, c.silence(), id, name)
	}

	for prop, v := range c.src.Snapshot() {
		ch <- prometheus.MustNewConstMetric(propertyDesc, prometheus.GaugeValue, float64(v), id, name, string(prop))
	}

	stats := c.src.ProcessorStats()
	ch <- prometheus.MustNewConstMetric(queueDesc, prometheus.GaugeValue, float64(stats.Queued), id, name)
	ch <- prometheus.MustNewConstMetric(commandsDesc, prometheus.CounterValue, float64(stats.Sent), id, name)
	for typ, n := range map[string]uint64{
		"ack":        stats.Acks,
		"completion": stats.Completions,
		"answer":     stats.Answers,
		"error":      stats.Errors,
	} {
		ch <- prometheus.MustNewConstMetric(repliesDesc, prometheus.CounterValue, float64(n), id, name, typ)
	}
	ch <- prometheus.MustNewConstMetric(timeoutsDesc, prometheus.CounterValue, float64(stats.Timeouts), id, name)
}

// NewRegistry returns a registry holding only c
func NewRegistry(c *Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(c)
	return registry
}
