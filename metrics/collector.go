// Package metrics exports stream counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tailored-agentic-units/statecontext/stream"
)

// SnapshotFunc returns the current counters of one stream.
type SnapshotFunc func() stream.MetricsSnapshot

// StreamCollector reads a stream's counters on every scrape.
type StreamCollector struct {
	snapshot SnapshotFunc

	sent     *prometheus.Desc
	resolved *prometheus.Desc
	failed   *prometheus.Desc
	dropped  *prometheus.Desc
	pending  *prometheus.Desc
}

func NewStreamCollector(name string, snapshot SnapshotFunc) *StreamCollector {
	labels := prometheus.Labels{"stream": name}
	return &StreamCollector{
		snapshot: snapshot,
		sent: prometheus.NewDesc(
			"statecontext_stream_sent_total",
			"Requests sent on the stream",
			nil, labels,
		),
		resolved: prometheus.NewDesc(
			"statecontext_stream_resolved_total",
			"Exchanges settled with a reply",
			nil, labels,
		),
		failed: prometheus.NewDesc(
			"statecontext_stream_failed_total",
			"Exchanges settled with a failure",
			nil, labels,
		),
		dropped: prometheus.NewDesc(
			"statecontext_stream_dropped_total",
			"Requests the peer did not answer",
			nil, labels,
		),
		pending: prometheus.NewDesc(
			"statecontext_stream_pending",
			"Exchanges awaiting a reply",
			nil, labels,
		),
	}
}

func (c *StreamCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sent
	ch <- c.resolved
	ch <- c.failed
	ch <- c.dropped
	ch <- c.pending
}

func (c *StreamCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()
	ch <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(s.Sent))
	ch <- prometheus.MustNewConstMetric(c.resolved, prometheus.CounterValue, float64(s.Resolved))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(s.Failed))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(s.Pending))
}

// Register adds a collector for the named stream to reg.
func Register(reg prometheus.Registerer, name string, snapshot SnapshotFunc) error {
	return reg.Register(NewStreamCollector(name, snapshot))
}
