package stream

import "sync/atomic"

// MetricsSnapshot is a point-in-time copy of a stream's counters.
type MetricsSnapshot struct {
	Sent     int64
	Resolved int64
	Failed   int64
	Dropped  int64
	Pending  int64
}

// Metrics counts exchanges. Pending is the number sent but not yet settled.
type Metrics struct {
	sent     atomic.Int64
	resolved atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
	pending  atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordSent() {
	m.sent.Add(1)
	m.pending.Add(1)
}

func (m *Metrics) RecordResolved() {
	m.resolved.Add(1)
	m.pending.Add(-1)
}

func (m *Metrics) RecordFailed() {
	m.failed.Add(1)
	m.pending.Add(-1)
}

// RecordDropped counts a request the peer chose not to answer. The exchange
// stays pending.
func (m *Metrics) RecordDropped() {
	m.dropped.Add(1)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Sent:     m.sent.Load(),
		Resolved: m.resolved.Load(),
		Failed:   m.failed.Load(),
		Dropped:  m.dropped.Load(),
		Pending:  m.pending.Load(),
	}
}
