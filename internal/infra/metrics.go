package infra

import (
	"sync/atomic"
	"time"
)

// Metrics counts feed activity without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	pollRequests  atomic.Uint64
	pollFailures  atomic.Uint64
	quotesApplied atomic.Uint64
	ticksApplied  atomic.Uint64
	reconnects    atomic.Uint64

	// Gauges
	streamConnected atomic.Int32 // 1 = connected, 0 = not
	backedOff       atomic.Int32 // 1 = polling at the backoff interval
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordPoll records one outbound batch request and how many quotes it applied.
func (m *Metrics) RecordPoll(applied int) {
	m.pollRequests.Add(1)
	m.quotesApplied.Add(uint64(applied))
}

// RecordPollFailure records a failed batch request.
func (m *Metrics) RecordPollFailure() {
	m.pollRequests.Add(1)
	m.pollFailures.Add(1)
}

// RecordTick records a streamed tick applied to the registry.
func (m *Metrics) RecordTick() {
	m.ticksApplied.Add(1)
}

// RecordReconnect records a scheduled stream reconnect.
func (m *Metrics) RecordReconnect() {
	m.reconnects.Add(1)
}

// SetStreamConnected sets the streaming connection gauge.
func (m *Metrics) SetStreamConnected(connected bool) {
	if connected {
		m.streamConnected.Store(1)
	} else {
		m.streamConnected.Store(0)
	}
}

// SetBackedOff sets the polling backoff gauge.
func (m *Metrics) SetBackedOff(backedOff bool) {
	if backedOff {
		m.backedOff.Store(1)
	} else {
		m.backedOff.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	PollRequests    uint64    `json:"poll_requests"`
	PollFailures    uint64    `json:"poll_failures"`
	QuotesApplied   uint64    `json:"quotes_applied"`
	TicksApplied    uint64    `json:"ticks_applied"`
	Reconnects      uint64    `json:"reconnects"`
	StreamConnected bool      `json:"stream_connected"`
	BackedOff       bool      `json:"backed_off"`
	Timestamp       time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		PollRequests:    m.pollRequests.Load(),
		PollFailures:    m.pollFailures.Load(),
		QuotesApplied:   m.quotesApplied.Load(),
		TicksApplied:    m.ticksApplied.Load(),
		Reconnects:      m.reconnects.Load(),
		StreamConnected: m.streamConnected.Load() == 1,
		BackedOff:       m.backedOff.Load() == 1,
		Timestamp:       time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.pollRequests.Store(0)
	m.pollFailures.Store(0)
	m.quotesApplied.Store(0)
	m.ticksApplied.Store(0)
	m.reconnects.Store(0)
	m.streamConnected.Store(0)
	m.backedOff.Store(0)
}
