// Package obs collects lightweight counters for the session core.
// Wiring is optional: every method is nil-receiver safe.
package obs

import (
	"sync"
	"sync/atomic"

	"main/internal/schema"
)

// Metrics aggregates session counters.
type Metrics struct {
	connects      atomic.Uint64
	reconnects    atomic.Uint64
	sentDirect    atomic.Uint64
	queued        atomic.Uint64
	flushes       atomic.Uint64
	retries       atomic.Uint64
	terminalDrops atomic.Uint64
	sweepRemovals atomic.Uint64
	malformed     atomic.Uint64
	framesMu      sync.Mutex
	framesByEvent map[schema.EventType]uint64
}

// NewMetrics creates an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{framesByEvent: make(map[schema.EventType]uint64)}
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	Connects      uint64
	Reconnects    uint64
	SentDirect    uint64
	Queued        uint64
	Flushes       uint64
	Retries       uint64
	TerminalDrops uint64
	SweepRemovals uint64
	Malformed     uint64
	FramesByEvent map[schema.EventType]uint64
}

// Snapshot captures the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	snap := Snapshot{
		Connects:      m.connects.Load(),
		Reconnects:    m.reconnects.Load(),
		SentDirect:    m.sentDirect.Load(),
		Queued:        m.queued.Load(),
		Flushes:       m.flushes.Load(),
		Retries:       m.retries.Load(),
		TerminalDrops: m.terminalDrops.Load(),
		SweepRemovals: m.sweepRemovals.Load(),
		Malformed:     m.malformed.Load(),
		FramesByEvent: make(map[schema.EventType]uint64),
	}
	m.framesMu.Lock()
	for k, v := range m.framesByEvent {
		snap.FramesByEvent[k] = v
	}
	m.framesMu.Unlock()
	return snap
}

// AddConnects counts successful channel opens.
func (m *Metrics) AddConnects(n uint64) {
	if m != nil {
		m.connects.Add(n)
	}
}

// AddReconnects counts scheduled reconnect attempts.
func (m *Metrics) AddReconnects(n uint64) {
	if m != nil {
		m.reconnects.Add(n)
	}
}

// AddSentDirect counts payloads transmitted while open.
func (m *Metrics) AddSentDirect(n uint64) {
	if m != nil {
		m.sentDirect.Add(n)
	}
}

// AddQueued counts payloads parked in the pending store.
func (m *Metrics) AddQueued(n uint64) {
	if m != nil {
		m.queued.Add(n)
	}
}

// AddFlushes counts pending store flush passes.
func (m *Metrics) AddFlushes(n uint64) {
	if m != nil {
		m.flushes.Add(n)
	}
}

// AddRetries counts scheduled retransmissions.
func (m *Metrics) AddRetries(n uint64) {
	if m != nil {
		m.retries.Add(n)
	}
}

// AddTerminalDrops counts messages dropped after exhausting retries.
func (m *Metrics) AddTerminalDrops(n uint64) {
	if m != nil {
		m.terminalDrops.Add(n)
	}
}

// AddSweepRemovals counts entries garbage-collected by the expiry sweep.
func (m *Metrics) AddSweepRemovals(n uint64) {
	if m != nil {
		m.sweepRemovals.Add(n)
	}
}

// AddMalformed counts inbound frames that failed to parse.
func (m *Metrics) AddMalformed(n uint64) {
	if m != nil {
		m.malformed.Add(n)
	}
}

// CountFrame counts an inbound frame by event type.
func (m *Metrics) CountFrame(t schema.EventType) {
	if m == nil {
		return
	}
	m.framesMu.Lock()
	m.framesByEvent[t]++
	m.framesMu.Unlock()
}
