// Package metrics provides lock-free counters for the share client so a
// long-running caller can report how logins and sends are going.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics tracks aggregate statistics for one or more session clients.
//
// All counters are atomics, so a single Metrics may be shared by every client
// a Manager hands out without extra locking.
type Metrics struct {
	requests      atomic.Uint64
	logins        atomic.Uint64
	loginFailures atomic.Uint64
	sends         atomic.Uint64
	sendFailures  atomic.Uint64
	lastFailure   atomic.Value // string

	startTime time.Time
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests      uint64
	Logins        uint64
	LoginFailures uint64
	Sends         uint64
	SendFailures  uint64
	// LastFailure is the kind of the most recent failure, or "".
	LastFailure string
	Uptime      time.Duration
}

// NewMetrics creates a Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// IncrementRequests counts one HTTP exchange with the remote service.
func (m *Metrics) IncrementRequests() { m.requests.Add(1) }

// RecordLogin counts a login attempt and, when failureKind is non-empty, its
// failure.
func (m *Metrics) RecordLogin(failureKind string) {
	m.logins.Add(1)
	if failureKind != "" {
		m.loginFailures.Add(1)
		m.lastFailure.Store(failureKind)
	}
}

// RecordSend counts a send attempt and, when failureKind is non-empty, its
// failure.
func (m *Metrics) RecordSend(failureKind string) {
	m.sends.Add(1)
	if failureKind != "" {
		m.sendFailures.Add(1)
		m.lastFailure.Store(failureKind)
	}
}

// Snapshot returns the current counter values.  The loads are independent, so
// a snapshot taken during heavy traffic may be off by a request or two.
func (m *Metrics) Snapshot() Snapshot {
	last, _ := m.lastFailure.Load().(string)
	return Snapshot{
		Requests:      m.requests.Load(),
		Logins:        m.logins.Load(),
		LoginFailures: m.loginFailures.Load(),
		Sends:         m.sends.Load(),
		SendFailures:  m.sendFailures.Load(),
		LastFailure:   last,
		Uptime:        time.Since(m.startTime),
	}
}
