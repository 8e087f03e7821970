package server

import (
	"sync/atomic"

	"github.com/nczempin/httpserver-go-uring/router"
)

// Metrics counts connection and request events. All methods are safe for concurrent use.
type Metrics struct {
	accepted        atomic.Int64
	active          atomic.Int64
	acceptErrors    atomic.Int64
	transportErrors atomic.Int64
	outcomes        [router.OutcomeBadRequest + 1]atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics
type MetricsSnapshot struct {
	Accepted        int64
	Active          int64
	AcceptErrors    int64
	TransportErrors int64
	Outcomes        map[router.Outcome]int64
}

func (m *Metrics) connOpened() {
	m.accepted.Add(1)
	m.active.Add(1)
}

func (m *Metrics) connClosed() {
	m.active.Add(-1)
}

func (m *Metrics) acceptFailed() {
	m.acceptErrors.Add(1)
}

func (m *Metrics) transportFailed() {
	m.transportErrors.Add(1)
}

func (m *Metrics) observe(outcome router.Outcome) {
	if int(outcome) < len(m.outcomes) {
		m.outcomes[outcome].Add(1)
	}
}

// Snapshot copies the current counter values
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Accepted:        m.accepted.Load(),
		Active:          m.active.Load(),
		AcceptErrors:    m.acceptErrors.Load(),
		TransportErrors: m.transportErrors.Load(),
		Outcomes:        make(map[router.Outcome]int64),
	}
	for _, outcome := range router.Outcomes() {
		if n := m.outcomes[outcome].Load(); n > 0 {
			snap.Outcomes[outcome] = n
		}
	}
	return snap
}

// Requests is the number of requests that got a response
func (s MetricsSnapshot) Requests() int64 {
	var total int64
	for _, n := range s.Outcomes {
		total += n
	}
	return total
}
