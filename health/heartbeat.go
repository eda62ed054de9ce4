// Package health tracks worker liveness.
package health

import (
	"sync/atomic"
	"time"
)

// Heartbeat records the worker's most recent poll tick.
// The worker beats once per loop iteration; the health endpoint compares
// the last beat against a staleness window.
type Heartbeat struct {
	lastBeat atomic.Int64 // unix nanos, zero until the first beat
}

// NewHeartbeat creates a heartbeat with no beats recorded.
func NewHeartbeat() *Heartbeat {
	return &Heartbeat{}
}

// Beat records the current time as the latest heartbeat.
func (h *Heartbeat) Beat() {
	h.lastBeat.Store(time.Now().UnixNano())
}

// Last returns the time of the most recent beat and whether one exists.
func (h *Heartbeat) Last() (time.Time, bool) {
	nanos := h.lastBeat.Load()
	if nanos == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

// Alive reports whether a beat landed within the staleness window.
// Returns false before the first beat.
func (h *Heartbeat) Alive(staleAfter time.Duration) bool {
	last, ok := h.Last()
	if !ok {
		return false
	}
	return time.Since(last) <= staleAfter
}
