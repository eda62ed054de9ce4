// Package progress provides the in-process event bus that fans job state
// changes out to websocket subscribers.
package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts losing events; progress is advisory, so
// dropping beats blocking the worker.
const subscriberBuffer = 16

// Event is one job state change.
// Terminal events carry either OutputPath or Error; per-tool progress
// events carry Progress and the CompletedTools/TotalTools counters.
type Event struct {
	JobID          string    `json:"job_id"`
	Status         string    `json:"status"`
	Progress       *int      `json:"progress,omitempty"`
	CompletedTools int       `json:"completed_tools,omitempty"`
	TotalTools     int       `json:"total_tools,omitempty"`
	OutputPath     *string   `json:"output_path,omitempty"`
	Error          *string   `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Terminal reports whether the event ends the job's stream.
func (e Event) Terminal() bool {
	return e.Status == "completed" || e.Status == "failed"
}

// Bus fans job events out to per-job subscribers.
// Publish never blocks: a full subscriber channel drops the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
	log  *zap.SugaredLogger
}

// NewBus creates an empty bus
func NewBus(log *zap.SugaredLogger) *Bus {
	return &Bus{
		subs: make(map[string]map[chan Event]struct{}),
		log:  log,
	}
}

// Subscribe registers interest in one job's events and returns the channel
// they arrive on. The caller must Unsubscribe with the same channel.
func (b *Bus) Subscribe(jobID string) chan Event {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan Event]struct{})
	}
	b.subs[jobID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(jobID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[jobID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(b.subs, jobID)
	}
	close(ch)
}

// Publish delivers an event to every subscriber of its job.
// Slow subscribers lose events rather than stall the publisher.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[event.JobID] {
		select {
		case ch <- event:
		default:
			b.log.Debugw("Dropping progress event for slow subscriber",
				"job_id", event.JobID,
				"status", event.Status,
			)
		}
	}
}

// SubscriberCount returns the number of subscribers for a job.
func (b *Bus) SubscriberCount(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[jobID])
}
