package mcpbroker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gaspardpetit/nfrx-browser/internal/mcpwire"
)

// DefaultQueueSize bounds the outbound queue when no size is configured.
const DefaultQueueSize = 100

// QueuedRequest is a request waiting for the extension to connect.
type QueuedRequest struct {
	Request  *mcpwire.Request
	Enqueued time.Time
}

// QueueStats describes the outbound queue.
type QueueStats struct {
	Size      int
	Max       int
	OldestAge time.Duration
	NewestAge time.Duration
}

// MarshalJSON reports ages in milliseconds.
func (s QueueStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Size        int   `json:"size"`
		Max         int   `json:"max"`
		OldestAgeMs int64 `json:"oldestAgeMs"`
		NewestAgeMs int64 `json:"newestAgeMs"`
	}{s.Size, s.Max, s.OldestAge.Milliseconds(), s.NewestAge.Milliseconds()})
}

// OutboundQueue holds requests issued while no extension is connected.
// When full, adding evicts the oldest entry.
type OutboundQueue struct {
	mu    sync.Mutex
	items []QueuedRequest
	max   int
	now   func() time.Time
}

// NewOutboundQueue returns a queue holding at most max entries.
func NewOutboundQueue(max int) *OutboundQueue {
	if max <= 0 {
		max = DefaultQueueSize
	}
	return &OutboundQueue{max: max, now: time.Now}
}

// Add appends req and returns the entry evicted to make room, if any.
func (q *OutboundQueue) Add(req *mcpwire.Request) (QueuedRequest, bool) {
	return q.push(QueuedRequest{Request: req, Enqueued: q.now()})
}

func (q *OutboundQueue) push(item QueuedRequest) (QueuedRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var dropped QueuedRequest
	evicted := false
	if len(q.items) >= q.max {
		dropped = q.items[0]
		q.items = q.items[1:]
		evicted = true
	}
	q.items = append(q.items, item)
	return dropped, evicted
}

// Take removes and returns every queued entry in arrival order.
func (q *OutboundQueue) Take() []QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Requeue appends items to the back, keeping their original enqueue times.
// It returns how many entries were evicted.
func (q *OutboundQueue) Requeue(items []QueuedRequest) int {
	evicted := 0
	for _, it := range items {
		if _, ok := q.push(it); ok {
			evicted++
		}
	}
	return evicted
}

// Len returns the number of queued entries.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats reports the queue size and the age of its oldest and newest entries.
func (q *OutboundQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := QueueStats{Size: len(q.items), Max: q.max}
	if len(q.items) > 0 {
		now := q.now()
		st.OldestAge = now.Sub(q.items[0].Enqueued)
		st.NewestAge = now.Sub(q.items[len(q.items)-1].Enqueued)
	}
	return st
}
