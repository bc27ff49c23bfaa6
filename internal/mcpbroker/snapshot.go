package mcpbroker

import (
	"sort"
	"time"

	"github.com/gaspardpetit/nfrx-browser/internal/mcpwire"
)

// PendingSnapshot describes one request awaiting a response.
type PendingSnapshot struct {
	ID         string    `json:"id"`
	Method     string    `json:"method"`
	ConnID     string    `json:"conn_id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs uint64    `json:"duration_ms"`
}

// Snapshot is the broker state reported by the status API.
type Snapshot struct {
	Pending  []PendingSnapshot `json:"pending"`
	Queue    QueueStats        `json:"queue"`
	Inflight int64             `json:"inflight"`
}

// Snapshot returns the pending requests ordered by start time.
func (b *Broker) Snapshot() Snapshot {
	b.mu.Lock()
	out := make([]PendingSnapshot, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, PendingSnapshot{
			ID:         mcpwire.IDString(p.id),
			Method:     p.method,
			ConnID:     p.connID,
			StartedAt:  p.start,
			DurationMs: uint64(time.Since(p.start).Milliseconds()),
		})
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return Snapshot{Pending: out, Queue: b.queue.Stats(), Inflight: b.inflight.Load()}
}
