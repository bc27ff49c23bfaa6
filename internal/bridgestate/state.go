// Package bridgestate publishes the bridge's lifecycle state to an optional
// shared store so tooling can find a running bridge and its port.
package bridgestate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gaspardpetit/nfrx-browser/core/logx"
)

// Lifecycle states.
const (
	StatusNotReady  = "not_ready"
	StatusWaiting   = "waiting_for_extension"
	StatusConnected = "connected"
	StatusDraining  = "draining"
	StatusUnknown   = "unknown"
)

// State is the published snapshot.
type State struct {
	Status      string    `json:"status"`
	Version     string    `json:"version,omitempty"`
	PID         int       `json:"pid,omitempty"`
	Port        int       `json:"port,omitempty"`
	StatusAddr  string    `json:"status_addr,omitempty"`
	Connections int       `json:"connections"`
	QueueSize   int       `json:"queue_size"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists State.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
	Close() error
}

type memoryStore struct {
	v atomic.Value
}

// NewMemoryStore returns a process-local Store.
func NewMemoryStore() Store {
	ms := &memoryStore{}
	ms.v.Store(State{Status: StatusNotReady})
	return ms
}

func (m *memoryStore) Load(context.Context) (State, error) {
	return m.v.Load().(State), nil
}

func (m *memoryStore) Save(_ context.Context, s State) error {
	m.v.Store(s)
	return nil
}

func (m *memoryStore) Close() error { return nil }

// Tracker owns the current State and writes every change through to a Store.
type Tracker struct {
	store    Store
	mu       sync.Mutex
	cur      State
	draining atomic.Bool
	now      func() time.Time
}

// NewTracker starts from base and publishes it immediately.
func NewTracker(store Store, base State) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	if base.Status == "" {
		base.Status = StatusNotReady
	}
	t := &Tracker{store: store, cur: base, now: time.Now}
	t.Update(func(*State) {})
	return t
}

// Update applies fn to the current state and saves the result.
// Store errors are logged; the in-memory state is always updated.
func (t *Tracker) Update(fn func(*State)) State {
	t.mu.Lock()
	fn(&t.cur)
	if t.draining.Load() {
		t.cur.Status = StatusDraining
	}
	t.cur.UpdatedAt = t.now().UTC()
	s := t.cur
	t.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.store.Save(ctx, s); err != nil {
		logx.Log.Warn().Str("component", "state").Err(err).Msg("state save failed")
	}
	return s
}

// SetConnections records the extension connection count and derives the status.
func (t *Tracker) SetConnections(n int) State {
	return t.Update(func(s *State) {
		s.Connections = n
		if n > 0 {
			s.Status = StatusConnected
		} else {
			s.Status = StatusWaiting
		}
	})
}

// State returns the current in-memory state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}

// StartDrain marks the bridge as draining; later updates keep that status.
func (t *Tracker) StartDrain() {
	t.draining.Store(true)
	t.Update(func(*State) {})
}

// IsDraining reports whether StartDrain was called.
func (t *Tracker) IsDraining() bool {
	return t.draining.Load()
}
