// Package tools holds the name to handler dispatch tables consulted by the
// broker and by extension clients.
package tools

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/gaspardpetit/nfrx-browser/internal/mcpwire"
)

// Table is the capability surface the broker needs: membership and execution.
type Table interface {
	Has(name string) bool
	Execute(ctx context.Context, name string, params json.RawMessage) (any, error)
}

// Handler answers one method. Returning a *mcpwire.Error selects the JSON-RPC code.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Registry is a concurrency-safe Table backed by a map.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register binds name to h, replacing any previous handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
}

// Has reports whether name has a handler.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Execute runs the handler for name. Unknown names yield a -32601 error.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (any, error) {
	r.mu.RLock()
	h := r.handlers[name]
	r.mu.RUnlock()
	if h == nil {
		return nil, &mcpwire.Error{Code: mcpwire.CodeMethodNotFound, Message: "Method not found: " + name}
	}
	return h(ctx, params)
}

// Names lists registered methods in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func invalidParams(msg string) *mcpwire.Error {
	return &mcpwire.Error{Code: mcpwire.CodeInvalidParams, Message: msg}
}
