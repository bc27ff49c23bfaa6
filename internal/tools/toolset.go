package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolFunc executes one tool call.
type ToolFunc func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// ToolSet pairs tool descriptors with their implementations. It is what an
// extension-side client serves to the bridge.
type ToolSet struct {
	mu    sync.RWMutex
	order []string
	tools map[string]mcp.Tool
	funcs map[string]ToolFunc
}

// NewToolSet returns an empty ToolSet.
func NewToolSet() *ToolSet {
	return &ToolSet{tools: map[string]mcp.Tool{}, funcs: map[string]ToolFunc{}}
}

// Add registers a tool. Adding a name twice replaces the earlier entry.
func (s *ToolSet) Add(tool mcp.Tool, fn ToolFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tools[tool.Name]; !ok {
		s.order = append(s.order, tool.Name)
	}
	s.tools[tool.Name] = tool
	s.funcs[tool.Name] = fn
}

// List returns descriptors in registration order.
func (s *ToolSet) List() []mcp.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]mcp.Tool, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.tools[n])
	}
	return out
}

// Call runs a tool by name. Unknown names and missing names are -32602 errors;
// a failing tool is reported as -32603.
func (s *ToolSet) Call(ctx context.Context, params json.RawMessage) (any, error) {
	var p mcp.CallToolParams
	if len(params) == 0 || json.Unmarshal(params, &p) != nil {
		return nil, invalidParams("Invalid params: expected {name, arguments}")
	}
	if p.Name == "" {
		return nil, invalidParams("Invalid params: missing tool name")
	}
	s.mu.RLock()
	fn := s.funcs[p.Name]
	s.mu.RUnlock()
	if fn == nil {
		return nil, invalidParams("Tool not found: " + p.Name)
	}
	req := mcp.CallToolRequest{Params: p}
	req.Method = string(mcp.MethodToolsCall)
	res, err := fn(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", p.Name, err)
	}
	return res, nil
}

// NewExtension returns the table an extension answers the bridge with:
// initialize, ping, tools/list and tools/call over set.
func NewExtension(name, version string, set *ToolSet) *Registry {
	r := NewRegistry()
	r.Register(string(mcp.MethodInitialize), func(context.Context, json.RawMessage) (any, error) {
		return mcp.InitializeResult{
			ProtocolVersion: DefaultProtocolVersion,
			ServerInfo:      mcp.Implementation{Name: name, Version: version},
		}, nil
	})
	r.Register(string(mcp.MethodPing), func(context.Context, json.RawMessage) (any, error) {
		return mcp.EmptyResult{}, nil
	})
	r.Register(string(mcp.MethodToolsList), func(context.Context, json.RawMessage) (any, error) {
		return mcp.ListToolsResult{Tools: set.List()}, nil
	})
	r.Register(string(mcp.MethodToolsCall), set.Call)
	return r
}
