package tools

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultProtocolVersion is answered when the client asks for nothing we know.
const DefaultProtocolVersion = "2024-11-05"

// ServerInfo configures the locally answered MCP methods.
type ServerInfo struct {
	Name    string
	Version string
	// Connected reports whether an extension is attached; it picks the instructions text.
	Connected func() bool
	// Catalog is returned by tools/list.
	Catalog []mcp.Tool
}

const (
	connectedInstructions = "Connected to the browser extension. Browser debugging tools are ready."
	waitingInstructions   = "The browser extension is not connected yet. Load the extension in Chrome; " +
		"it connects automatically and queued tool calls are replayed once it does."
)

// NewLocal returns the table of methods the bridge answers without the extension:
// initialize, ping, tools/list, prompts/list and resources/list.
func NewLocal(info ServerInfo) *Registry {
	r := NewRegistry()
	r.Register(string(mcp.MethodInitialize), func(_ context.Context, params json.RawMessage) (any, error) {
		var p mcp.InitializeParams
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, invalidParams("Invalid params: " + err.Error())
			}
		}
		version := DefaultProtocolVersion
		if slices.Contains(mcp.ValidProtocolVersions, p.ProtocolVersion) {
			version = p.ProtocolVersion
		}
		res := mcp.InitializeResult{
			ProtocolVersion: version,
			ServerInfo:      mcp.Implementation{Name: info.Name, Version: info.Version},
			Instructions:    waitingInstructions,
		}
		res.Capabilities.Tools = &struct {
			ListChanged bool `json:"listChanged,omitempty"`
		}{}
		res.Capabilities.Prompts = &struct {
			ListChanged bool `json:"listChanged,omitempty"`
		}{}
		res.Capabilities.Resources = &struct {
			Subscribe   bool `json:"subscribe,omitempty"`
			ListChanged bool `json:"listChanged,omitempty"`
		}{}
		if info.Connected != nil && info.Connected() {
			res.Instructions = connectedInstructions
		}
		return res, nil
	})
	r.Register(string(mcp.MethodPing), func(context.Context, json.RawMessage) (any, error) {
		return mcp.EmptyResult{}, nil
	})
	r.Register(string(mcp.MethodToolsList), func(context.Context, json.RawMessage) (any, error) {
		tools := info.Catalog
		if tools == nil {
			tools = []mcp.Tool{}
		}
		return mcp.ListToolsResult{Tools: tools}, nil
	})
	r.Register(string(mcp.MethodPromptsList), func(context.Context, json.RawMessage) (any, error) {
		return mcp.ListPromptsResult{Prompts: []mcp.Prompt{}}, nil
	})
	r.Register(string(mcp.MethodResourcesList), func(context.Context, json.RawMessage) (any, error) {
		return mcp.ListResourcesResult{Resources: []mcp.Resource{}}, nil
	})
	return r
}
