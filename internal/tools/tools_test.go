package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gaspardpetit/nfrx-browser/internal/mcpwire"
)

func marshal(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func codeOf(err error) int {
	var rpcErr *mcpwire.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return 0
}

func TestLocalInitialize(t *testing.T) {
	connected := false
	local := NewLocal(ServerInfo{Name: "browser-mcp", Version: "1.2.3", Connected: func() bool { return connected }})
	if !local.Has("initialize") || local.Has("tools/call") {
		t.Fatalf("unexpected local method set %v", local.Names())
	}

	res, err := local.Execute(context.Background(), "initialize", json.RawMessage(`{"protocolVersion":"1999-01-01"}`))
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	m := marshal(t, res)
	if m["protocolVersion"] != DefaultProtocolVersion {
		t.Fatalf("protocol version %v", m["protocolVersion"])
	}
	info := m["serverInfo"].(map[string]any)
	if info["name"] != "browser-mcp" || info["version"] != "1.2.3" {
		t.Fatalf("server info %v", info)
	}
	caps := m["capabilities"].(map[string]any)
	for _, k := range []string{"tools", "prompts", "resources"} {
		if _, ok := caps[k]; !ok {
			t.Fatalf("capability %s missing: %v", k, caps)
		}
	}
	if !strings.Contains(m["instructions"].(string), "not connected") {
		t.Fatalf("expected waiting instructions, got %v", m["instructions"])
	}

	connected = true
	res, _ = local.Execute(context.Background(), "initialize", json.RawMessage(`{"protocolVersion":"2025-06-18"}`))
	m = marshal(t, res)
	if m["protocolVersion"] != "2025-06-18" || !strings.Contains(m["instructions"].(string), "Connected") {
		t.Fatalf("connected initialize %v", m)
	}

	if _, err := local.Execute(context.Background(), "initialize", json.RawMessage(`[`)); codeOf(err) != mcpwire.CodeInvalidParams {
		t.Fatalf("expected invalid params got %v", err)
	}
}

func TestLocalLists(t *testing.T) {
	local := NewLocal(ServerInfo{Name: "n", Version: "v", Catalog: BrowserCatalog()})
	res, err := local.Execute(context.Background(), "tools/list", nil)
	if err != nil {
		t.Fatalf("tools/list: %v", err)
	}
	tools := marshal(t, res)["tools"].([]any)
	if len(tools) != len(BrowserCatalog()) {
		t.Fatalf("tool count %d", len(tools))
	}
	first := tools[0].(map[string]any)
	if first["name"] != "getDOM" || first["inputSchema"] == nil {
		t.Fatalf("first tool %v", first)
	}

	res, _ = local.Execute(context.Background(), "prompts/list", nil)
	if p := marshal(t, res)["prompts"].([]any); len(p) != 0 {
		t.Fatalf("prompts %v", p)
	}
	res, _ = local.Execute(context.Background(), "resources/list", nil)
	if r := marshal(t, res)["resources"].([]any); len(r) != 0 {
		t.Fatalf("resources %v", r)
	}
	if _, err := local.Execute(context.Background(), "tools/call", nil); codeOf(err) != mcpwire.CodeMethodNotFound {
		t.Fatalf("expected method not found got %v", err)
	}
}

func TestCatalogSchemas(t *testing.T) {
	seen := map[string]bool{}
	for _, tool := range BrowserCatalog() {
		if seen[tool.Name] {
			t.Fatalf("duplicate tool %s", tool.Name)
		}
		seen[tool.Name] = true
		if tool.Description == "" || tool.InputSchema.Type != "object" {
			t.Fatalf("tool %s lacks description or schema", tool.Name)
		}
	}
	var qs mcp.Tool
	for _, tool := range BrowserCatalog() {
		if tool.Name == "querySelector" {
			qs = tool
		}
	}
	if len(qs.InputSchema.Required) != 1 || qs.InputSchema.Required[0] != "selector" {
		t.Fatalf("querySelector required %v", qs.InputSchema.Required)
	}
}

func TestExtensionTable(t *testing.T) {
	ext := NewExtension("probe", "dev", ProbeToolSet("c1"))
	ctx := context.Background()

	res, err := ext.Execute(ctx, "tools/list", nil)
	if err != nil {
		t.Fatalf("tools/list: %v", err)
	}
	if n := len(marshal(t, res)["tools"].([]any)); n != 3 {
		t.Fatalf("probe tools %d", n)
	}

	res, err = ext.Execute(ctx, "tools/call", json.RawMessage(`{"name":"browser_echo","arguments":{"text":"hi"}}`))
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	content := marshal(t, res)["content"].([]any)
	if content[0].(map[string]any)["text"] != "hi" {
		t.Fatalf("echo content %v", content)
	}

	res, err = ext.Execute(ctx, "tools/call", json.RawMessage(`{"name":"browser_echo","arguments":{}}`))
	if err != nil || marshal(t, res)["isError"] != true {
		t.Fatalf("missing argument should be a tool error result, got %v %v", res, err)
	}

	if _, err := ext.Execute(ctx, "tools/call", json.RawMessage(`{"name":"nope"}`)); codeOf(err) != mcpwire.CodeInvalidParams {
		t.Fatalf("unknown tool: expected -32602 got %v", err)
	}
	if _, err := ext.Execute(ctx, "tools/call", json.RawMessage(`{}`)); codeOf(err) != mcpwire.CodeInvalidParams {
		t.Fatalf("missing name: expected -32602 got %v", err)
	}
	if _, err := ext.Execute(ctx, "resources/read", nil); codeOf(err) != mcpwire.CodeMethodNotFound {
		t.Fatalf("unknown method: expected -32601 got %v", err)
	}
}

func TestToolSetReplaceKeepsOrder(t *testing.T) {
	set := NewToolSet()
	noop := func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(""), nil
	}
	set.Add(mcp.NewTool("a"), noop)
	set.Add(mcp.NewTool("b"), noop)
	set.Add(mcp.NewTool("a", mcp.WithDescription("again")), noop)
	list := set.List()
	if len(list) != 2 || list[0].Name != "a" || list[0].Description != "again" || list[1].Name != "b" {
		t.Fatalf("unexpected list %+v", list)
	}
}
