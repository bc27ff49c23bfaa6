package tools

import (
	"context"
	"runtime"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// ProbeToolSet is a deterministic tool set for smoke tests without a browser.
func ProbeToolSet(clientID string) *ToolSet {
	set := NewToolSet()
	started := time.Now()
	set.Add(mcp.NewTool("browser_ping",
		mcp.WithDescription("Reply with pong"),
		mcp.WithReadOnlyHintAnnotation(true),
	), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("pong"), nil
	})
	set.Add(mcp.NewTool("browser_echo",
		mcp.WithDescription("Echo the given text"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to echo back")),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	})
	set.Add(mcp.NewTool("browser_info",
		mcp.WithDescription("Describe the probe client"),
		mcp.WithReadOnlyHintAnnotation(true),
	), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		info := map[string]any{
			"client_id": clientID,
			"goos":      runtime.GOOS,
			"uptime_ms": time.Since(started).Milliseconds(),
		}
		return mcp.NewToolResultStructured(info, "nfrx-browser probe "+clientID), nil
	})
	return set
}
