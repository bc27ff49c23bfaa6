package tools

import "github.com/mark3labs/mcp-go/mcp"

func urlPattern() mcp.ToolOption {
	return mcp.WithString("urlPattern", mcp.Description(`URL pattern to match (e.g., "localhost:3000")`))
}

func selector(required bool) mcp.ToolOption {
	opts := []mcp.PropertyOption{mcp.Description("CSS selector")}
	if required {
		opts = append(opts, mcp.Required())
	}
	return mcp.WithString("selector", opts...)
}

// BrowserCatalog describes the tools the browser extension executes. The bridge
// only advertises them; calls are forwarded to the extension.
func BrowserCatalog() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool("getDOM",
			mcp.WithDescription("Get DOM tree from a browser tab"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
			mcp.WithString("selector", mcp.Description("Optional: CSS selector to get specific element")),
			mcp.WithNumber("maxDepth", mcp.Description("Optional: Maximum depth to traverse"), mcp.DefaultNumber(10)),
		),
		mcp.NewTool("querySelector",
			mcp.WithDescription("Query DOM elements using CSS selectors"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
			selector(true),
			mcp.WithBoolean("all", mcp.Description("Find all matches (querySelectorAll)")),
		),
		mcp.NewTool("getAttributes",
			mcp.WithDescription("Get attributes of a DOM element"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
			selector(true),
		),
		mcp.NewTool("findByText",
			mcp.WithDescription("Find elements by text content"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
			mcp.WithString("text", mcp.Description("Text to search for"), mcp.Required()),
			mcp.WithBoolean("exact", mcp.Description("Exact match"), mcp.DefaultBool(false)),
		),
		mcp.NewTool("evaluateCode",
			mcp.WithDescription("Execute JavaScript code in a browser tab"),
			mcp.WithDestructiveHintAnnotation(true),
			urlPattern(),
			mcp.WithString("expression", mcp.Description("JavaScript expression to evaluate"), mcp.Required()),
			mcp.WithBoolean("returnByValue", mcp.Description("Return result by value"), mcp.DefaultBool(true)),
		),
		mcp.NewTool("getPageTitle",
			mcp.WithDescription("Get the page title from a browser tab"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
		),
		mcp.NewTool("getConsole",
			mcp.WithDescription("Get console messages from a browser tab"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
			mcp.WithArray("types", mcp.Description("Message types to filter (log, warn, error, info, debug)"),
				mcp.WithStringItems(mcp.Enum("log", "warn", "error", "info", "debug"))),
		),
		mcp.NewTool("clearConsole",
			mcp.WithDescription("Clear console messages from a browser tab"),
			urlPattern(),
		),
		mcp.NewTool("getCSSStyles",
			mcp.WithDescription("Get computed CSS styles for an element"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
			selector(true),
			mcp.WithArray("properties", mcp.Description("Specific CSS properties to fetch, all when omitted"), mcp.WithStringItems()),
		),
		mcp.NewTool("findCSSRule",
			mcp.WithDescription("Find CSS rules that apply to an element"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
			selector(true),
			mcp.WithString("property", mcp.Description("Optional: specific CSS property to find")),
		),
		mcp.NewTool("getNetwork",
			mcp.WithDescription("Get network requests from a browser tab"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
			mcp.WithString("filter", mcp.Description("Filter requests by URL")),
		),
		mcp.NewTool("getFailedRequests",
			mcp.WithDescription("Get failed network requests (4xx, 5xx) from a browser tab"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
		),
		mcp.NewTool("getLocalStorage",
			mcp.WithDescription("Get localStorage entries from a browser tab"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
		),
		mcp.NewTool("getCookies",
			mcp.WithDescription("Get cookies visible to a browser tab"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
		),
		mcp.NewTool("detectFramework",
			mcp.WithDescription("Detect JavaScript framework used in the page"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
		),
		mcp.NewTool("getComponentTree",
			mcp.WithDescription("Get component tree structure"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
			mcp.WithNumber("maxDepth", mcp.Description("Maximum depth to traverse"), mcp.DefaultNumber(5)),
		),
		mcp.NewTool("listTabs",
			mcp.WithDescription("List open browser tabs"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcp.NewTool("getTabInfo",
			mcp.WithDescription("Get URL, title and status of a browser tab"),
			mcp.WithReadOnlyHintAnnotation(true),
			urlPattern(),
		),
	}
}
