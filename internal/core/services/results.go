// Package services implements the tool operations exposed over MCP.
// Each service wraps a set of Microsoft Graph workflows and returns
// JSON-shaped result maps; expected failures are reported in-band as
// {"status": "error", "message": ...} rather than as Go errors, so a
// broken Graph call never turns into a protocol-level failure.
package services

import "fmt"

// Result is the JSON payload a tool returns.
type Result = map[string]any

// errorf builds an error result.
func errorf(format string, args ...any) Result {
	return Result{"status": "error", "message": fmt.Sprintf(format, args...)}
}

// clampTop bounds an OData $top value to the Graph-accepted range.
func clampTop(top, fallback int) int {
	if top == 0 {
		top = fallback
	}
	if top < 1 {
		return 1
	}
	if top > 999 {
		return 999
	}
	return top
}

// values extracts the collection from an OData list response.
func values(body map[string]any) []any {
	if v, ok := body["value"].([]any); ok {
		return v
	}
	return []any{}
}
