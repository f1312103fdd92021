package tools

import "github.com/modelcontextprotocol/go-sdk/mcp"

// OutputKind tags the variant carried by an Output (spec §3 "Tool Output").
type OutputKind string

const (
	OutputFunction OutputKind = "function_result"
	OutputMcp      OutputKind = "mcp_result"
)

// Output is the tagged result a Handler produces. Exactly one of Content or
// McpResult is meaningful, selected by Kind.
type Output struct {
	Kind     OutputKind
	Content  string
	Success  bool
	Metadata map[string]any
	McpResult *mcp.CallToolResult

	// TimedOut and Truncated are surfaced by the formatter (§4.G) and by
	// shell-like handlers so the registry can record them in telemetry
	// without re-parsing Content.
	TimedOut  bool
	Truncated bool
}

// TextOutput builds a successful FunctionResult from plain text.
func TextOutput(content string) Output {
	return Output{Kind: OutputFunction, Content: content, Success: true}
}

// ErrorOutput builds a failed FunctionResult carrying a model-facing message.
// Used by handlers that want to report a soft failure without going through
// toolerr (rare — prefer returning a *toolerr.Error from Handle).
func ErrorOutput(content string) Output {
	return Output{Kind: OutputFunction, Content: content, Success: false}
}

// McpOutput wraps a raw MCP call result.
func McpOutput(result *mcp.CallToolResult) Output {
	out := Output{Kind: OutputMcp, McpResult: result}
	if result != nil {
		out.Success = !result.IsError
	}
	return out
}

// IsError reports whether this output should be delivered with is_error=true.
func (o Output) IsError() bool {
	switch o.Kind {
	case OutputMcp:
		return o.McpResult != nil && o.McpResult.IsError
	default:
		return !o.Success
	}
}
