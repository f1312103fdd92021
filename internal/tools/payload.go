package tools

// PayloadKind tags a ToolPayload variant (spec §3 "Tool Payload").
type PayloadKind string

const (
	KindFunction    PayloadKind = "function"
	KindUnifiedExec PayloadKind = "unified_exec"
	KindMcp         PayloadKind = "mcp"
	KindLocalShell  PayloadKind = "local_shell" // legacy
	KindCustom      PayloadKind = "custom"
)

// Payload is the tagged union the router produces and handlers consume.
// Exactly one of the typed fields is populated, selected by Kind. Raw
// arguments are left as unparsed strings so the router stays schema-agnostic
// (spec §4.A: "routing depends on payload variant alone").
type Payload struct {
	Kind PayloadKind

	// Function / UnifiedExec / Custom carry raw, undecoded arguments.
	RawArguments string

	// Mcp additionally carries the server/tool split performed by the router.
	Server string
	Tool   string

	// LocalShell carries the legacy action verbatim; handlers that still
	// understand it decode Action themselves.
	Action string

	// Custom carries the model-declared custom tool name alongside its raw
	// input, distinct from Tool (which is MCP-specific).
	CustomName string
}

// ToolCall is a model-requested tool invocation (spec §3 "Tool Call").
type ToolCall struct {
	ToolName string
	CallID   string
	Payload  Payload
}
