package tools

import (
	"context"

	"github.com/indubitably-ai/agentcore/internal/interrupt"
	"github.com/indubitably-ai/agentcore/internal/mcp"
	"github.com/indubitably-ai/agentcore/internal/policy"
	"github.com/indubitably-ai/agentcore/internal/session"
	"github.com/indubitably-ai/agentcore/internal/tracker"
)

// Kind categorizes handlers for permission grouping (spec §4.B "kind()").
// Grounded on the teacher's ToolKind (internal/tools/types.go), extended
// with KindMcp since MCP dispatch is a first-class archetype here.
type Kind string

const (
	KindRead    Kind = "read"
	KindEdit    Kind = "edit"
	KindSearch  Kind = "search"
	KindExecute Kind = "execute"
	KindMcp     Kind = "mcp"
)

// Invocation is the context passed to a Handler (spec §3 "Tool Invocation").
// Values are short-lived; a Handler must not retain a reference beyond the
// call that receives it.
type Invocation struct {
	Ctx context.Context

	Session   *session.Session
	Tracker   *tracker.Tracker
	Policy    *policy.Policy
	Interrupt *interrupt.Manager
	Pool      *mcp.Pool

	Cwd    string
	SubID  string
	CallID string

	ToolName string
	Payload  Payload
}

// Handler is the capability contract every tool family implements (spec
// §4.B). Stateless and reentrant; all per-call state lives in Invocation.
type Handler interface {
	Kind() Kind
	MatchesKind(p Payload) bool
	Handle(inv Invocation) (Output, error)
}
