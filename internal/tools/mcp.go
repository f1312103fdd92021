package tools

import (
	"encoding/json"

	"github.com/indubitably-ai/agentcore/internal/toolerr"
)

// McpHandler is the MCP archetype (spec §4.B "MCP"): route a call to its
// pooled client by server name, with a single retry after marking the
// server unhealthy if the first call fails transiently (a dropped stdio
// pipe, a crashed server process). Grounded on the teacher's MCP tool
// wiring (mcp.Pool.CallTool, internal/mcp/manager.go), which this core's
// mcp package already generalizes from the teacher's enable/disable
// lifecycle into a TTL'd pool; this handler is the thin archetype glue
// spec.md's dispatch table needs on top of that pool.
type McpHandler struct{}

func NewMcpHandler() *McpHandler { return &McpHandler{} }

func (h *McpHandler) Kind() Kind { return KindMcp }

func (h *McpHandler) MatchesKind(p Payload) bool { return p.Kind == KindMcp }

// Handle calls Payload.Server/Payload.Tool through the invocation's pool.
// A nil Pool is a configuration error (no MCP servers wired), reported as
// System so the registry treats it as fatal rather than a retryable result.
func (h *McpHandler) Handle(inv Invocation) (Output, error) {
	if inv.Pool == nil {
		return Output{}, toolerr.SystemErr("no mcp pool configured")
	}
	if inv.Payload.Server == "" || inv.Payload.Tool == "" {
		return Output{}, toolerr.ValidationErr("mcp call missing server/tool")
	}

	args := json.RawMessage(inv.Payload.RawArguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	result, err := inv.Pool.CallTool(inv.Ctx, inv.Payload.Server, inv.Payload.Tool, args)
	if err != nil {
		if inv.Ctx.Err() != nil {
			return Output{}, toolerr.CancelledErr("mcp call cancelled: %v", err)
		}
		// One retry after marking the server unhealthy: the next GetClient
		// call inside Pool.CallTool respawns it (spec §4.I).
		inv.Pool.MarkUnhealthy(inv.Payload.Server)
		result, err = inv.Pool.CallTool(inv.Ctx, inv.Payload.Server, inv.Payload.Tool, args)
		if err != nil {
			return Output{}, toolerr.TransientErr("mcp call to %s/%s failed: %v", inv.Payload.Server, inv.Payload.Tool, err)
		}
	}

	return McpOutput(result), nil
}
