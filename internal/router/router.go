// Package router parses a model response block into a typed tools.ToolCall
// (spec §4.D "Tool Router"), the seam between the wire format a Provider
// emits and the payload-typed dispatch tools.Registry performs. Grounded on
// the teacher's small pure-function tool-call parsers in internal/llm
// (internal/llm/tools.go's ToolRegistry lookups, internal/llm/codex.go's
// block-kind switch for Responses-API-style tool calls) — no single
// teacher file does exactly this, since the teacher's providers already
// hand back normalized llm.ToolCall values upstream of its registry; this
// package is the spec's own layering built in that idiom.
package router

import (
	"encoding/json"
	"fmt"

	"github.com/indubitably-ai/agentcore/internal/mcp"
	"github.com/indubitably-ai/agentcore/internal/tools"
)

// BlockKind identifies the model response block variants spec §4.D
// recognizes.
type BlockKind string

const (
	BlockToolUse        BlockKind = "tool_use"
	BlockLocalShellCall BlockKind = "local_shell_call"
	BlockCustomToolCall BlockKind = "custom_tool_call"
)

// unifiedExecToolName is the reserved tool_use name that carries a
// UnifiedExec payload (a persistent shell session) instead of a one-shot
// Function call. Open Question decision (DESIGN.md): spec.md names
// UnifiedExec as a Tool Payload variant but doesn't say how the router
// tells it apart from an ordinary function call, since both arrive as a
// tool_use block; this core treats the reserved name "unified_exec" as
// the discriminator, the same way ShellHandler already special-cases it
// in MatchesKind.
const unifiedExecToolName = "unified_exec"

// Block is a single model response block awaiting parse. Provider adapters
// (outside this core) translate their own wire shape into a Block before
// calling Parse.
type Block struct {
	Kind BlockKind

	// ID is the tool_use/custom_tool_call identifier. local_shell_call may
	// carry CallID instead, ID, or both — at least one is required.
	ID     string
	CallID string

	Name  string
	Input json.RawMessage
}

// Parse converts a single Block into a tools.ToolCall. A missing call
// identifier on a local_shell_call block is the one case spec §4.D calls
// out as Fatal, since nothing can pair a result to an absent call_id.
func Parse(b Block) (tools.ToolCall, error) {
	callID, err := resolveCallID(b)
	if err != nil {
		return tools.ToolCall{}, err
	}

	raw := string(b.Input)
	if raw == "" {
		raw = "{}"
	}

	if server, tool, ok := mcp.ParseToolName(b.Name); ok {
		return tools.ToolCall{
			ToolName: b.Name,
			CallID:   callID,
			Payload:  tools.Payload{Kind: tools.KindMcp, Server: server, Tool: tool, RawArguments: raw},
		}, nil
	}

	switch b.Kind {
	case BlockLocalShellCall:
		return tools.ToolCall{
			ToolName: b.Name,
			CallID:   callID,
			Payload:  tools.Payload{Kind: tools.KindLocalShell, Action: raw},
		}, nil
	case BlockCustomToolCall:
		return tools.ToolCall{
			ToolName: b.Name,
			CallID:   callID,
			Payload:  tools.Payload{Kind: tools.KindCustom, CustomName: b.Name, RawArguments: raw},
		}, nil
	default:
		if b.Name == unifiedExecToolName {
			return tools.ToolCall{
				ToolName: b.Name,
				CallID:   callID,
				Payload:  tools.Payload{Kind: tools.KindUnifiedExec, RawArguments: raw},
			}, nil
		}
		return tools.ToolCall{
			ToolName: b.Name,
			CallID:   callID,
			Payload:  tools.Payload{Kind: tools.KindFunction, RawArguments: raw},
		}, nil
	}
}

func resolveCallID(b Block) (string, error) {
	switch b.Kind {
	case BlockLocalShellCall:
		if b.CallID != "" {
			return b.CallID, nil
		}
		if b.ID != "" {
			return b.ID, nil
		}
		return "", fmt.Errorf("local_shell_call block for %q has neither call_id nor id", b.Name)
	default:
		if b.ID != "" {
			return b.ID, nil
		}
		return "", fmt.Errorf("%s block for %q has no id", b.Kind, b.Name)
	}
}

// SupportsParallel looks up whether name may run concurrently with other
// parallel-safe calls, defaulting to false for unknown names (spec §4.D).
func SupportsParallel(specs *tools.SpecTable, name string) bool {
	if specs == nil {
		return false
	}
	return specs.SupportsParallel(name)
}
