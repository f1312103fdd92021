package router

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/indubitably-ai/agentcore/internal/tools"
)

func TestParse_ToolUseFunction(t *testing.T) {
	call, err := Parse(Block{Kind: BlockToolUse, ID: "call_1", Name: "read_file", Input: json.RawMessage(`{"file_path":"a.go"}`)})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if call.CallID != "call_1" || call.ToolName != "read_file" {
		t.Errorf("unexpected call: %+v", call)
	}
	if call.Payload.Kind != tools.KindFunction {
		t.Errorf("expected KindFunction, got %v", call.Payload.Kind)
	}
}

func TestParse_McpDetectedBySlash(t *testing.T) {
	call, err := Parse(Block{Kind: BlockToolUse, ID: "call_2", Name: "weather/forecast", Input: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if call.Payload.Kind != tools.KindMcp || call.Payload.Server != "weather" || call.Payload.Tool != "forecast" {
		t.Errorf("expected mcp server/tool split, got: %+v", call.Payload)
	}
}

func TestParse_LocalShellCallUsesCallID(t *testing.T) {
	call, err := Parse(Block{Kind: BlockLocalShellCall, CallID: "shell_1", Name: "shell", Input: json.RawMessage(`{"command":"ls"}`)})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if call.CallID != "shell_1" || call.Payload.Kind != tools.KindLocalShell {
		t.Errorf("unexpected call: %+v", call)
	}
}

func TestParse_LocalShellCallFallsBackToID(t *testing.T) {
	call, err := Parse(Block{Kind: BlockLocalShellCall, ID: "legacy_1", Name: "shell", Input: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if call.CallID != "legacy_1" {
		t.Errorf("expected fallback to id, got %q", call.CallID)
	}
}

func TestParse_LocalShellCallMissingBothIsFatal(t *testing.T) {
	_, err := Parse(Block{Kind: BlockLocalShellCall, Name: "shell", Input: json.RawMessage(`{}`)})
	if err == nil || !strings.Contains(err.Error(), "neither call_id nor id") {
		t.Fatalf("expected a missing-identifier error, got %v", err)
	}
}

func TestParse_CustomToolCall(t *testing.T) {
	call, err := Parse(Block{Kind: BlockCustomToolCall, ID: "call_3", Name: "my_custom_tool", Input: json.RawMessage(`{"x":1}`)})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if call.Payload.Kind != tools.KindCustom || call.Payload.CustomName != "my_custom_tool" {
		t.Errorf("unexpected call: %+v", call)
	}
}

func TestParse_UnifiedExecReservedName(t *testing.T) {
	call, err := Parse(Block{Kind: BlockToolUse, ID: "call_4", Name: "unified_exec", Input: json.RawMessage(`{"command":"echo hi"}`)})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if call.Payload.Kind != tools.KindUnifiedExec {
		t.Errorf("expected KindUnifiedExec, got %v", call.Payload.Kind)
	}
}

func TestParse_EmptyInputDefaultsToEmptyObject(t *testing.T) {
	call, err := Parse(Block{Kind: BlockToolUse, ID: "call_5", Name: "glob"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if call.Payload.RawArguments != "{}" {
		t.Errorf("expected default empty object, got %q", call.Payload.RawArguments)
	}
}
