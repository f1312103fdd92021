package tools

import (
	"context"
	"time"

	"github.com/indubitably-ai/agentcore/internal/interrupt"
	"github.com/indubitably-ai/agentcore/internal/llm"
	mcpclient "github.com/indubitably-ai/agentcore/internal/mcp"
	"github.com/indubitably-ai/agentcore/internal/policy"
	"github.com/indubitably-ai/agentcore/internal/session"
	"github.com/indubitably-ai/agentcore/internal/telemetry"
	"github.com/indubitably-ai/agentcore/internal/toolerr"
	"github.com/indubitably-ai/agentcore/internal/tracker"
)

// TurnContext carries the turn-scoped collaborators a Handler's Invocation
// needs (spec §3's Tool Invocation fields beyond the call itself): the
// Policy and MCP Pool are session-lifetime, the Tracker is fresh per turn
// (spec §4.F), Cwd/SubID/Interrupt/Session round out the rest. The registry
// has no opinion on how a turn assembles one — that's the session/engine
// loop's job — it just forwards it onto each Invocation.
type TurnContext struct {
	Session   *session.Session
	Tracker   *tracker.Tracker
	Policy    *policy.Policy
	Interrupt *interrupt.Manager
	Pool      *mcpclient.Pool
	Cwd       string
	SubID     string
}

// Registry is the name→handler dispatch table (spec §4.C). Grounded on the
// teacher's LocalToolRegistry (internal/tools/registry.go), generalized with
// the spec's typed error-kind→disposition taxonomy, which the teacher's
// registry does not have (it returns plain errors).
type Registry struct {
	specs    *SpecTable
	handlers map[string]Handler
	sink     *telemetry.Sink
}

// NewRegistry builds an empty registry backed by specs. sink may be nil,
// which records nothing.
func NewRegistry(specs *SpecTable, sink *telemetry.Sink) *Registry {
	if sink == nil {
		sink = telemetry.NewDiscardSink()
	}
	return &Registry{specs: specs, handlers: make(map[string]Handler), sink: sink}
}

// Register binds a tool name to the handler that serves it. The name must
// already carry a spec (registered via SpecTable.Register) so MCP
// namespaced names ("server/tool") and plain function names share one
// lookup path.
func (r *Registry) Register(name string, handler Handler) {
	r.handlers[name] = handler
}

// Specs returns the backing spec table, for building a model Request.
func (r *Registry) Specs() *SpecTable { return r.specs }

// DispatchResult carries the wire block plus, for a Fatal-class error
// (spec §7: Sandbox/System/Protocol), the underlying error so the
// scheduler can abort the turn instead of delivering the block as an
// ordinary tool result.
type DispatchResult struct {
	Block    llm.ToolResultBlock
	FatalErr error
}

// Dispatch runs the spec §4.C algorithm: lookup, kind match, telemetry
// span, typed-error classification, wire tool-result conversion. The
// registry itself never retries a handler; a retry (e.g. MCP's one-shot
// reconnect) is the handler's own concern (spec §4.B). turn supplies the
// collaborators (policy, tracker, mcp pool, ...) every Invocation carries.
func (r *Registry) Dispatch(ctx context.Context, call ToolCall, turn TurnContext) DispatchResult {
	start := time.Now()

	handler, ok := r.handlers[call.ToolName]
	if !ok {
		return r.respondToModel(call, start, "tool not found: "+call.ToolName)
	}
	if !handler.MatchesKind(call.Payload) {
		return r.respondToModel(call, start, "incompatible payload for tool: "+call.ToolName)
	}

	inv := Invocation{
		Ctx:       ctx,
		Session:   turn.Session,
		Tracker:   turn.Tracker,
		Policy:    turn.Policy,
		Interrupt: turn.Interrupt,
		Pool:      turn.Pool,
		Cwd:       turn.Cwd,
		SubID:     turn.SubID,
		CallID:    call.CallID,
		ToolName:  call.ToolName,
		Payload:   call.Payload,
	}

	output, err := handler.Handle(inv)
	if err != nil {
		return r.classify(call, start, err)
	}

	content := output.Content
	if output.Kind == OutputMcp && output.McpResult != nil {
		content = mcpclient.FormatContent(output.McpResult.Content)
	}
	isError := output.IsError()

	r.record(call, start, !isError, "", len(content), output.Truncated)
	return DispatchResult{Block: llm.ToolResultBlock{CallID: call.CallID, Content: content, IsError: isError}}
}

// classify converts a handler's typed error into a dispatch result per the
// §7 disposition table, tagging Fatal-class errors for the scheduler.
func (r *Registry) classify(call ToolCall, start time.Time, err error) DispatchResult {
	te, ok := toolerr.As(err)
	kind := string(toolerr.System)
	if ok {
		kind = string(te.Kind)
	}
	r.record(call, start, false, kind, 0, false)

	block := llm.ToolResultBlock{CallID: call.CallID, Content: err.Error(), IsError: true}
	if toolerr.Classify(err) == toolerr.Fatal {
		return DispatchResult{Block: block, FatalErr: err}
	}
	return DispatchResult{Block: block}
}

func (r *Registry) respondToModel(call ToolCall, start time.Time, message string) DispatchResult {
	r.record(call, start, false, "", len(message), false)
	return DispatchResult{Block: llm.ToolResultBlock{CallID: call.CallID, Content: message, IsError: true}}
}

func (r *Registry) record(call ToolCall, start time.Time, success bool, errKind string, outputBytes int, truncated bool) {
	_ = r.sink.RecordEvent(telemetry.Event{
		Timestamp:   start,
		ToolName:    call.ToolName,
		CallID:      call.CallID,
		DurationMs:  time.Since(start).Milliseconds(),
		Success:     success,
		ErrorKind:   errKind,
		OutputBytes: outputBytes,
		Truncated:   truncated,
	})
}
