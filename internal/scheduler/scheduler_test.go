package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/indubitably-ai/agentcore/internal/interrupt"
	"github.com/indubitably-ai/agentcore/internal/llm"
	"github.com/indubitably-ai/agentcore/internal/tools"
	"github.com/indubitably-ai/agentcore/internal/toolerr"
)

// panicHandler always panics, to exercise Run's per-call recover.
type panicHandler struct{}

func (h panicHandler) Kind() tools.Kind                 { return tools.KindExecute }
func (h panicHandler) MatchesKind(p tools.Payload) bool { return p.Kind == tools.KindFunction }
func (h panicHandler) Handle(inv tools.Invocation) (tools.Output, error) {
	panic("boom")
}

// sleepHandler simulates an I/O-bound tool call of a fixed duration, the
// same probing shape spec §8's "two parallel/serial tools sleeping 300ms
// each" scenarios use.
type sleepHandler struct{ d time.Duration }

func (h sleepHandler) Kind() tools.Kind                   { return tools.KindExecute }
func (h sleepHandler) MatchesKind(p tools.Payload) bool   { return p.Kind == tools.KindFunction }
func (h sleepHandler) Handle(inv tools.Invocation) (tools.Output, error) {
	time.Sleep(h.d)
	return tools.TextOutput("done"), nil
}

func newTestRegistry(parallelName, serialName string, d time.Duration) *tools.Registry {
	specs := tools.NewSpecTable()
	specs.Register(llm.ToolSpec{Name: parallelName, Description: "p", Schema: map[string]interface{}{"type": "object"}, SupportsParallel: true})
	specs.Register(llm.ToolSpec{Name: serialName, Description: "s", Schema: map[string]interface{}{"type": "object"}, SupportsParallel: false})

	reg := tools.NewRegistry(specs, nil)
	reg.Register(parallelName, sleepHandler{d: d})
	reg.Register(serialName, sleepHandler{d: d})
	return reg
}

func callsFor(name string, n int) []tools.ToolCall {
	calls := make([]tools.ToolCall, n)
	for i := range calls {
		calls[i] = tools.ToolCall{
			ToolName: name,
			CallID:   name + string(rune('0'+i)),
			Payload:  tools.Payload{Kind: tools.KindFunction, RawArguments: "{}"},
		}
	}
	return calls
}

func TestScheduler_ParallelCallsOverlap(t *testing.T) {
	reg := newTestRegistry("parallel_sleep", "serial_sleep", 300*time.Millisecond)
	sched := New(reg)

	start := time.Now()
	results := sched.Run(context.Background(), callsFor("parallel_sleep", 2), tools.TurnContext{})
	elapsed := time.Since(start)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if elapsed >= 450*time.Millisecond {
		t.Errorf("expected parallel calls to overlap (< 1.5x single duration), took %v", elapsed)
	}
}

func TestScheduler_SerialCallsDoNotOverlap(t *testing.T) {
	reg := newTestRegistry("parallel_sleep", "serial_sleep", 300*time.Millisecond)
	sched := New(reg)

	start := time.Now()
	results := sched.Run(context.Background(), callsFor("serial_sleep", 2), tools.TurnContext{})
	elapsed := time.Since(start)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if elapsed < 580*time.Millisecond {
		t.Errorf("expected serial calls to not overlap (>= 2x single duration minus slack), took %v", elapsed)
	}
}

func TestScheduler_PreservesResultOrder(t *testing.T) {
	specs := tools.NewSpecTable()
	specs.Register(llm.ToolSpec{Name: "echo", Description: "e", Schema: map[string]interface{}{"type": "object"}, SupportsParallel: true})
	reg := tools.NewRegistry(specs, nil)
	reg.Register("echo", sleepHandler{d: 0})

	calls := []tools.ToolCall{
		{ToolName: "echo", CallID: "a", Payload: tools.Payload{Kind: tools.KindFunction, RawArguments: "{}"}},
		{ToolName: "echo", CallID: "b", Payload: tools.Payload{Kind: tools.KindFunction, RawArguments: "{}"}},
		{ToolName: "echo", CallID: "c", Payload: tools.Payload{Kind: tools.KindFunction, RawArguments: "{}"}},
	}

	sched := New(reg)
	results := sched.Run(context.Background(), calls, tools.TurnContext{})
	for i, want := range []string{"a", "b", "c"} {
		if results[i].Block.CallID != want {
			t.Errorf("expected result %d to have call id %q, got %q", i, want, results[i].Block.CallID)
		}
	}
}

func TestScheduler_InterruptShortCircuitsBeforeStart(t *testing.T) {
	specs := tools.NewSpecTable()
	specs.Register(llm.ToolSpec{Name: "slow", Description: "s", Schema: map[string]interface{}{"type": "object"}})
	reg := tools.NewRegistry(specs, nil)
	reg.Register("slow", sleepHandler{d: 50 * time.Millisecond})

	mgr := interrupt.New()
	mgr.Arm()
	mgr.Fire()

	sched := New(reg)
	call := tools.ToolCall{ToolName: "slow", CallID: "x", Payload: tools.Payload{Kind: tools.KindFunction, RawArguments: "{}"}}
	results := sched.Run(context.Background(), []tools.ToolCall{call}, tools.TurnContext{Interrupt: mgr})

	if len(results) != 1 || !results[0].Block.IsError || results[0].Block.Content != "cancelled" {
		t.Fatalf("expected a cancelled result, got %+v", results)
	}
}

func TestScheduler_GuardAcquisitionTimesOut(t *testing.T) {
	reg := newTestRegistry("parallel_sleep", "serial_sleep", 200*time.Millisecond)
	sched := New(reg).WithGuardTimeout(20 * time.Millisecond)

	calls := callsFor("serial_sleep", 2)

	results := sched.Run(context.Background(), calls, tools.TurnContext{})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	timedOut := false
	for _, r := range results {
		if r.Block.IsError && strings.Contains(r.Block.Content, string(toolerr.Timeout)) {
			timedOut = true
		}
	}
	if !timedOut {
		t.Fatalf("expected one call to time out waiting for the guard, got %+v", results)
	}
}

func TestScheduler_RecoversFromPanic(t *testing.T) {
	specs := tools.NewSpecTable()
	specs.Register(llm.ToolSpec{Name: "boom", Description: "b", Schema: map[string]interface{}{"type": "object"}})
	reg := tools.NewRegistry(specs, nil)
	reg.Register("boom", panicHandler{})

	calls := []tools.ToolCall{
		{ToolName: "boom", CallID: "a", Payload: tools.Payload{Kind: tools.KindFunction, RawArguments: "{}"}},
		{ToolName: "boom", CallID: "b", Payload: tools.Payload{Kind: tools.KindFunction, RawArguments: "{}"}},
	}

	sched := New(reg)
	results := sched.Run(context.Background(), calls, tools.TurnContext{})
	for _, r := range results {
		if !r.Block.IsError {
			t.Errorf("expected panicking call to report an error result, got %+v", r)
		}
	}
}
