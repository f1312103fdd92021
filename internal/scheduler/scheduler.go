// Package scheduler runs one turn's tool calls under the reader/writer
// discipline spec §4.E describes: parallel-safe calls share a read guard,
// everything else takes an exclusive write guard. The guard is a
// sync.RWMutex taken by polling TryRLock/TryLock (see acquireGuard), so a
// waiting writer is never registered as pending: readers that arrive after
// it can still take the read guard ahead of it, and calls get the guard in
// whatever order their polls find it free, not in arrival order. Grounded on the
// teacher's internal/llm/engine.go executeToolCalls (goroutine + WaitGroup +
// index-keyed result channel, panic recovery per call, single-call fast
// path), adapted from a flat message slice to tools.DispatchResult and from
// "parallel always" to "parallel iff supports_parallel."
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/indubitably-ai/agentcore/internal/llm"
	"github.com/indubitably-ai/agentcore/internal/tools"
	"github.com/indubitably-ai/agentcore/internal/toolerr"
)

// DefaultGuardTimeout is the spec's stated default for guard acquisition
// (spec §4.E/§5/§7: "configurable timeout (default: 30s)").
const DefaultGuardTimeout = 30 * time.Second

// guardPollInterval is how often a blocked acquireGuard re-polls TryLock/
// TryRLock while waiting for the timeout to elapse.
const guardPollInterval = 2 * time.Millisecond

// Scheduler runs a turn's tool calls against a Registry, enforcing the
// reader/writer guard and cooperative cancellation.
type Scheduler struct {
	registry     *tools.Registry
	guard        sync.RWMutex
	guardTimeout time.Duration
}

// New builds a Scheduler bound to registry for looking up supports_parallel,
// with the spec's default 30s guard-acquisition timeout.
func New(registry *tools.Registry) *Scheduler {
	return &Scheduler{registry: registry, guardTimeout: DefaultGuardTimeout}
}

// WithGuardTimeout overrides the default guard-acquisition timeout.
func (s *Scheduler) WithGuardTimeout(d time.Duration) *Scheduler {
	s.guardTimeout = d
	return s
}

// Run dispatches calls, preserving result order to match the originating
// tool_use order regardless of completion order (spec §4.E "Ordering
// guarantee"). A call with Interrupt's fire observed before it starts is
// short-circuited to a cancelled result rather than launched. A Fatal result
// (spec §7 Sandbox/System/Protocol) is reported in its own slot's FatalErr;
// it does not cancel or skip the batch's other calls, which all run.
func (s *Scheduler) Run(ctx context.Context, calls []tools.ToolCall, turn tools.TurnContext) []tools.DispatchResult {
	if len(calls) == 0 {
		return nil
	}
	if len(calls) == 1 {
		return []tools.DispatchResult{s.runOne(ctx, calls[0], turn)}
	}

	type indexed struct {
		index  int
		result tools.DispatchResult
	}

	var wg sync.WaitGroup
	out := make(chan indexed, len(calls))

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c tools.ToolCall) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					out <- indexed{idx, tools.DispatchResult{Block: llm.ToolResultBlock{
						CallID:  c.CallID,
						Content: fmt.Sprintf("tool panicked: %v", r),
						IsError: true,
					}}}
				}
			}()
			out <- indexed{idx, s.runOne(ctx, c, turn)}
		}(i, call)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]tools.DispatchResult, len(calls))
	for r := range out {
		results[r.index] = r.result
	}
	return results
}

// runOne acquires the appropriate guard for call's parallelism, then
// dispatches it. A read guard (RLock) is taken for supports_parallel=true
// calls so many can run at once; every other call takes the write guard
// (TryLock), which Go's RWMutex already excludes from concurrent readers
// and other writers. Acquisition is bounded by guardTimeout; a call that
// cannot get the guard in time fails with a Timeout-classified result
// instead of blocking the turn forever (spec §4.E/§5/§7).
func (s *Scheduler) runOne(ctx context.Context, call tools.ToolCall, turn tools.TurnContext) tools.DispatchResult {
	if turn.Interrupt != nil && turn.Interrupt.Check() {
		return tools.DispatchResult{Block: llm.ToolResultBlock{CallID: call.CallID, Content: "cancelled", IsError: true}}
	}

	parallel := s.registry.Specs().SupportsParallel(call.ToolName)
	release, acquired := s.acquireGuard(parallel)
	if !acquired {
		timeout := s.guardTimeout
		if timeout <= 0 {
			timeout = DefaultGuardTimeout
		}
		err := toolerr.TimeoutErr("timed out after %s waiting for the tool execution guard", timeout)
		result := tools.DispatchResult{Block: llm.ToolResultBlock{CallID: call.CallID, Content: err.Error(), IsError: true}}
		if toolerr.Classify(err) == toolerr.Fatal {
			result.FatalErr = err
		}
		return result
	}
	defer release()

	return s.registry.Dispatch(ctx, call, turn)
}

// acquireGuard polls TryLock/TryRLock until it succeeds or guardTimeout
// elapses, returning the matching release function and whether acquisition
// succeeded. Polling (rather than a blocking Lock in a cancellable
// goroutine) avoids ever leaving a goroutine holding the guard past the
// point the caller has given up on it.
func (s *Scheduler) acquireGuard(parallel bool) (release func(), acquired bool) {
	timeout := s.guardTimeout
	if timeout <= 0 {
		timeout = DefaultGuardTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		if parallel {
			if s.guard.TryRLock() {
				return s.guard.RUnlock, true
			}
		} else {
			if s.guard.TryLock() {
				return s.guard.Unlock, true
			}
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(guardPollInterval)
	}
}
