// Package session implements the Context Session (spec §4.I): bounded
// message history under a token budget, automatic summarization of older
// turns, pinned-content preservation, and the MCP client pool.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/indubitably-ai/agentcore/internal/llm"
	"github.com/indubitably-ai/agentcore/internal/mcp"
	"github.com/indubitably-ai/agentcore/internal/telemetry"
)

// CompactionConfig mirrors spec §6's "compaction" config section.
type CompactionConfig struct {
	Auto          bool
	KeepLastTurns int
	TargetTokens  int
	PinBudgetBytes int
}

// DefaultCompactionConfig matches the spec's stated defaults.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{Auto: true, KeepLastTurns: 4, TargetTokens: 32000, PinBudgetBytes: 4096}
}

// Summarizer is the external summarizer the host supplies; the session
// never has an opinion on how summarization is produced.
type Summarizer interface {
	Summarize(ctx context.Context, older []llm.Message, focus string) (string, error)
}

// ToolResult is the shape append_tool_results accepts (spec §4.I).
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// Session holds one turn-loop's message history, pins, and MCP pool.
type Session struct {
	mu sync.Mutex

	messages []llm.Message
	pins     *pinSet
	cfg      CompactionConfig
	lastCompactTokens int
	compactedOnce     bool

	inFlight int

	pool       *mcp.Pool
	summarizer Summarizer
	logger     *slog.Logger
	telemetry  *telemetry.Sink
	log        *Log
}

// New builds a Session with an empty history.
func New(cfg CompactionConfig, pool *mcp.Pool, summarizer Summarizer, logger *slog.Logger, sink *telemetry.Sink) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = telemetry.NewDiscardSink()
	}
	return &Session{
		pins:       newPinSet(cfg.PinBudgetBytes),
		cfg:        cfg,
		pool:       pool,
		summarizer: summarizer,
		logger:     logger,
		telemetry:  sink,
	}
}

// WithLog attaches a message log so every Append/AppendToolResults/
// CompactIfNeeded call is mirrored to disk, letting a host recover history
// after a mid-lifetime crash (spec's Non-goal only rules out persistence
// across process lifetimes, not within one).
func (s *Session) WithLog(log *Log) *Session {
	s.mu.Lock()
	s.log = log
	s.mu.Unlock()
	return s
}

// RestoreFromLog replaces the in-memory history with whatever the attached
// log holds, for a host resuming mid-crash within the same process lifetime.
func (s *Session) RestoreFromLog(ctx context.Context) error {
	s.mu.Lock()
	log := s.log
	s.mu.Unlock()
	if log == nil {
		return nil
	}
	messages, err := log.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.messages = messages
	s.mu.Unlock()
	return nil
}

// Append adds a message to history, estimating its token count via the
// 4-byte heuristic if not already set (spec §4.I, §9 open question).
func (s *Session) Append(msg llm.Message) {
	s.mu.Lock()
	if msg.Tokens == 0 {
		msg.Tokens = EstimateTokens(msg)
	}
	s.messages = append(s.messages, msg)
	log := s.log
	s.mu.Unlock()

	if log != nil {
		if err := log.Append(context.Background(), msg); err != nil {
			s.logger.Warn("failed to persist message to session log", "error", err)
		}
	}
}

// AppendToolResults appends one tool-result message per result, enforcing
// I1: every outstanding tool_use call_id in the last assistant message must
// be satisfied exactly once, and no stray call_id may be appended.
func (s *Session) AppendToolResults(results []ToolResult) error {
	s.mu.Lock()

	outstanding := s.outstandingCallIDsLocked()
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		if !outstanding[r.CallID] {
			s.mu.Unlock()
			return fmt.Errorf("tool result for call_id %q does not match an outstanding tool_use", r.CallID)
		}
		if seen[r.CallID] {
			s.mu.Unlock()
			return fmt.Errorf("duplicate tool result for call_id %q", r.CallID)
		}
		seen[r.CallID] = true
	}
	for id := range outstanding {
		if !seen[id] {
			s.mu.Unlock()
			return fmt.Errorf("tool_use call_id %q was not satisfied by any tool result", id)
		}
	}

	var appended []llm.Message
	for _, r := range results {
		msg := llm.ToolResultMessage(r.CallID, r.Content, r.IsError)
		msg.Tokens = EstimateTokens(msg)
		s.messages = append(s.messages, msg)
		appended = append(appended, msg)
	}
	log := s.log
	s.mu.Unlock()

	if log != nil {
		for _, msg := range appended {
			if err := log.Append(context.Background(), msg); err != nil {
				s.logger.Warn("failed to persist tool result to session log", "error", err)
			}
		}
	}
	return nil
}

// outstandingCallIDsLocked returns the call_ids from the most recent
// assistant message's tool_call parts that have not yet been answered.
func (s *Session) outstandingCallIDsLocked() map[string]bool {
	var lastAssistantIdx = -1
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == llm.RoleAssistant {
			lastAssistantIdx = i
			break
		}
	}
	if lastAssistantIdx == -1 {
		return map[string]bool{}
	}

	outstanding := make(map[string]bool)
	for _, part := range s.messages[lastAssistantIdx].Parts {
		if part.Type == llm.PartToolCall && part.ToolCall != nil {
			outstanding[part.ToolCall.ID] = true
		}
	}
	for i := lastAssistantIdx + 1; i < len(s.messages); i++ {
		for _, part := range s.messages[i].Parts {
			if part.Type == llm.PartToolResult && part.ToolResult != nil {
				delete(outstanding, part.ToolResult.CallID)
			}
		}
	}
	return outstanding
}

// SnapshotForModel returns the message list to send, possibly after
// compaction has fired, with every live pin re-attached (spec §4.I step 4,
// invariant I4: pinned content must reach the model regardless of whether
// compaction has fired since it was added).
func (s *Session) SnapshotForModel(ctx context.Context) []llm.Message {
	s.CompactIfNeeded(ctx, false, "")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withLivePinsLocked(s.messages, time.Now())
}

// LivePins returns the current non-expired, budget-trimmed pins, highest
// priority first, so a host can render them directly instead of only seeing
// them folded into message text.
func (s *Session) LivePins() []Pin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins.live(time.Now())
}

// pinnedMessagesLocked converts the current live, budget-trimmed pins into
// messages marked Pinned for insertion into the history a model sees (spec
// §4.I step 4, invariant I4). Caller must hold s.mu.
func (s *Session) pinnedMessagesLocked(now time.Time) []llm.Message {
	s.pins.sweepExpired(now)
	live := s.pins.live(now)
	if len(live) == 0 {
		return nil
	}
	out := make([]llm.Message, 0, len(live))
	for _, p := range live {
		msg := llm.Message{
			Role:   llm.RoleSystem,
			Pinned: true,
			Parts:  []llm.Part{{Type: llm.PartText, Text: p.Content}},
		}
		msg.Tokens = EstimateTokens(msg)
		out = append(out, msg)
	}
	return out
}

// withLivePinsLocked strips any previously embedded Pinned messages from
// base and re-inserts the current live pin set immediately after the
// leading system messages. Pins are always recomputed fresh rather than
// carried forward verbatim, so TTL expiry and the priority/budget trim in
// pins.live stay accurate on every read. Caller must hold s.mu.
func (s *Session) withLivePinsLocked(base []llm.Message, now time.Time) []llm.Message {
	pinned := s.pinnedMessagesLocked(now)

	var systemPrefix, rest []llm.Message
	i := 0
	for ; i < len(base); i++ {
		if base[i].Role == llm.RoleSystem && !base[i].Pinned {
			systemPrefix = append(systemPrefix, base[i])
			continue
		}
		break
	}
	for ; i < len(base); i++ {
		if base[i].Pinned {
			continue
		}
		rest = append(rest, base[i])
	}

	out := make([]llm.Message, 0, len(systemPrefix)+len(pinned)+len(rest))
	out = append(out, systemPrefix...)
	out = append(out, pinned...)
	out = append(out, rest...)
	return out
}

// AddPin attaches a pin with an optional TTL (zero duration means no TTL).
func (s *Session) AddPin(id, content string, priority int, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expire *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expire = &t
	}
	s.pins.add(Pin{ID: id, Content: content, Priority: priority, ExpireAt: expire})
}

// RemovePin drops a pin by ID.
func (s *Session) RemovePin(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins.remove(id)
}

// IncInFlight marks a scheduler batch as in-flight; compaction defers while
// the counter is positive (spec §4.I "Tool-execution counter").
func (s *Session) IncInFlight() {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
}

// DecInFlight marks one batch as drained.
func (s *Session) DecInFlight() {
	s.mu.Lock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	s.mu.Unlock()
}

// TotalTokens returns the current estimated token total across history.
func (s *Session) TotalTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalTokensLocked()
}

func (s *Session) totalTokensLocked() int {
	total := 0
	for _, m := range s.messages {
		total += m.Tokens
	}
	return total
}

// CompactIfNeeded implements spec §4.I's compact_if_needed: partitions
// history, calls the external summarizer on the "older" portion, and
// replaces it with a synthetic summary message, re-attaching pins within
// budget. Idempotent when called twice with no intervening append.
func (s *Session) CompactIfNeeded(ctx context.Context, force bool, focus string) {
	s.mu.Lock()
	total := s.totalTokensLocked()
	needsCompaction := force || (s.cfg.Auto && total > s.cfg.TargetTokens)
	if !needsCompaction {
		s.mu.Unlock()
		return
	}
	if s.inFlight > 0 {
		// Defer: the caller is expected to retry once the batch drains
		// (spec §4.I step 1, "defer until drain").
		s.mu.Unlock()
		return
	}
	if s.compactedOnce && total == s.lastCompactTokens && !force {
		// No new appends since the last compaction: no-op (spec §8
		// "Idempotence").
		s.mu.Unlock()
		return
	}

	system, recent, older := s.partitionLocked()
	s.mu.Unlock()

	if len(older) == 0 {
		return
	}

	var summary string
	var err error
	if s.summarizer != nil {
		summary, err = s.summarizer.Summarize(ctx, older, focus)
	}
	if err != nil {
		s.logger.Warn("compaction summarizer failed, keeping history as-is", "error", err)
		return
	}
	if summary == "" {
		summary = "(no summary produced)"
	}

	synthetic := llm.UserText(fmt.Sprintf("Previous conversation summary:\n%s", summary))
	synthetic.Synthetic = true
	synthetic.Tokens = EstimateTokens(synthetic)

	s.mu.Lock()

	merged := make([]llm.Message, 0, len(system)+1+len(recent))
	merged = append(merged, system...)
	merged = append(merged, synthetic)
	merged = append(merged, recent...)
	s.messages = s.withLivePinsLocked(merged, time.Now())
	s.lastCompactTokens = s.totalTokensLocked()
	s.compactedOnce = true
	log := s.log
	replayed := make([]llm.Message, len(s.messages))
	copy(replayed, s.messages)

	s.mu.Unlock()

	s.logger.Info("compaction complete", "pre_tokens", total, "post_tokens", s.lastCompactTokens)
	if err := s.telemetry.RecordCompaction(telemetry.CompactionEvent{
		Timestamp:  time.Now(),
		PreTokens:  total,
		PostTokens: s.lastCompactTokens,
	}); err != nil {
		s.logger.Warn("failed to record compaction telemetry", "error", err)
	}

	if log != nil {
		if err := log.ReplaceAll(ctx, replayed); err != nil {
			s.logger.Warn("failed to persist compacted history to session log", "error", err)
		}
	}
}

// partitionLocked splits history into system messages (kept verbatim),
// the last KeepLastTurns user/assistant pairs plus any trailing tool
// results (kept verbatim), and everything else ("older", summarized away).
// Caller must hold s.mu.
func (s *Session) partitionLocked() (system, recent, older []llm.Message) {
	for _, m := range s.messages {
		if m.Role == llm.RoleSystem && !m.Pinned {
			system = append(system, m)
		}
	}

	keepTurns := s.cfg.KeepLastTurns
	if keepTurns <= 0 {
		keepTurns = 1
	}

	// Walk backward counting user messages as turn boundaries; recent starts
	// at the oldest kept user message.
	cut := 0
	turnsSeen := 0
	lastUser := len(s.messages)
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == llm.RoleUser && !s.messages[i].Synthetic {
			turnsSeen++
			if turnsSeen > keepTurns {
				cut = lastUser
				break
			}
			lastUser = i
		}
	}

	for i, m := range s.messages {
		if m.Pinned {
			continue
		}
		if m.Role == llm.RoleSystem {
			continue
		}
		if i >= cut {
			recent = append(recent, m)
		} else {
			older = append(older, m)
		}
	}
	return system, recent, older
}

// Close awaits graceful MCP pool shutdown (spec §4.I "close_all").
func (s *Session) Close(grace time.Duration) {
	if s.pool != nil {
		s.pool.CloseAll(grace)
	}
	s.mu.Lock()
	log := s.log
	s.mu.Unlock()
	if log != nil {
		if err := log.Close(); err != nil {
			s.logger.Warn("failed to close session log", "error", err)
		}
	}
}

// Pool exposes the MCP pool for handlers that need get_client/mark_unhealthy.
func (s *Session) Pool() *mcp.Pool { return s.pool }

// NewPinID generates an opaque pin identifier.
func NewPinID() string { return uuid.NewString() }

// EstimateTokens approximates a message's token count using the 4-byte
// heuristic the spec accepts when no native tokenizer is available (spec §9
// open question: "deliberate... may overestimate for non-ASCII content").
func EstimateTokens(msg llm.Message) int {
	bytes := 0
	for _, part := range msg.Parts {
		bytes += len(part.Text)
		if part.ToolCall != nil {
			bytes += len(part.ToolCall.Name) + len(part.ToolCall.Arguments)
		}
		if part.ToolResult != nil {
			bytes += len(part.ToolResult.Content)
		}
	}
	if bytes == 0 {
		return 1
	}
	tokens := bytes / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}
