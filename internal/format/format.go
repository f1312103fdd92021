// Package format implements the deterministic head+tail truncation the core
// applies to oversized tool output before it is shown to the model (spec
// §4.G). It is pure and stateless: identical input produces byte-identical
// output.
package format

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxBytes  = 10 * 1024
	MaxLines  = 256
	HeadLines = 128
	TailLines = 128
	HeadBytes = 5 * 1024
)

// Limits overrides the package defaults above, sourced from spec §6's
// "tools.limits" config section (max_tool_tokens is enforced by the session
// when it counts a tool result toward its token budget, not here).
type Limits struct {
	MaxStdoutBytes int
	MaxLines       int
}

// DefaultLimits mirrors the package constants so a zero-value config
// (nothing set in tools.limits) behaves exactly like Truncate.
func DefaultLimits() Limits {
	return Limits{MaxStdoutBytes: MaxBytes, MaxLines: MaxLines}
}

// Metadata is the structured envelope the core attaches to formatted output.
type Metadata struct {
	ExitCode        int     `json:"exit_code"`
	DurationSeconds float64 `json:"duration_seconds"`
	TimedOut        bool    `json:"timed_out"`
	Truncated       bool    `json:"truncated"`
}

// Envelope is the wire shape described in spec §6 "Tool-result envelope".
type Envelope struct {
	Output   string   `json:"output"`
	Metadata Metadata `json:"metadata"`
}

// Truncate applies the head+tail algorithm to content using the package
// defaults. It never introduces a U+FFFD replacement character and always
// cuts on a UTF-8 scalar boundary.
func Truncate(content string) (out string, truncated bool) {
	return TruncateWithLimits(content, DefaultLimits())
}

// TruncateWithLimits is Truncate parameterized by a host-configured
// tools.limits section, so a max_stdout_bytes/max_lines override from
// config flows through without changing the head/tail split ratio.
func TruncateWithLimits(content string, limits Limits) (out string, truncated bool) {
	maxBytes := limits.MaxStdoutBytes
	if maxBytes <= 0 {
		maxBytes = MaxBytes
	}
	maxLines := limits.MaxLines
	if maxLines <= 0 {
		maxLines = MaxLines
	}

	if len(content) <= maxBytes && countLines(content) <= maxLines {
		return content, false
	}

	lines := splitKeepEnds(content)
	total := len(lines)

	headN := HeadLines
	if headN > total {
		headN = total
	}
	tailN := TailLines
	if tailN > total-headN {
		tailN = total - headN
	}
	omitted := total - headN - tailN
	if omitted < 0 {
		omitted = 0
	}

	head := strings.Join(lines[:headN], "")
	tail := strings.Join(lines[total-tailN:], "")

	head = trimToByteBudgetFromEnd(head, HeadBytes)
	remaining := maxBytes - len(head) - len(marker(omitted, total))
	if remaining < 0 {
		remaining = 0
	}
	tail = trimToByteBudgetFromStart(tail, remaining)

	return head + marker(omitted, total) + tail, true
}

// FormatEnvelope wraps formatted content plus shell-style metadata, rounding
// duration to one decimal place as spec §4.G step 7 requires.
func FormatEnvelope(content string, exitCode int, durationSeconds float64, timedOut bool) Envelope {
	out, truncated := Truncate(content)
	return Envelope{
		Output: out,
		Metadata: Metadata{
			ExitCode:        exitCode,
			DurationSeconds: roundTo1dp(durationSeconds),
			TimedOut:        timedOut,
			Truncated:       truncated,
		},
	}
}

func marker(omitted, total int) string {
	return fmt.Sprintf("\n[... omitted %d of %d lines ...]\n\n", omitted, total)
}

func roundTo1dp(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// splitKeepEnds splits s into lines, each retaining its trailing "\n" (the
// final line keeps none if the input doesn't end with one).
func splitKeepEnds(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// trimToByteBudgetFromEnd keeps as much of the start of s as fits in budget
// bytes, trimming from the end at the nearest newline at or before the cut
// point, and never splitting a UTF-8 scalar.
func trimToByteBudgetFromEnd(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	cut := largestValidPrefixFittingSuffix(s, budget)
	// prefer to cut at the last newline within budget so head ends cleanly
	if idx := strings.LastIndexByte(s[:cut], '\n'); idx >= 0 {
		return s[:idx+1]
	}
	return s[:cut]
}

// trimToByteBudgetFromStart keeps as much of the end of s as fits in budget
// bytes, trimming from the start at the nearest newline at or after the cut
// point.
func trimToByteBudgetFromStart(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	drop := len(s) - budget
	start := scalarBoundaryAtOrAfter(s, drop)
	if idx := strings.IndexByte(s[start:], '\n'); idx >= 0 {
		return s[start+idx+1:]
	}
	return s[start:]
}

// largestValidPrefixFittingSuffix returns the largest n <= len(s) with n <=
// budget such that s[:n] ends on a UTF-8 scalar boundary.
func largestValidPrefixFittingSuffix(s string, budget int) int {
	if budget >= len(s) {
		return len(s)
	}
	n := budget
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// scalarBoundaryAtOrAfter returns the smallest index >= n that is a UTF-8
// scalar boundary within s.
func scalarBoundaryAtOrAfter(s string, n int) int {
	for n < len(s) && !utf8.RuneStart(s[n]) {
		n++
	}
	return n
}
