package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// WarnUnknownParams checks a call's raw arguments for keys outside
// knownKeys, returning a warning string (with trailing newline) to prepend
// to the tool's output, or "" if every key is recognized. Grounded on the
// teacher's internal/tools/params.go, unchanged: it doesn't reference any
// of the approval/error types that were superseded this session.
func WarnUnknownParams(args string, knownKeys []string) string {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(args), &m); err != nil {
		return ""
	}
	known := make(map[string]bool, len(knownKeys))
	for _, k := range knownKeys {
		known[k] = true
	}
	var unknown []string
	for k := range m {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return ""
	}
	sort.Strings(unknown)
	var sb strings.Builder
	for _, k := range unknown {
		fmt.Fprintf(&sb, "Unknown parameter '%s' was ignored\n", k)
	}
	return sb.String()
}
