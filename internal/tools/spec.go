package tools

import (
	"log/slog"
	"reflect"
	"sync"

	"github.com/indubitably-ai/agentcore/internal/llm"
)

// SpecTable holds the immutable-after-build set of tool specs visible to
// the model (spec §4.A: "created at registry build, immutable afterward").
// Duplicate registrations warn and the last one wins, matching the
// teacher's llm.Engine.RegisterTool behavior.
type SpecTable struct {
	mu    sync.Mutex
	specs map[string]llm.ToolSpec
	order []string
}

// NewSpecTable creates an empty table.
func NewSpecTable() *SpecTable {
	return &SpecTable{specs: make(map[string]llm.ToolSpec)}
}

// Register adds or replaces a spec by name, realizing its schema first.
func (t *SpecTable) Register(spec llm.ToolSpec) {
	spec.Schema = RealizeSchema(spec.Schema)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.specs[spec.Name]; exists {
		slog.Warn("duplicate tool spec registration, last registration wins", "tool", spec.Name)
	} else {
		t.order = append(t.order, spec.Name)
	}
	t.specs[spec.Name] = spec
}

// Get returns the spec registered under name, if any.
func (t *SpecTable) Get(name string) (llm.ToolSpec, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	spec, ok := t.specs[name]
	return spec, ok
}

// SupportsParallel reports whether name's spec declares supports_parallel;
// unknown names default to non-parallel (spec §4.D).
func (t *SpecTable) SupportsParallel(name string) bool {
	spec, ok := t.Get(name)
	return ok && spec.SupportsParallel
}

// All returns every registered spec in registration order.
func (t *SpecTable) All() []llm.ToolSpec {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]llm.ToolSpec, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.specs[name])
	}
	return out
}

// RealizeSchema fully realizes a JSON-schema-shaped parameter description
// so the model's API never rejects it for being under-specified (spec
// §4.A: "every object has properties; every array has items; integer is
// normalized to number"). Grounded on the teacher's hand-built
// map[string]interface{} schemas (llm/tools.go) — no schema-builder library
// in the corpus targets outbound model-facing schemas (see DESIGN.md).
func RealizeSchema(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return realizeValue(schema).(map[string]interface{})
}

func realizeValue(v interface{}) interface{} {
	switch node := v.(type) {
	case map[string]interface{}:
		return realizeObject(node)
	case []interface{}:
		out := make([]interface{}, len(node))
		for i, item := range node {
			out[i] = realizeValue(item)
		}
		return out
	default:
		return v
	}
}

func realizeObject(node map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(node))
	for k, v := range node {
		out[k] = realizeValue(v)
	}

	switch out["type"] {
	case "integer":
		out["type"] = "number"
	case "object":
		if _, ok := out["properties"]; !ok {
			out["properties"] = map[string]interface{}{}
		} else if props, ok := out["properties"].(map[string]interface{}); ok {
			out["properties"] = realizeValue(props)
		}
		if _, ok := out["additionalProperties"]; !ok {
			out["additionalProperties"] = false
		}
	case "array":
		if _, ok := out["items"]; !ok {
			out["items"] = map[string]interface{}{"type": "string"}
		}
	}
	return out
}

// SanitizeMCPSchema strips cycles from a tool schema advertised by an MCP
// server, per spec §9 "Cycles in MCP schemas": sub-objects are tracked by
// identity and a detected cycle is replaced with a stub description rather
// than recursing forever.
func SanitizeMCPSchema(schema map[string]interface{}) map[string]interface{} {
	visited := make(map[uintptr]bool)
	return sanitizeNode(schema, visited).(map[string]interface{})
}

func sanitizeNode(v interface{}, visited map[uintptr]bool) interface{} {
	switch node := v.(type) {
	case map[string]interface{}:
		id := mapIdentity(node)
		if visited[id] {
			return map[string]interface{}{"type": "string", "description": "recursive reference"}
		}
		visited[id] = true
		out := make(map[string]interface{}, len(node))
		for k, val := range node {
			out[k] = sanitizeNode(val, visited)
		}
		delete(visited, id)
		return out
	case []interface{}:
		out := make([]interface{}, len(node))
		for i, item := range node {
			out[i] = sanitizeNode(item, visited)
		}
		return out
	default:
		return v
	}
}

// mapIdentity returns the map's runtime header pointer, used to detect
// cycles introduced by a server that shares sub-schema object references
// (what a decoder produces for a `$ref`-resolved cycle: the same physical
// map reachable from two places in the tree).
func mapIdentity(m map[string]interface{}) uintptr {
	return reflect.ValueOf(m).Pointer()
}
