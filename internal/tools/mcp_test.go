package tools

import (
	"strings"
	"testing"
)

func TestMcpHandler_Kind(t *testing.T) {
	h := NewMcpHandler()
	if h.Kind() != KindMcp {
		t.Errorf("expected KindMcp, got %v", h.Kind())
	}
}

func TestMcpHandler_MatchesKind(t *testing.T) {
	h := NewMcpHandler()
	if !h.MatchesKind(Payload{Kind: KindMcp}) {
		t.Error("expected mcp payload to match")
	}
	if h.MatchesKind(Payload{Kind: KindFunction}) {
		t.Error("expected function payload not to match")
	}
}

func TestMcpHandler_NoPoolConfigured(t *testing.T) {
	h := NewMcpHandler()
	inv := invocationForPath("weather/forecast", `{}`)
	inv.Payload = Payload{Kind: KindMcp, Server: "weather", Tool: "forecast", RawArguments: "{}"}
	_, err := h.Handle(inv)
	if err == nil || !strings.Contains(err.Error(), "no mcp pool configured") {
		t.Fatalf("expected a no-pool error, got %v", err)
	}
}

func TestMcpHandler_MissingServerOrTool(t *testing.T) {
	h := NewMcpHandler()
	inv := invocationForPath("weather/forecast", `{}`)
	inv.Payload = Payload{Kind: KindMcp, RawArguments: "{}"}
	inv.Pool = nil
	_, err := h.Handle(inv)
	if err == nil {
		t.Fatal("expected an error when pool and server/tool are both absent")
	}
}
