package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/indubitably-ai/agentcore/internal/config"
	"github.com/indubitably-ai/agentcore/internal/llm"
	"github.com/indubitably-ai/agentcore/internal/mcp"
	"github.com/indubitably-ai/agentcore/internal/policy"
	"github.com/indubitably-ai/agentcore/internal/tools"
)

// core bundles the components a turn needs, built once per CLI invocation.
type core struct {
	cfg      *config.Config
	registry *tools.Registry
	policy   *policy.Policy
	pool     *mcp.Pool
}

// denyPrompt is the non-interactive approval prompt this CLI uses: it has
// no TTY-driven approval flow of its own (that's a host's job, per spec
// §6's "Host <-> Core calls" being the integration surface a real host
// builds on), so every gated action is denied rather than silently
// auto-approved.
func denyPrompt(ctx context.Context, req policy.Request) policy.Decision {
	fmt.Fprintf(os.Stderr, "policy: denying ungated %s request for %s (non-interactive CLI)\n", req.Kind, req.Path+req.CommandLine)
	return policy.Decision{Approved: false}
}

// buildCore loads config.toml (or explicitPath) and assembles every local
// tool handler into one Registry, mirroring how a real host would wire the
// core before starting a turn.
func buildCore(explicitPath string) (*core, error) {
	cfg, err := config.Load(explicitPath)
	if err != nil {
		return nil, withExitCode(exitConfigError, err)
	}

	approvals := policy.NewApprovalManager(denyPrompt, nil)
	pol := policy.New(cfg.Execution.ToPolicyConfig(), approvals)

	pool := mcp.NewPool(config.ToMcpConfig(cfg.Mcp.Definitions))

	specs := tools.NewSpecTable()
	registry := tools.NewRegistry(specs, nil)

	type specced interface {
		Spec() llm.ToolSpec
	}
	register := func(name string, h tools.Handler) {
		if s, ok := h.(specced); ok {
			specs.Register(s.Spec())
		}
		registry.Register(name, h)
	}

	register(tools.ReadFileToolName, tools.NewReadHandler())
	register(tools.WriteFileToolName, tools.NewWriteHandler())
	register(tools.EditFileToolName, tools.NewEditHandler())
	register(tools.ApplyPatchToolName, tools.NewApplyPatchHandler())
	register(tools.ShellToolName, tools.NewShellHandler())
	register(tools.GlobToolName, tools.NewGlobHandler())

	mcpHandler := tools.NewMcpHandler()
	for _, t := range pool.AllTools() {
		specs.Register(llm.ToolSpec{Name: t.Name, Description: t.Description, Schema: t.Schema})
		registry.Register(t.Name, mcpHandler)
	}

	return &core{cfg: cfg, registry: registry, policy: pol, pool: pool}, nil
}
