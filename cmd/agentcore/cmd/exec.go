package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/indubitably-ai/agentcore/internal/llm"
	"github.com/indubitably-ai/agentcore/internal/mcp"
	"github.com/indubitably-ai/agentcore/internal/router"
	"github.com/indubitably-ai/agentcore/internal/telemetry"
	"github.com/indubitably-ai/agentcore/internal/toolerr"
	"github.com/indubitably-ai/agentcore/internal/tools"
	"github.com/indubitably-ai/agentcore/internal/tracker"
)

var (
	execCwd       string
	execAuditLog  string
	execChangeLog string
)

var execCmd = &cobra.Command{
	Use:   "exec <tool_name> [json_args]",
	Short: "Dispatch a single tool call through the registry",
	Long: `exec runs exactly one tool call end to end — router parse, policy
gate, handler dispatch, output formatting, diff tracking — the same path a
host takes per tool_use block in an assistant turn, without a model in the
loop. json_args defaults to "{}".`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVar(&execCwd, "cwd", "", "working directory tool calls resolve paths against (default: current dir)")
	execCmd.Flags().StringVar(&execAuditLog, "audit-log", "", "append a spec §6 audit.jsonl record for this call")
	execCmd.Flags().StringVar(&execChangeLog, "changes-log", "", "append a spec §6 changes.jsonl record if the call wrote a path")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	toolName := args[0]
	rawArgs := "{}"
	if len(args) == 2 {
		rawArgs = args[1]
	}

	c, err := buildCore(configPath)
	if err != nil {
		return err
	}

	cwd := execCwd
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}

	ctx := context.Background()

	if server, _, ok := mcp.ParseToolName(toolName); ok {
		if _, err := c.pool.GetClient(ctx, server); err != nil {
			return withExitCode(exitFatalTool, fmt.Errorf("connecting to mcp server %q: %w", server, err))
		}
		for _, t := range c.pool.AllTools() {
			c.registry.Specs().Register(llm.ToolSpec{Name: t.Name, Description: t.Description, Schema: t.Schema})
			c.registry.Register(t.Name, tools.NewMcpHandler())
		}
	}

	block, err := router.Parse(router.Block{Kind: router.BlockToolUse, ID: "exec-1", Name: toolName, Input: json.RawMessage(rawArgs)})
	if err != nil {
		return withExitCode(exitFatalTool, err)
	}

	turnTracker := tracker.New(uuid.NewString())
	turn := tools.TurnContext{Tracker: turnTracker, Policy: c.policy, Pool: c.pool, Cwd: cwd}

	start := time.Now()
	result := c.registry.Dispatch(ctx, block, turn)
	duration := time.Since(start)

	if execAuditLog != "" {
		if err := appendAuditRecord(execAuditLog, toolName, block.CallID, rawArgs, result, duration); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write audit log: %v\n", err)
		}
	}
	if execChangeLog != "" {
		if err := appendChangeRecords(execChangeLog, turnTracker); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write changes log: %v\n", err)
		}
	}

	printResult(result)

	if result.FatalErr != nil {
		code := exitFatalTool
		if te, ok := toolerr.As(result.FatalErr); ok && te.Kind == toolerr.Sandbox {
			code = exitPolicyDenial
		}
		return withExitCode(code, result.FatalErr)
	}
	return nil
}

func printResult(result tools.DispatchResult) {
	if jsonOutput {
		enc, _ := json.MarshalIndent(result.Block, "", "  ")
		fmt.Println(string(enc))
		return
	}
	if result.Block.IsError {
		fmt.Fprintln(os.Stderr, result.Block.Content)
		return
	}
	fmt.Println(result.Block.Content)
}

func appendAuditRecord(path, toolName, callID, input string, result tools.DispatchResult, duration time.Duration) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	record := telemetry.Event{
		Timestamp:   time.Now().Add(-duration),
		ToolName:    toolName,
		CallID:      callID,
		DurationMs:  duration.Milliseconds(),
		Success:     !result.Block.IsError,
		OutputBytes: len(result.Block.Content),
	}
	enc, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = f.Write(append(enc, '\n'))
	return err
}

func appendChangeRecords(path string, t *tracker.Tracker) error {
	edits := t.Edits()
	if len(edits) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, e := range edits {
		if e.Action == tracker.ActionRead {
			continue
		}
		record := telemetry.ChangeRecord{
			Timestamp: e.Timestamp,
			TurnID:    t.TurnID(),
			Path:      e.Path,
			Action:    string(e.Action),
		}
		enc, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if _, err := f.Write(append(enc, '\n')); err != nil {
			return err
		}
	}
	return nil
}
