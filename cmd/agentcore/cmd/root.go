package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string
var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "agentcore",
	Short: "Agent execution core: tool dispatch, scheduling, and diff tracking",
	Long: `agentcore wires the Tool Dispatch Pipeline, Concurrent Tool Scheduler,
Turn Diff Tracker, and Context Session into a standalone CLI surface.

It does not talk to a model provider — bringing a model, credentials, and
prompt content is a host's job, not this core's. Use it to run one tool
call directly (exec) or to validate a config file before wiring a real
host around the core (config validate).`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default: XDG config dir)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of text")
}

// Execute runs the root command, exiting with spec §6's documented exit
// codes: 0 normal, 2 config error, 3 fatal tool error, 4 policy denial.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if code, ok := exitCodeFor(err); ok {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
