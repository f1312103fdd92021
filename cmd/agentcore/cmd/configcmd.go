package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/indubitably-ai/agentcore/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or validate the agentcore config file",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Load and validate a config.toml, exiting 2 on failure",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath
	if len(args) == 1 {
		path = args[0]
	}

	cfg, err := config.Load(path)
	if err != nil {
		return withExitCode(exitConfigError, err)
	}

	fmt.Printf("ok: model=%q context_tokens=%d sandbox=%q approval=%q mcp_servers=%d\n",
		cfg.Model.Name, cfg.Model.ContextTokens, cfg.Execution.Sandbox, cfg.Execution.Approval, len(cfg.Mcp.Definitions))
	return nil
}
