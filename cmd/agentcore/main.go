// Command agentcore is a thin CLI surface over the agent execution core
// (spec §6 "CLI surface"). It does not speak to a model: the core's
// Non-goals exclude model selection and credential management, so this
// binary exercises the core's own responsibilities — tool dispatch,
// scheduling, policy, diff tracking, and config — directly, the way a host
// integration would before it ever touches a provider. Grounded on the
// teacher's cmd/ layout: a file per subcommand in one cmd package,
// cobra.Command values wired onto a shared rootCmd in init().
package main

import "github.com/indubitably-ai/agentcore/cmd/agentcore/cmd"

func main() {
	cmd.Execute()
}
