package cli

import (
	"github.com/spf13/cobra"
)

var (
	dbPath     string
	repoRoot   string
	configPath string
)

// NewRootCommand builds the forge root cobra command and registers every
// subcommand, grounded on the teacher's internal/cli.NewRootCommand: a bare
// root carrying persistent flags, SilenceUsage/SilenceErrors so commands
// own their own error reporting.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forge",
		Short: "forge - operator control plane for fleets of coding agents",
		Long: `forge drives the lifecycle of long-running coding agents: spawning,
sending input, reviving crashed sessions, evicting stale ones, and running
declarative multi-step workflows with human approval gates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the forge database (default: platform cache dir; ':memory:' for an ephemeral store)")
	cmd.PersistentFlags().StringVar(&repoRoot, "repo-root", ".", "repository root used to anchor workflow ledgers and relative step workdirs")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional scheduler config file")

	cmd.AddCommand(newAgentCommand())
	cmd.AddCommand(newWorkflowCommand())
	cmd.AddCommand(newGCCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}
