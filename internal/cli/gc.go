package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/forge/pkg/gc"
)

func newGCCommand() *cobra.Command {
	var (
		workspaceID    string
		idleTimeoutSec int64
		maxAgeSec      int64
		dryRun         bool
		limit          int
	)
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "evict parked agent records matching a TTL, idle-timeout, or max-age rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return Wrap("running gc", err)
			}
			defer a.Close()

			req := gc.Request{WorkspaceID: workspaceID, DryRun: dryRun, Limit: limit}
			if idleTimeoutSec > 0 {
				req.IdleTimeoutSec = &idleTimeoutSec
			}
			if maxAgeSec > 0 {
				req.MaxAgeSec = &maxAgeSec
			}

			result, err := a.GC.Run(cmd.Context(), req)
			if err != nil {
				return Wrap("running gc", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d evicted=%d kept=%d dry_run=%v\n", result.Scanned, result.Evicted, result.Kept, result.DryRun)
			for _, e := range result.Evictions {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s reason=%s age=%ds idle=%ds outcome=%s\n", e.AgentID, e.Reason, e.AgeSeconds, e.IdleSeconds, e.Outcome)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "restrict the scan to one workspace")
	cmd.Flags().Int64Var(&idleTimeoutSec, "idle-timeout", 0, "idle-timeout rule, in seconds (0 disables)")
	cmd.Flags().Int64Var(&maxAgeSec, "max-age", 0, "max-age rule, in seconds (0 disables)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report candidates without deleting")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of candidates processed (0 means unlimited)")
	return cmd
}
