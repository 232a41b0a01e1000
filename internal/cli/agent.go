package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/forge/pkg/lifecycle"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/transport"
)

// newAgentCommand groups every C7 lifecycle operation under `forge agent`,
// mirroring the teacher's pattern of one cobra parent per controller
// surface with thin leaf commands underneath.
func newAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "spawn, drive, and inspect coding-agent sessions",
	}
	cmd.AddCommand(newAgentSpawnCommand())
	cmd.AddCommand(newAgentSendCommand())
	cmd.AddCommand(newAgentWaitCommand())
	cmd.AddCommand(newAgentInterruptCommand())
	cmd.AddCommand(newAgentKillCommand())
	cmd.AddCommand(newAgentListCommand())
	cmd.AddCommand(newAgentReviveCommand())
	return cmd
}

func newAgentSpawnCommand() *cobra.Command {
	var (
		workspaceID string
		command     string
		adapter     string
		harness     string
		approvalPol string
		accountID   string
		profile     string
	)
	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "spawn a new agent session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return Wrap("spawning agent", err)
			}
			defer a.Close()

			snap, err := a.Lifecycle.Spawn(cmd.Context(), transport.SpawnParams{
				WorkspaceID: workspaceID,
				Command:     command,
				Adapter:     adapter,
			})
			if err != nil {
				return Wrap("spawning agent", err)
			}

			approval := model.ApprovalContext{ApprovalPolicy: approvalPol, AccountID: accountID, Profile: profile}
			if err := a.Registry.EnsureExists(cmd.Context(), snap.ID, workspaceID, harness, "", approval); err != nil {
				return Wrap("recording spawned agent", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "spawned agent %s (state=%s)\n", snap.ID, snap.State)
			return nil
		},
	}
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "workspace id")
	cmd.Flags().StringVar(&command, "command", "", "command the transport should launch")
	cmd.Flags().StringVar(&adapter, "adapter", "", "transport adapter name")
	cmd.Flags().StringVar(&harness, "harness", "", "harness label for the persistent record")
	cmd.Flags().StringVar(&approvalPol, "approval-policy", "", "approval policy label (strict|relaxed|never)")
	cmd.Flags().StringVar(&accountID, "account-id", "", "account id label")
	cmd.Flags().StringVar(&profile, "profile", "", "profile label")
	return cmd
}

func newAgentSendCommand() *cobra.Command {
	var (
		sendEnter     bool
		keys          []string
		requestPolicy string
		allowRisky    bool
	)
	cmd := &cobra.Command{
		Use:   "send <agent-id> <text>",
		Short: "send input to an agent session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return Wrap("sending to agent", err)
			}
			defer a.Close()

			if err := a.Lifecycle.Send(cmd.Context(), args[0], args[1], sendEnter, keys, requestPolicy, allowRisky); err != nil {
				return Wrap("sending to agent", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
	cmd.Flags().BoolVar(&sendEnter, "enter", true, "submit the text with a trailing enter keypress")
	cmd.Flags().StringSliceVar(&keys, "key", nil, "raw key names to send instead of text (may repeat)")
	cmd.Flags().StringVar(&requestPolicy, "approval-policy", "", "override the effective approval policy for this request")
	cmd.Flags().BoolVar(&allowRisky, "allow-risky", false, "proceed even if the payload is classified risky")
	return cmd
}

func newAgentWaitCommand() *cobra.Command {
	var (
		states       []string
		timeout      time.Duration
		pollInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "wait <agent-id>",
		Short: "block until an agent reaches one of the target states",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return Wrap("waiting for agent state", err)
			}
			defer a.Close()

			targets := make([]model.AgentState, len(states))
			for i, s := range states {
				targets[i] = model.AgentState(s)
			}

			snap, err := a.Lifecycle.WaitState(cmd.Context(), args[0], targets, timeout, pollInterval)
			if err != nil {
				return Wrap("waiting for agent state", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "agent %s reached state %s\n", snap.ID, snap.State)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&states, "state", []string{string(model.AgentStateIdle)}, "target states, any one satisfies the wait")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "maximum time to wait")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 250*time.Millisecond, "interval between state checks")
	return cmd
}

func newAgentInterruptCommand() *cobra.Command {
	var (
		requestPolicy string
		allowRisky    bool
	)
	cmd := &cobra.Command{
		Use:   "interrupt <agent-id>",
		Short: "interrupt a running agent session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return Wrap("interrupting agent", err)
			}
			defer a.Close()

			if err := a.Lifecycle.Interrupt(cmd.Context(), args[0], requestPolicy, allowRisky); err != nil {
				return Wrap("interrupting agent", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "interrupted")
			return nil
		},
	}
	cmd.Flags().StringVar(&requestPolicy, "approval-policy", "", "override the effective approval policy for this request")
	cmd.Flags().BoolVar(&allowRisky, "allow-risky", false, "proceed even if the interrupt is classified risky")
	return cmd
}

func newAgentKillCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "kill <agent-id>",
		Short: "terminate an agent session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return Wrap("killing agent", err)
			}
			defer a.Close()

			if err := a.Lifecycle.Kill(cmd.Context(), transport.KillParams{AgentID: args[0], Force: force}); err != nil {
				return Wrap("killing agent", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "killed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip graceful shutdown")
	return cmd
}

func newAgentListCommand() *cobra.Command {
	var (
		workspaceID string
		states      []string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list live agent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return Wrap("listing agents", err)
			}
			defer a.Close()

			filter := transport.ListFilter{WorkspaceID: workspaceID}
			for _, s := range states {
				filter.States = append(filter.States, model.AgentState(s))
			}

			snaps, err := a.Lifecycle.List(cmd.Context(), filter)
			if err != nil {
				return Wrap("listing agents", err)
			}
			for _, snap := range snaps {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", snap.ID, snap.WorkspaceID, snap.State)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "filter by workspace id")
	cmd.Flags().StringSliceVar(&states, "state", nil, "filter by state (may repeat)")
	return cmd
}

func newAgentReviveCommand() *cobra.Command {
	var (
		revivePolicy string
		approvalPol  string
		accountID    string
		profile      string
		workspaceID  string
		command      string
		adapter      string
		harness      string
	)
	cmd := &cobra.Command{
		Use:   "revive <agent-id>",
		Short: "reuse, revive, or recreate an agent per the revive planner's decision tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return Wrap("reviving agent", err)
			}
			defer a.Close()

			rc := lifecycle.ReviveContext{
				RevivePolicy:   revivePolicy,
				ApprovalPolicy: approvalPol,
				AccountID:      accountID,
				Profile:        profile,
				WorkspaceID:    workspaceID,
				Command:        command,
				Adapter:        adapter,
				Harness:        harness,
			}
			if err := a.Lifecycle.Revive(cmd.Context(), args[0], rc); err != nil {
				return Wrap("reviving agent", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "revive complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&revivePolicy, "revive-policy", "ask", "auto|never|ask")
	cmd.Flags().StringVar(&approvalPol, "approval-policy", "", "approval policy to apply to the revived session")
	cmd.Flags().StringVar(&accountID, "account-id", "", "account id to apply to the revived session")
	cmd.Flags().StringVar(&profile, "profile", "", "profile to apply to the revived session")
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "workspace id for a freshly spawned session")
	cmd.Flags().StringVar(&command, "command", "", "command for a freshly spawned session")
	cmd.Flags().StringVar(&adapter, "adapter", "", "adapter for a freshly spawned session")
	cmd.Flags().StringVar(&harness, "harness", "", "harness label for a freshly spawned session")
	return cmd
}
