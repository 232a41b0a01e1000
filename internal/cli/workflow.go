package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/workflow"
)

func newWorkflowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "declare, run, and steer multi-step workflows",
	}
	cmd.AddCommand(newWorkflowRunCommand())
	cmd.AddCommand(newWorkflowApproveCommand())
	cmd.AddCommand(newWorkflowDenyCommand())
	cmd.AddCommand(newWorkflowBlockedCommand())
	return cmd
}

func newWorkflowRunCommand() *cobra.Command {
	var inputs []string
	cmd := &cobra.Command{
		Use:   "run <definition.yaml>",
		Short: "start a workflow run from a YAML definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := workflow.LoadDefinitionFile(args[0])
			if err != nil {
				return Wrap("loading workflow definition", err)
			}

			a, err := newApp()
			if err != nil {
				return Wrap("running workflow", err)
			}
			defer a.Close()
			a.Workflows.Register(*def)

			run, err := a.Engine.Start(cmd.Context(), *def, parseKeyValues(inputs))
			if err != nil {
				return Wrap("running workflow", err)
			}
			printRun(cmd, run)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "workflow input as key=value (may repeat)")
	return cmd
}

func newWorkflowApproveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <run-id> <step-id>",
		Short: "approve a step paused at waiting_approval and resume the run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return Wrap("approving step", err)
			}
			defer a.Close()

			run, err := a.Approval.Approve(cmd.Context(), args[0], args[1])
			if err != nil {
				return Wrap("approving step", err)
			}
			printRun(cmd, run)
			return nil
		},
	}
	return cmd
}

func newWorkflowDenyCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "deny <run-id> <step-id>",
		Short: "deny a step paused at waiting_approval and skip-cascade its dependents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return Wrap("denying step", err)
			}
			defer a.Close()

			run, err := a.Approval.Deny(cmd.Context(), args[0], args[1], reason)
			if err != nil {
				return Wrap("denying step", err)
			}
			printRun(cmd, run)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the step was denied")
	return cmd
}

func newWorkflowBlockedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocked <run-id>",
		Short: "explain why a run isn't progressing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return Wrap("inspecting run", err)
			}
			defer a.Close()

			run, err := a.Store.WorkflowRuns().Get(cmd.Context(), args[0])
			if err != nil {
				return Wrap("inspecting run", err)
			}
			def, ok := a.Workflows.Lookup(run.WorkflowName)
			if !ok {
				return Wrap("inspecting run", fmt.Errorf("workflow definition %q not registered in this process", run.WorkflowName))
			}

			blocked, err := a.Resume.Blocked(cmd.Context(), args[0], dependsOnMap(def))
			if err != nil {
				return Wrap("inspecting run", err)
			}
			if len(blocked) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no steps are blocked")
				return nil
			}
			for _, b := range blocked {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", b.StepID, b.Reason)
			}
			return nil
		},
	}
	return cmd
}

func dependsOnMap(def workflow.Definition) map[string][]string {
	out := make(map[string][]string, len(def.Steps))
	for _, s := range def.Steps {
		out[s.ID] = s.DependsOn
	}
	return out
}

func parseKeyValues(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, _ := strings.Cut(p, "=")
		out[k] = v
	}
	return out
}

func printRun(cmd *cobra.Command, run *model.WorkflowRun) {
	fmt.Fprintf(cmd.OutOrStdout(), "run %s (%s): status=%s\n", run.ID, run.WorkflowName, run.Status)
	for _, s := range run.Steps {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s [%s] status=%s\n", s.StepID, s.Type, s.Status)
	}
}
