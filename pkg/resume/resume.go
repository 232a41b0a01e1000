// Package resume implements C15, blocked-step introspection: for a given
// run, list every step that is paused on human approval or blocked on a
// non-successful dependency, with a human-readable reason (§4.9's "Blocked
// introspection" paragraph).
package resume

import (
	"context"
	"fmt"

	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/store"
)

// BlockedStep is one entry in the introspection report.
type BlockedStep struct {
	StepID string
	Reason string
}

// Inspector is the C15 blocked-step introspector.
type Inspector struct {
	store store.WorkflowRunStore
}

// New constructs an Inspector.
func New(s store.WorkflowRunStore) *Inspector {
	return &Inspector{store: s}
}

// Blocked returns every step of runID that is waiting_approval or pending
// with an unsatisfied dependency, along with the dependency definitions
// needed to explain pending blocks.
func (i *Inspector) Blocked(ctx context.Context, runID string, dependsOn map[string][]string) ([]BlockedStep, error) {
	run, err := i.store.Get(ctx, runID)
	if err != nil {
		return nil, err
	}

	var out []BlockedStep
	for _, step := range run.Steps {
		switch step.Status {
		case model.StepWaitingApproval:
			out = append(out, BlockedStep{StepID: step.StepID, Reason: "awaiting human approval"})
		case model.StepPending:
			if reason, blocked := pendingReason(run, dependsOn[step.StepID]); blocked {
				out = append(out, BlockedStep{StepID: step.StepID, Reason: reason})
			}
		}
	}
	return out, nil
}

func pendingReason(run *model.WorkflowRun, deps []string) (string, bool) {
	for _, dep := range deps {
		depStep := run.StepByID(dep)
		if depStep == nil {
			return fmt.Sprintf("missing dependency status: %s", dep), true
		}
		if depStep.Status != model.StepSuccess {
			return fmt.Sprintf("blocked by %s (%s)", dep, depStep.Status), true
		}
	}
	return "", false
}
