// Package approval implements C12, the approval controller: approve/deny
// operations over a waiting_approval step and the resume they trigger
// (§4.9): a store-level decision followed by an immediate re-drive of the
// run's scheduler.
package approval

import (
	"context"

	"github.com/tombee/forge/pkg/ferrors"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/store"
	"github.com/tombee/forge/pkg/workflow"
)

// Definitions resolves the Definition a run was started from, so Resume
// can re-derive step declarations (hooks, dependsOn) without persisting
// the full static declaration in the store.
type Definitions interface {
	Lookup(name string) (workflow.Definition, bool)
}

// Controller is the C12 approval controller.
type Controller struct {
	store  store.WorkflowRunStore
	defs   Definitions
	engine *workflow.Engine
}

// New constructs a Controller.
func New(s store.WorkflowRunStore, defs Definitions, engine *workflow.Engine) *Controller {
	return &Controller{store: s, defs: defs, engine: engine}
}

// Approve implements §4.9's approve operation.
func (c *Controller) Approve(ctx context.Context, runID, stepID string) (*model.WorkflowRun, error) {
	run, err := c.store.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	step := run.StepByID(stepID)
	if step == nil {
		return nil, &ferrors.NotFoundError{Resource: "workflow_step", ID: stepID}
	}
	if step.Status != model.StepWaitingApproval {
		return nil, &ferrors.InvalidArgumentError{Field: "step_id", Message: "step is not waiting for approval: " + stepID}
	}

	if err := c.store.DecideStepApproval(ctx, runID, stepID, true, ""); err != nil {
		return nil, err
	}

	def, sd, err := c.resolveStep(run, stepID)
	if err != nil {
		return nil, err
	}
	if err := c.engine.CompleteHumanStep(ctx, runID, sd); err != nil {
		return nil, err
	}

	return c.engine.Resume(ctx, runID, def, nil)
}

// Deny implements §4.9's deny operation: the step fails, every
// transitively-dependent step is skip-cascaded by the resumed scheduler,
// and the run status becomes failed.
func (c *Controller) Deny(ctx context.Context, runID, stepID, reason string) (*model.WorkflowRun, error) {
	run, err := c.store.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	step := run.StepByID(stepID)
	if step == nil {
		return nil, &ferrors.NotFoundError{Resource: "workflow_step", ID: stepID}
	}
	if step.Status != model.StepWaitingApproval {
		return nil, &ferrors.InvalidArgumentError{Field: "step_id", Message: "step is not waiting for approval: " + stepID}
	}

	if err := c.store.DecideStepApproval(ctx, runID, stepID, false, reason); err != nil {
		return nil, err
	}

	def, _, err := c.resolveStep(run, stepID)
	if err != nil {
		return nil, err
	}
	return c.engine.Resume(ctx, runID, def, nil)
}

func (c *Controller) resolveStep(run *model.WorkflowRun, stepID string) (workflow.Definition, workflow.StepDef, error) {
	def, ok := c.defs.Lookup(run.WorkflowName)
	if !ok {
		return workflow.Definition{}, workflow.StepDef{}, &ferrors.NotFoundError{Resource: "workflow_definition", ID: run.WorkflowName}
	}
	for _, s := range def.Steps {
		if s.ID == stepID {
			return def, s, nil
		}
	}
	return def, workflow.StepDef{}, &ferrors.NotFoundError{Resource: "workflow_step_definition", ID: stepID}
}
