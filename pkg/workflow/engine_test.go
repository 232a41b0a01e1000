package workflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/ledger"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/store"
	"github.com/tombee/forge/pkg/workflow"
)

func newEngine(t *testing.T) (*workflow.Engine, store.WorkflowRunStore) {
	t.Helper()
	c := clock.New()
	s := store.NewMemoryStore(c)
	l := ledger.New(s.Events(), nil)
	return workflow.New(s.WorkflowRuns(), c, l, t.TempDir(), ""), s.WorkflowRuns()
}

func TestStartRunsBashPipelineWithTemplateBindings(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	def := workflow.Definition{
		Name: "demo",
		Steps: []workflow.StepDef{
			{ID: "build", Type: workflow.StepTypeBash, Cmd: "echo alpha"},
			{ID: "verify", Type: workflow.StepTypeBash, DependsOn: []string{"build"}, Cmd: "echo {{ steps.build.output }}-checked"},
		},
	}

	run, err := e.Start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, model.WorkflowRunSuccess, run.Status)
	require.Equal(t, "alpha", run.StepByID("build").Outputs["output"])
	require.Equal(t, "alpha-checked", run.StepByID("verify").Outputs["output"])
}

func TestStartFailsStepOnMissingTemplateOutput(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	def := workflow.Definition{
		Name: "demo",
		Steps: []workflow.StepDef{
			{ID: "build", Type: workflow.StepTypeBash, Cmd: "echo alpha"},
			{ID: "verify", Type: workflow.StepTypeBash, DependsOn: []string{"build"}, Cmd: "echo {{ steps.build.missing }}"},
		},
	}

	run, err := e.Start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, model.WorkflowRunFailed, run.Status)
	require.Equal(t, model.StepFailed, run.StepByID("verify").Status)
}

func TestStartSkipsStepsDependentOnFailure(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	def := workflow.Definition{
		Name: "demo",
		Steps: []workflow.StepDef{
			{ID: "build", Type: workflow.StepTypeBash, Cmd: "exit 1"},
			{ID: "deploy", Type: workflow.StepTypeBash, DependsOn: []string{"build"}, Cmd: "echo should-not-run"},
		},
	}

	run, err := e.Start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, model.WorkflowRunFailed, run.Status)
	require.Equal(t, model.StepFailed, run.StepByID("build").Status)
	require.Equal(t, model.StepSkipped, run.StepByID("deploy").Status)
}

func TestStartPausesAtHumanStepThenCompletesOnApproval(t *testing.T) {
	ctx := context.Background()
	e, runs := newEngine(t)

	def := workflow.Definition{
		Name: "demo",
		Steps: []workflow.StepDef{
			{ID: "build", Type: workflow.StepTypeBash, Cmd: "echo alpha"},
			{ID: "approve", Type: workflow.StepTypeHuman, DependsOn: []string{"build"}},
			{ID: "deploy", Type: workflow.StepTypeBash, DependsOn: []string{"approve"}, Cmd: "echo deployed"},
		},
	}

	run, err := e.Start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, model.WorkflowRunRunning, run.Status)
	require.Equal(t, model.StepWaitingApproval, run.StepByID("approve").Status)
	require.Equal(t, model.StepPending, run.StepByID("deploy").Status)

	require.NoError(t, runs.DecideStepApproval(ctx, run.ID, "approve", true, ""))
	require.NoError(t, e.CompleteHumanStep(ctx, run.ID, def.Steps[1]))

	resumed, err := e.Resume(ctx, run.ID, def, nil)
	require.NoError(t, err)
	require.Equal(t, model.WorkflowRunSuccess, resumed.Status)
	require.Equal(t, "deployed", resumed.StepByID("deploy").Outputs["output"])
}

func TestLogicStepEvaluatesCondition(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	def := workflow.Definition{
		Name: "demo",
		Steps: []workflow.StepDef{
			{ID: "gate", Type: workflow.StepTypeLogic, Inputs: map[string]string{"enabled": "{{ inputs.enabled }}"}, Condition: `inputs.enabled == "true"`},
		},
	}

	run, err := e.Start(ctx, def, map[string]string{"enabled": "true"})
	require.NoError(t, err)
	require.Equal(t, model.WorkflowRunSuccess, run.Status)
	require.Equal(t, "true", run.StepByID("gate").Outputs["result"])
}

func TestUnsupportedStepTypeFailsDeterministically(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	def := workflow.Definition{
		Name:  "demo",
		Steps: []workflow.StepDef{{ID: "a", Type: workflow.StepTypeAgent}},
	}

	run, err := e.Start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, model.StepFailed, run.StepByID("a").Status)
}
