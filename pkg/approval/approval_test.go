package approval_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tombee/forge/pkg/approval"
	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/ledger"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/store"
	"github.com/tombee/forge/pkg/workflow"
)

type staticDefs struct{ def workflow.Definition }

func (s staticDefs) Lookup(name string) (workflow.Definition, bool) {
	if name != s.def.Name {
		return workflow.Definition{}, false
	}
	return s.def, true
}

func buildDef() workflow.Definition {
	return workflow.Definition{
		Name: "release",
		Steps: []workflow.StepDef{
			{ID: "build", Type: workflow.StepTypeBash, Cmd: "echo alpha"},
			{ID: "gate", Type: workflow.StepTypeHuman, DependsOn: []string{"build"}},
			{ID: "deploy", Type: workflow.StepTypeBash, DependsOn: []string{"gate"}, Cmd: "echo deployed"},
		},
	}
}

func TestApproveResumesAndCompletesRun(t *testing.T) {
	ctx := context.Background()
	c := clock.New()
	s := store.NewMemoryStore(c)
	l := ledger.New(s.Events(), nil)
	e := workflow.New(s.WorkflowRuns(), c, l, t.TempDir(), "")

	def := buildDef()
	run, err := e.Start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, model.WorkflowRunRunning, run.Status)

	ctrl := approval.New(s.WorkflowRuns(), staticDefs{def: def}, e)
	resumed, err := ctrl.Approve(ctx, run.ID, "gate")
	require.NoError(t, err)
	require.Equal(t, model.WorkflowRunSuccess, resumed.Status)
	require.Equal(t, "deployed", resumed.StepByID("deploy").Outputs["output"])
}

func TestDenySkipsDependentsAndFailsRun(t *testing.T) {
	ctx := context.Background()
	c := clock.New()
	s := store.NewMemoryStore(c)
	l := ledger.New(s.Events(), nil)
	e := workflow.New(s.WorkflowRuns(), c, l, t.TempDir(), "")

	def := buildDef()
	run, err := e.Start(ctx, def, nil)
	require.NoError(t, err)

	ctrl := approval.New(s.WorkflowRuns(), staticDefs{def: def}, e)
	resumed, err := ctrl.Deny(ctx, run.ID, "gate", "not ready")
	require.NoError(t, err)
	require.Equal(t, model.WorkflowRunFailed, resumed.Status)
	require.Equal(t, model.StepFailed, resumed.StepByID("gate").Status)
	require.Equal(t, model.StepSkipped, resumed.StepByID("deploy").Status)
}

func TestApproveRejectsStepNotWaiting(t *testing.T) {
	ctx := context.Background()
	c := clock.New()
	s := store.NewMemoryStore(c)
	l := ledger.New(s.Events(), nil)
	e := workflow.New(s.WorkflowRuns(), c, l, t.TempDir(), "")

	def := buildDef()
	run, err := e.Start(ctx, def, nil)
	require.NoError(t, err)

	ctrl := approval.New(s.WorkflowRuns(), staticDefs{def: def}, e)
	_, err = ctrl.Approve(ctx, run.ID, "build")
	require.Error(t, err)
}
