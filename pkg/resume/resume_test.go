package resume_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/ledger"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/resume"
	"github.com/tombee/forge/pkg/store"
	"github.com/tombee/forge/pkg/workflow"
)

func TestBlockedReportsWaitingApprovalAndPendingDependency(t *testing.T) {
	ctx := context.Background()
	c := clock.New()
	s := store.NewMemoryStore(c)
	l := ledger.New(s.Events(), nil)
	e := workflow.New(s.WorkflowRuns(), c, l, t.TempDir(), "")

	def := workflow.Definition{
		Name: "demo",
		Steps: []workflow.StepDef{
			{ID: "build", Type: workflow.StepTypeBash, Cmd: "echo alpha"},
			{ID: "gate", Type: workflow.StepTypeHuman, DependsOn: []string{"build"}},
			{ID: "deploy", Type: workflow.StepTypeBash, DependsOn: []string{"gate"}, Cmd: "echo deployed"},
		},
	}

	run, err := e.Start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, model.StepWaitingApproval, run.StepByID("gate").Status)
	require.Equal(t, model.StepPending, run.StepByID("deploy").Status)

	dependsOn := map[string][]string{
		"build":  nil,
		"gate":   {"build"},
		"deploy": {"gate"},
	}

	inspector := resume.New(s.WorkflowRuns())
	blocked, err := inspector.Blocked(ctx, run.ID, dependsOn)
	require.NoError(t, err)

	byStep := map[string]string{}
	for _, b := range blocked {
		byStep[b.StepID] = b.Reason
	}
	require.Equal(t, "awaiting human approval", byStep["gate"])
	require.Equal(t, "blocked by gate (waiting_approval)", byStep["deploy"])
	require.NotContains(t, byStep, "build")
}

func TestBlockedReportsMissingDependencyRecord(t *testing.T) {
	ctx := context.Background()
	c := clock.New()
	s := store.NewMemoryStore(c)
	l := ledger.New(s.Events(), nil)
	e := workflow.New(s.WorkflowRuns(), c, l, t.TempDir(), "")

	def := workflow.Definition{
		Name: "demo",
		Steps: []workflow.StepDef{
			{ID: "build", Type: workflow.StepTypeBash, Cmd: "echo alpha"},
			{ID: "gate", Type: workflow.StepTypeHuman, DependsOn: []string{"build"}},
			{ID: "deploy", Type: workflow.StepTypeBash, DependsOn: []string{"gate"}, Cmd: "echo deployed"},
		},
	}
	run, err := e.Start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, model.StepPending, run.StepByID("deploy").Status)

	inspector := resume.New(s.WorkflowRuns())
	blocked, err := inspector.Blocked(ctx, run.ID, map[string][]string{"deploy": {"phantom"}})
	require.NoError(t, err)
	require.Len(t, blocked, 2)

	byStep := map[string]string{}
	for _, b := range blocked {
		byStep[b.StepID] = b.Reason
	}
	require.Equal(t, "missing dependency status: phantom", byStep["deploy"])
}

func TestBlockedOmitsStepsWithSatisfiedDependencies(t *testing.T) {
	ctx := context.Background()
	c := clock.New()
	s := store.NewMemoryStore(c)
	l := ledger.New(s.Events(), nil)
	e := workflow.New(s.WorkflowRuns(), c, l, t.TempDir(), "")

	def := workflow.Definition{
		Name: "demo",
		Steps: []workflow.StepDef{
			{ID: "build", Type: workflow.StepTypeBash, Cmd: "echo alpha"},
			{ID: "verify", Type: workflow.StepTypeBash, DependsOn: []string{"build"}, Cmd: "echo beta"},
		},
	}
	run, err := e.Start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, model.WorkflowRunSuccess, run.Status)

	inspector := resume.New(s.WorkflowRuns())
	blocked, err := inspector.Blocked(ctx, run.ID, map[string][]string{"build": nil, "verify": {"build"}})
	require.NoError(t, err)
	require.Empty(t, blocked)
}
