package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/ferrors"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/store"
)

func TestMemoryStoreAgentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(clock.New())

	rec := &model.PersistentAgent{ID: "ag-1", WorkspaceID: "ws-1", Harness: "codex", Mode: "continuous", State: model.AgentStateStarting}
	require.NoError(t, s.Agents().Create(ctx, rec))

	got, err := s.Agents().Get(ctx, "ag-1")
	require.NoError(t, err)
	require.True(t, !got.CreatedAt.After(got.LastActivityAt))
	require.True(t, !got.LastActivityAt.After(got.UpdatedAt))

	err = s.Agents().Create(ctx, rec)
	require.Error(t, err)

	require.NoError(t, s.Agents().UpdateState(ctx, "ag-1", model.AgentStateRunning))
	got, err = s.Agents().Get(ctx, "ag-1")
	require.NoError(t, err)
	require.Equal(t, model.AgentStateRunning, got.State)

	require.NoError(t, s.Agents().Delete(ctx, "ag-1"))
	_, err = s.Agents().Get(ctx, "ag-1")
	var nf *ferrors.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestMemoryStoreEventsRedactedAndOrdered(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(clock.New())

	first, err := s.Events().Append(ctx, &model.AgentEvent{AgentID: "ag-1", Kind: "spawn", Outcome: "success", Detail: `{"token":"abc123456789012345"}`})
	require.NoError(t, err)
	require.Greater(t, first.ID, int64(0))
	require.NotEmpty(t, first.Timestamp)
	require.Contains(t, first.Detail, "[REDACTED]")

	second, err := s.Events().Append(ctx, &model.AgentEvent{AgentID: "ag-1", Kind: "send", Outcome: "success"})
	require.NoError(t, err)
	require.Greater(t, second.ID, first.ID)

	events, err := s.Events().ListByAgent(ctx, "ag-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "send", events[0].Kind) // most-recent-first
}

func TestMemoryStoreWorkflowRunInvariants(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(clock.New())

	run, err := s.WorkflowRuns().Create(ctx, "demo", "demo.toml", []string{"build"}, map[string]string{"build": "bash"})
	require.NoError(t, err)
	require.Equal(t, model.WorkflowRunRunning, run.Status)
	require.Nil(t, run.FinishedAt)

	require.NoError(t, s.WorkflowRuns().UpdateStepStatus(ctx, run.ID, "build", model.StepRunning))
	got, err := s.WorkflowRuns().Get(ctx, run.ID)
	require.NoError(t, err)
	step := got.StepByID("build")
	require.NotNil(t, step.StartedAt)
	require.Nil(t, step.FinishedAt)

	require.NoError(t, s.WorkflowRuns().UpdateStepOutputs(ctx, run.ID, "build", map[string]string{"output": "alpha"}))
	require.NoError(t, s.WorkflowRuns().UpdateStepStatus(ctx, run.ID, "build", model.StepSuccess))
	require.NoError(t, s.WorkflowRuns().UpdateRunStatus(ctx, run.ID, model.WorkflowRunSuccess))

	got, err = s.WorkflowRuns().Get(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FinishedAt)
	require.Equal(t, "alpha", got.StepByID("build").Outputs["output"])
}

func TestMemoryStoreStepApprovalFlow(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(clock.New())
	run, err := s.WorkflowRuns().Create(ctx, "demo", "demo.toml", []string{"approve"}, map[string]string{"approve": "human"})
	require.NoError(t, err)

	timeout := time.Now().Add(time.Hour).Unix()
	require.NoError(t, s.WorkflowRuns().MarkStepWaitingApproval(ctx, run.ID, "approve", &timeout))

	got, err := s.WorkflowRuns().Get(ctx, run.ID)
	require.NoError(t, err)
	step := got.StepByID("approve")
	require.Equal(t, model.StepWaitingApproval, step.Status)
	require.Equal(t, model.ApprovalPending, step.Approval.State)
	require.NotNil(t, step.Approval.TimeoutAt)

	require.NoError(t, s.WorkflowRuns().DecideStepApproval(ctx, run.ID, "approve", false, "not ready"))
	got, err = s.WorkflowRuns().Get(ctx, run.ID)
	require.NoError(t, err)
	step = got.StepByID("approve")
	require.Equal(t, model.ApprovalDenied, step.Approval.State)
	require.Equal(t, model.StepFailed, step.Status)
}
