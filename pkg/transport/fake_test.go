package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/ferrors"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/transport"
)

func TestFakeSpawnSendWaitState(t *testing.T) {
	ctx := context.Background()
	f := transport.NewFake(clock.New())

	snap, err := f.Spawn(ctx, transport.SpawnParams{AgentID: "ag-1", WorkspaceID: "ws-1", Command: "codex"})
	require.NoError(t, err)
	require.Equal(t, model.AgentStateStarting, snap.State)

	require.NoError(t, f.Send(ctx, "ag-1", "hello", true, nil))

	got, err := f.WaitState(ctx, "ag-1", []model.AgentState{model.AgentStateRunning}, time.Second, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, model.AgentStateRunning, got.State)
}

func TestFakeWaitStateTimesOut(t *testing.T) {
	ctx := context.Background()
	f := transport.NewFake(clock.New())
	_, err := f.Spawn(ctx, transport.SpawnParams{AgentID: "ag-1"})
	require.NoError(t, err)

	_, err = f.WaitState(ctx, "ag-1", []model.AgentState{model.AgentStateIdle}, 10*time.Millisecond, time.Millisecond)
	var timeoutErr *ferrors.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

func TestFakeKillAndGetNotFound(t *testing.T) {
	ctx := context.Background()
	f := transport.NewFake(clock.New())
	_, err := f.Spawn(ctx, transport.SpawnParams{AgentID: "ag-1"})
	require.NoError(t, err)

	require.NoError(t, f.Kill(ctx, transport.KillParams{AgentID: "ag-1", Force: true}))
	got, err := f.Get(ctx, "ag-1")
	require.NoError(t, err)
	require.Equal(t, model.AgentStateStopped, got.State)

	_, err = f.Get(ctx, "missing")
	var nf *ferrors.NotFoundError
	require.ErrorAs(t, err, &nf)
}
