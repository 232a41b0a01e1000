package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/tombee/forge/pkg/agentregistry"
	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/ferrors"
	"github.com/tombee/forge/pkg/ledger"
	"github.com/tombee/forge/pkg/lifecycle"
	"github.com/tombee/forge/pkg/metrics"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/store"
	"github.com/tombee/forge/pkg/transport"
)

func newService(t *testing.T) (*lifecycle.Service, *transport.Fake, store.Store) {
	t.Helper()
	c := clock.New()
	s := store.NewMemoryStore(c)
	tr := transport.NewFake(c)
	reg := agentregistry.New(s.Agents())
	l := ledger.New(s.Events(), nil)
	m := metrics.New(l, prometheus.NewRegistry())
	return lifecycle.New(tr, reg, l, m), tr, s
}

func TestSpawnEmitsSuccessEvent(t *testing.T) {
	ctx := context.Background()
	svc, _, s := newService(t)

	snap, err := svc.Spawn(ctx, transport.SpawnParams{AgentID: "ag-1", WorkspaceID: "ws-1", Command: "codex"})
	require.NoError(t, err)
	require.Equal(t, "ag-1", snap.ID)

	events, err := s.Events().ListByAgent(ctx, "ag-1", 0)
	require.NoError(t, err)
	// newest first: the metrics tap's metric_agents_spawned follows agents_spawned
	require.Equal(t, "agents_spawned", events[1].Kind)
	require.Equal(t, "success", events[1].Outcome)
}

func TestSendBlocksRiskyPayloadUnderStrictPolicy(t *testing.T) {
	ctx := context.Background()
	svc, _, s := newService(t)
	_, err := svc.Spawn(ctx, transport.SpawnParams{AgentID: "ag-1"})
	require.NoError(t, err)

	err = svc.Send(ctx, "ag-1", "run rm -rf /", true, nil, "", false)
	var blocked *ferrors.RiskyActionBlockedError
	require.ErrorAs(t, err, &blocked)
	require.Contains(t, blocked.Remediation, "--allow-risky")

	events, err := s.Events().ListByAgent(ctx, "ag-1", 0)
	require.NoError(t, err)
	// newest first: the metrics tap's metric_sends follows sends
	require.Equal(t, "sends", events[1].Kind)
	require.Equal(t, "error", events[1].Outcome)
}

func TestSendAllowsRiskyWithOverride(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	_, err := svc.Spawn(ctx, transport.SpawnParams{AgentID: "ag-1"})
	require.NoError(t, err)

	require.NoError(t, svc.Send(ctx, "ag-1", "run rm -rf /tmp/x", true, nil, "", true))
}

func TestWaitStateSkipsSendToIdleLatencyWhenIdleNotTargeted(t *testing.T) {
	ctx := context.Background()
	svc, _, s := newService(t)
	_, err := svc.Spawn(ctx, transport.SpawnParams{AgentID: "ag-1"})
	require.NoError(t, err)

	require.NoError(t, svc.Send(ctx, "ag-1", "hello", true, nil, "loose", false))
	_, err = svc.WaitState(ctx, "ag-1", []model.AgentState{model.AgentStateRunning}, time.Second, time.Millisecond)
	require.NoError(t, err)

	events, err := s.Events().Query(ctx, "metric_send_to_idle_duration", 0)
	require.NoError(t, err)
	require.Empty(t, events) // latency only recorded when idle is a target state; running isn't
}

func TestInterruptBlockedWhenSnapshotIsPaused(t *testing.T) {
	ctx := context.Background()
	svc, tr, _ := newService(t)
	tr.Seed(&model.AgentSnapshot{ID: "ag-1", State: model.AgentStatePaused})

	err := svc.Interrupt(ctx, "ag-1", "", false)
	var blocked *ferrors.RiskyActionBlockedError
	require.ErrorAs(t, err, &blocked)
}

func TestKillSuccessEmitsEvent(t *testing.T) {
	ctx := context.Background()
	svc, _, s := newService(t)
	_, err := svc.Spawn(ctx, transport.SpawnParams{AgentID: "ag-1"})
	require.NoError(t, err)

	require.NoError(t, svc.Kill(ctx, transport.KillParams{AgentID: "ag-1", Force: true}))
	events, err := s.Events().ListByAgent(ctx, "ag-1", 0)
	require.NoError(t, err)
	// newest first: metric_live_agents, metric_kill, then kill
	require.Equal(t, "kill", events[2].Kind)
}
