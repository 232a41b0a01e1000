package revive_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/tombee/forge/pkg/agentregistry"
	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/ferrors"
	"github.com/tombee/forge/pkg/ledger"
	"github.com/tombee/forge/pkg/lifecycle"
	"github.com/tombee/forge/pkg/metrics"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/revive"
	"github.com/tombee/forge/pkg/store"
	"github.com/tombee/forge/pkg/summary"
	"github.com/tombee/forge/pkg/transport"
)

func setup(t *testing.T) (*revive.Planner, *lifecycle.Service, *transport.Fake, store.Store) {
	t.Helper()
	c := clock.New()
	s := store.NewMemoryStore(c)
	tr := transport.NewFake(c)
	reg := agentregistry.New(s.Agents())
	l := ledger.New(s.Events(), nil)
	m := metrics.New(l, prometheus.NewRegistry())
	svc := lifecycle.New(tr, reg, l, m)
	sg := summary.New(c, l)
	planner := revive.New(svc, reg, l, m, sg)
	svc.SetReviver(planner)
	return planner, svc, tr, s
}

func TestDecideReuseForLiveNonTerminalSnapshot(t *testing.T) {
	snap := &model.AgentSnapshot{ID: "ag-1", State: model.AgentStateRunning}
	d, err := revive.Decide("ag-1", snap, nil, "auto")
	require.NoError(t, err)
	require.Equal(t, revive.OutcomeReuse, d.Outcome)
}

func TestDecideBlockedWhenPolicyIsNever(t *testing.T) {
	snap := &model.AgentSnapshot{ID: "ag-1", State: model.AgentStateStopped}
	_, err := revive.Decide("ag-1", snap, nil, "never")
	var blocked *ferrors.RevivePolicyBlockedError
	require.ErrorAs(t, err, &blocked)
	require.Contains(t, blocked.Error(), "stopped")
	require.Contains(t, blocked.Error(), "--revive-policy auto")
}

func TestDecideReviveForMissingProcess(t *testing.T) {
	record := &model.PersistentAgent{ID: "ag-1", State: model.AgentStateIdle}
	d, err := revive.Decide("ag-1", nil, record, "auto")
	require.NoError(t, err)
	require.Equal(t, revive.OutcomeRevive, d.Outcome)
	require.False(t, d.KillBeforeSpawn)
	require.Equal(t, "missing_process", d.Reason)
}

func TestDecideCreateWhenNeitherExists(t *testing.T) {
	d, err := revive.Decide("ag-1", nil, nil, "auto")
	require.NoError(t, err)
	require.Equal(t, revive.OutcomeCreate, d.Outcome)
}

func TestReviveTerminalSnapshotKillsThenSpawnsInOrder(t *testing.T) {
	ctx := context.Background()
	planner, svc, tr, s := setup(t)

	tr.Seed(&model.AgentSnapshot{ID: "ag-1", WorkspaceID: "ws-1", State: model.AgentStateStopped})

	rc := lifecycle.ReviveContext{RevivePolicy: "auto", ApprovalPolicy: "strict", WorkspaceID: "ws-1", Command: "codex", Adapter: "tmux"}
	require.NoError(t, svc.Revive(ctx, "ag-1", rc))

	events, err := s.Events().ListByAgent(ctx, "ag-1", 0)
	require.NoError(t, err)

	kindsNewestFirst := make([]string, len(events))
	for i, e := range events {
		kindsNewestFirst[i] = e.Kind
	}
	// events are most-recent-first; reverse to read in append order, leaving
	// out the metric_<kind> events the metrics tap appends after each one
	var order []string
	for i := len(kindsNewestFirst) - 1; i >= 0; i-- {
		if strings.HasPrefix(kindsNewestFirst[i], "metric_") {
			continue
		}
		order = append(order, kindsNewestFirst[i])
	}

	require.Equal(t, "revive_start", order[0])
	require.Contains(t, order, "kill")
	require.Contains(t, order, "agents_spawned")
	require.Equal(t, "revive_done", order[len(order)-1])
	require.Equal(t, "agents_revived", order[len(order)-2])

	got, err := svc.Get(ctx, "ag-1")
	require.NoError(t, err)
	require.Equal(t, model.AgentStateRunning, got.State) // Send transitions Fake to running
	_ = planner
}

func TestReviveMissingProcessCreatesRecord(t *testing.T) {
	ctx := context.Background()
	planner, svc, _, s := setup(t)
	_ = planner

	reg := agentregistry.New(s.Agents())
	require.NoError(t, reg.Create(ctx, &model.PersistentAgent{ID: "ag-2", WorkspaceID: "ws-1", Harness: "codex", State: model.AgentStateIdle}))

	rc := lifecycle.ReviveContext{RevivePolicy: "auto", WorkspaceID: "ws-1", Command: "codex"}
	require.NoError(t, svc.Revive(ctx, "ag-2", rc))

	rec, err := s.Agents().Get(ctx, "ag-2")
	require.NoError(t, err)
	require.Equal(t, model.AgentStateStarting, rec.State)
}
