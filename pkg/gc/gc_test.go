package gc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tombee/forge/pkg/agentregistry"
	"github.com/tombee/forge/pkg/gc"
	"github.com/tombee/forge/pkg/ledger"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/store"
)

type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time { return f.now }
func (f fixedClock) NewID() string  { return "fixed-id" }

func TestRunEvictsIdleTimeoutCandidate(t *testing.T) {
	ctx := context.Background()
	base := time.Now().UTC()
	// Create and TouchActivity stamp timestamps from the store clock, so the
	// clock is moved to give each record its age.
	storeClock := &fixedClock{now: base.Add(-2 * time.Hour)}
	s := store.NewMemoryStore(storeClock)
	reg := agentregistry.New(s.Agents())
	l := ledger.New(s.Events(), nil)

	require.NoError(t, reg.Create(ctx, &model.PersistentAgent{
		ID: "ag-stale", WorkspaceID: "ws-1", Harness: "codex", State: model.AgentStateIdle,
	}))
	storeClock.now = base.Add(-90 * time.Minute)
	require.NoError(t, reg.TouchActivity(ctx, "ag-stale"))
	storeClock.now = base
	require.NoError(t, reg.Create(ctx, &model.PersistentAgent{
		ID: "ag-fresh", WorkspaceID: "ws-1", Harness: "codex", State: model.AgentStateIdle,
	}))

	c := gc.New(fixedClock{now: base}, reg, l)
	idleTimeout := int64(3600)
	result, err := c.Run(ctx, gc.Request{WorkspaceID: "ws-1", IdleTimeoutSec: &idleTimeout})
	require.NoError(t, err)

	require.Equal(t, 2, result.Scanned)
	require.Equal(t, 1, result.Evicted)
	require.Equal(t, 1, result.Kept)
	require.Equal(t, model.EvictionReasonIdleTimeout, result.Evictions[0].Reason)

	_, err = reg.Get(ctx, "ag-stale")
	require.Error(t, err)
	_, err = reg.Get(ctx, "ag-fresh")
	require.NoError(t, err)

	events, err := s.Events().ListByAgent(ctx, "ag-stale", 0)
	require.NoError(t, err)
	require.Equal(t, "gc_evict_done", events[0].Kind)
	require.Equal(t, "gc_evict_start", events[1].Kind)
}

func TestRunDryRunDoesNotDelete(t *testing.T) {
	ctx := context.Background()
	base := time.Now().UTC()
	s := store.NewMemoryStore(&fixedClock{now: base.Add(-2 * time.Minute)})
	reg := agentregistry.New(s.Agents())
	l := ledger.New(s.Events(), nil)

	ttl := int64(60)
	require.NoError(t, reg.Create(ctx, &model.PersistentAgent{
		ID: "ag-ttl", WorkspaceID: "ws-1", Harness: "codex", State: model.AgentStateStopped, TTLSeconds: &ttl,
	}))

	c := gc.New(fixedClock{now: base}, reg, l)
	result, err := c.Run(ctx, gc.Request{WorkspaceID: "ws-1", DryRun: true})
	require.NoError(t, err)

	require.True(t, result.Evictions[0].AgeSeconds >= 0)
	require.True(t, result.DryRun)
	require.Equal(t, 0, result.Evicted)
	require.Equal(t, model.EvictionReasonTTL, result.Evictions[0].Reason)

	_, err = reg.Get(ctx, "ag-ttl")
	require.NoError(t, err)
}

func TestRuleOrderTTLBeforeIdleBeforeMaxAge(t *testing.T) {
	ctx := context.Background()
	base := time.Now().UTC()
	s := store.NewMemoryStore(&fixedClock{now: base.Add(-time.Hour)})
	reg := agentregistry.New(s.Agents())
	l := ledger.New(s.Events(), nil)

	ttl := int64(30)
	require.NoError(t, reg.Create(ctx, &model.PersistentAgent{
		ID: "ag-both", WorkspaceID: "ws-1", Harness: "codex", State: model.AgentStateIdle, TTLSeconds: &ttl,
	}))

	c := gc.New(fixedClock{now: base}, reg, l)
	idleTimeout := int64(10)
	result, err := c.Run(ctx, gc.Request{WorkspaceID: "ws-1", IdleTimeoutSec: &idleTimeout})
	require.NoError(t, err)
	require.Equal(t, model.EvictionReasonTTL, result.Evictions[0].Reason)
}
