package summary_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/ledger"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/store"
	"github.com/tombee/forge/pkg/summary"
)

func TestGenerateBlockedFromTranscript(t *testing.T) {
	g := summary.New(clock.New(), nil)
	transcript := &model.Transcript{AgentID: "ag-1", Content: "step 1 ok\nwaiting on human approval\n"}
	snap := g.Generate("ag-1", transcript, nil)

	require.Equal(t, summary.StatusBlocked, snap.ConciseStatus)
	require.Len(t, snap.UnresolvedBlockers, 1)
	require.Contains(t, snap.UnresolvedBlockers[0], "waiting on")
}

func TestGenerateRunningFromSpawnEvent(t *testing.T) {
	g := summary.New(clock.New(), nil)
	events := []*model.AgentEvent{{Kind: "spawn", Outcome: "success"}}
	snap := g.Generate("ag-1", nil, events)

	require.Equal(t, summary.StatusRunning, snap.ConciseStatus)
	require.Contains(t, snap.LatestTaskOutcome, "spawn: success")
}

func TestGenerateUnknownWithNoData(t *testing.T) {
	g := summary.New(clock.New(), nil)
	snap := g.Generate("ag-1", nil, nil)
	require.Equal(t, summary.StatusUnknown, snap.ConciseStatus)
	require.Equal(t, "unknown", snap.LatestTaskOutcome)
	require.Empty(t, snap.TranscriptExcerpt)
}

func TestPersistAppendsSummarySnapshotEvent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(clock.New())
	l := ledger.New(s.Events(), nil)
	g := summary.New(clock.New(), l)

	snap := g.Generate("ag-1", nil, nil)
	require.NoError(t, g.Persist(ctx, snap))

	events, err := s.Events().ListByAgent(ctx, "ag-1", 0)
	require.NoError(t, err)
	require.Equal(t, "summary_snapshot", events[0].Kind)
	require.Equal(t, "unknown", events[0].Outcome)
}
