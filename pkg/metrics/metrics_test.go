package metrics_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/ledger"
	"github.com/tombee/forge/pkg/metrics"
	"github.com/tombee/forge/pkg/store"
)

func TestTapCounterPersistsAndExports(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(clock.New())
	l := ledger.New(s.Events(), nil)
	registry := prometheus.NewRegistry()
	tap := metrics.New(l, registry)

	require.NoError(t, tap.Counter(ctx, "ag-1", "agents_spawned", "success"))

	events, err := s.Events().ListByAgent(ctx, "ag-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "metric_agents_spawned", events[0].Kind)
	require.Contains(t, events[0].Detail, `"kind":"counter"`)

	families, err := registry.Gather()
	require.NoError(t, err)
	require.True(t, hasMetric(families, "forge_events_total"))
}

func TestTapLatencyRecordsSendToIdleDuration(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(clock.New())
	l := ledger.New(s.Events(), nil)
	tap := metrics.New(l, prometheus.NewRegistry())

	require.NoError(t, tap.Latency(ctx, "ag-1", "send_to_idle_duration", 123.5))

	events, err := s.Events().ListByAgent(ctx, "ag-1", 0)
	require.NoError(t, err)
	require.Equal(t, "metric_send_to_idle_duration", events[0].Kind)
	require.Contains(t, events[0].Detail, `"value_ms":123.5`)
}

func hasMetric(families []*dto.MetricFamily, name string) bool {
	for _, f := range families {
		if f.GetName() == name {
			return true
		}
	}
	return false
}
