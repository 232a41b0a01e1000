// Package metrics implements C6, a thin wrapper over the C5 ledger that
// emits counter/gauge/latency events as metric_<name> AgentEvents and
// mirrors them into Prometheus collectors (§9's MetricDetail tagged
// variant), grounded on the teacher's internal/tracing/metrics.go +
// internal/controller/metrics package pairing of an event-stream view with
// a Prometheus registry.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tombee/forge/pkg/ledger"
)

// Kind tags which MetricDetail variant (§9) a sample belongs to.
type Kind string

const (
	KindCounter Kind = "counter"
	KindGauge   Kind = "gauge"
	KindLatency Kind = "latency"
)

// Detail is the tagged variant serialized into AgentEvent.Detail for
// metric_<name> events.
type Detail struct {
	Kind      Kind    `json:"kind"`
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Scope     string  `json:"scope,omitempty"`
	ValueMsMs float64 `json:"value_ms,omitempty"`
}

// Tap is the C6 metrics tap.
type Tap struct {
	ledger *ledger.Ledger

	counters   *prometheus.CounterVec
	gauges     *prometheus.GaugeVec
	histograms *prometheus.HistogramVec
}

// New constructs a Tap writing through ledger and registering collectors on
// registry. Pass prometheus.NewRegistry() in tests to avoid collisions with
// the default global registry.
func New(l *ledger.Ledger, registry *prometheus.Registry) *Tap {
	t := &Tap{
		ledger: l,
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge",
			Name:      "events_total",
			Help:      "Count of forge lifecycle events by name and outcome.",
		}, []string{"name", "outcome"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "forge",
			Name:      "gauge",
			Help:      "Point-in-time gauge values emitted by forge components.",
		}, []string{"name", "scope"}),
		histograms: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "forge",
			Name:      "latency_ms",
			Help:      "Latency samples emitted by forge components, in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"name"}),
	}
	if registry != nil {
		registry.MustRegister(t.counters, t.gauges, t.histograms)
	}
	return t
}

// Counter records a counter sample for agentID (may be empty for
// process-wide metrics) with the given outcome, e.g. Counter(ctx, "",
// "agents_spawned", "success").
func (t *Tap) Counter(ctx context.Context, agentID, name, outcome string) error {
	t.counters.WithLabelValues(name, outcome).Inc()
	_, err := t.ledger.Append(ctx, agentID, "metric_"+name, outcome, Detail{Kind: KindCounter, Name: name, Value: 1})
	return err
}

// Gauge records a gauge sample.
func (t *Tap) Gauge(ctx context.Context, agentID, name, scope string, value float64) error {
	t.gauges.WithLabelValues(name, scope).Set(value)
	_, err := t.ledger.Append(ctx, agentID, "metric_"+name, "gauge", Detail{Kind: KindGauge, Name: name, Value: value, Scope: scope})
	return err
}

// Latency records a latency sample in milliseconds. Used by C7's
// send_to_idle_duration sample (§4.3).
func (t *Tap) Latency(ctx context.Context, agentID, name string, valueMs float64) error {
	t.histograms.WithLabelValues(name).Observe(valueMs)
	_, err := t.ledger.Append(ctx, agentID, "metric_"+name, "latency", Detail{Kind: KindLatency, Name: name, ValueMsMs: valueMs})
	return err
}
