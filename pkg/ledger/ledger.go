// Package ledger implements C5, the append-only event/audit stream. Every
// append is sanitized by C2 (handled inside the store, §4.2) and, when a
// tracer is configured, mirrored as a span — grounded on the teacher's
// internal/tracing package, which wraps every traced operation as an
// OpenTelemetry span via an injected trace.Tracer rather than the global
// otel.Tracer().
package ledger

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/store"
)

// Ledger is the C5 event/audit ledger.
type Ledger struct {
	events store.EventStore
	tracer trace.Tracer
}

// New constructs a Ledger. tracer may be nil, in which case no spans are
// emitted (events are still persisted and redacted by the store).
func New(events store.EventStore, tracer trace.Tracer) *Ledger {
	return &Ledger{events: events, tracer: tracer}
}

// Append records an AgentEvent, mirroring it as a trace span when a tracer
// is configured. Returns the persisted (redacted, id-assigned) event.
func (l *Ledger) Append(ctx context.Context, agentID, kind, outcome string, detail interface{}) (*model.AgentEvent, error) {
	detailJSON := ""
	if detail != nil {
		b, err := json.Marshal(detail)
		if err == nil {
			detailJSON = string(b)
		}
	}

	persisted, err := l.events.Append(ctx, &model.AgentEvent{
		AgentID: agentID,
		Kind:    kind,
		Outcome: outcome,
		Detail:  detailJSON,
	})

	if l.tracer != nil {
		_, span := l.tracer.Start(ctx, kind)
		span.SetAttributes(
			attribute.String("agent_id", agentID),
			attribute.String("outcome", outcome),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}

	return persisted, err
}

// ListByAgent returns the most-recent-first event stream for an agent.
func (l *Ledger) ListByAgent(ctx context.Context, agentID string, limit int) ([]*model.AgentEvent, error) {
	return l.events.ListByAgent(ctx, agentID, limit)
}

// Query returns events of a given kind, most-recent-first, for metric
// reconstruction (C6).
func (l *Ledger) Query(ctx context.Context, kind string, limit int) ([]*model.AgentEvent, error) {
	return l.events.Query(ctx, kind, limit)
}
