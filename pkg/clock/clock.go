// Package clock provides the monotonic wall-clock and ID-generation
// primitives shared by every other component. Stores, the GC controller,
// the workflow engine and the Fake transport read time and ids through a
// Clock so tests can inject deterministic values; the lifecycle service's
// send-to-idle latency timer reads time.Now directly.
package clock

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Clock is the injected time and id source. The default implementation
// wraps the real wall clock; tests supply their own implementations (for
// example a fixed-time clock).
type Clock interface {
	// Now returns the current time in UTC.
	Now() time.Time

	// NewID returns an opaque, globally unique identifier.
	NewID() string
}

// RFC3339 formats t as the wire format used throughout the data model.
func RFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseRFC3339 parses a timestamp produced by RFC3339.
func ParseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// System is the production Clock backed by time.Now and uuid.NewString.
type System struct{}

// New returns the production Clock.
func New() Clock { return System{} }

func (System) Now() time.Time { return time.Now().UTC() }

func (System) NewID() string { return uuid.NewString() }

// MonotonicIDs hands out strictly increasing integer ids, used by
// MemoryStore for AgentEvent.id (§3: "after persist, id>0"). WorkflowRun ids
// are not drawn from it: both stores take them from Clock.NewID, so run ids
// are unique but not ordered.
type MonotonicIDs struct {
	counter int64
}

// Next returns the next monotonically increasing id, starting at 1.
func (m *MonotonicIDs) Next() int64 {
	return atomic.AddInt64(&m.counter, 1)
}

// AgentIDSequence generates operator-facing agent ids of the form
// "<prefix>-<seq>" (prefix defaults to "ag") via NextAgentID.
// Grounded on the original Rust CLI's next_auto_agent_id convenience helper
// (see SPEC_FULL.md §C.3); not part of the core contracts, and no code in
// this repository calls it.
type AgentIDSequence struct {
	counter int64
}

func (s *AgentIDSequence) NextAgentID(prefix string) string {
	n := atomic.AddInt64(&s.counter, 1)
	if prefix == "" {
		prefix = "ag"
	}
	return fmt.Sprintf("%s-%d", prefix, n)
}
