// Package gc implements C9, the GC / eviction controller: scans parked
// agent records and deletes those matching a TTL, idle-timeout, or max-age
// rule, recording gc_evict_start/gc_evict_done events for every candidate
// it deletes (§4.5); a dry run only reports candidates. The first matching
// rule wins.
package gc

import (
	"context"

	"github.com/tombee/forge/pkg/agentregistry"
	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/ledger"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/store"
)

// Request narrows a GC scan (§4.5).
type Request struct {
	WorkspaceID    string
	IdleTimeoutSec *int64
	MaxAgeSec      *int64
	DryRun         bool
	Limit          int
}

// Eviction records the outcome for a single candidate.
type Eviction struct {
	model.EvictionCandidate
	Outcome string // "success" or "error: <message>"
}

// Result is the response to a GC run (§4.5).
type Result struct {
	Scanned   int
	Evicted   int
	Kept      int
	DryRun    bool
	Evictions []Eviction
}

// Controller is the C9 GC / eviction controller.
type Controller struct {
	clock    clock.Clock
	registry *agentregistry.Registry
	ledger   *ledger.Ledger
}

// New constructs a Controller.
func New(c clock.Clock, registry *agentregistry.Registry, l *ledger.Ledger) *Controller {
	return &Controller{clock: c, registry: registry, ledger: l}
}

// Run performs one GC scan per §4.5. Only idle/stopped/failed records are
// considered; the first matching rule (ttl, then idle_timeout, then
// max_age) wins.
func (c *Controller) Run(ctx context.Context, req Request) (*Result, error) {
	filter := store.AgentFilter{
		WorkspaceID: req.WorkspaceID,
		States:      []model.AgentState{model.AgentStateIdle, model.AgentStateStopped, model.AgentStateFailed},
		Limit:       req.Limit,
	}
	records, err := c.registry.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	result := &Result{DryRun: req.DryRun}

	for _, rec := range records {
		result.Scanned++

		age := clampNonNegative(now.Sub(rec.CreatedAt).Seconds())
		idle := clampNonNegative(now.Sub(rec.LastActivityAt).Seconds())

		reason, matched := pickRule(rec.TTLSeconds, req.IdleTimeoutSec, req.MaxAgeSec, age, idle)
		if !matched {
			result.Kept++
			continue
		}

		candidate := model.EvictionCandidate{
			AgentID:     rec.ID,
			Reason:      reason,
			AgeSeconds:  age,
			IdleSeconds: idle,
			TTLSeconds:  rec.TTLSeconds,
		}

		if req.DryRun {
			result.Evictions = append(result.Evictions, Eviction{EvictionCandidate: candidate, Outcome: "candidate"})
			continue
		}

		c.ledger.Append(ctx, rec.ID, "gc_evict_start", "candidate", candidate)

		if err := c.registry.Delete(ctx, rec.ID); err != nil {
			c.ledger.Append(ctx, rec.ID, "gc_evict_done", "error: "+err.Error(), nil)
			result.Evictions = append(result.Evictions, Eviction{EvictionCandidate: candidate, Outcome: "error: " + err.Error()})
			return result, err
		}

		c.ledger.Append(ctx, rec.ID, "gc_evict_done", "success", nil)
		result.Evictions = append(result.Evictions, Eviction{EvictionCandidate: candidate, Outcome: "success"})
		result.Evicted++
	}

	return result, nil
}

func pickRule(ttlSeconds, idleTimeoutSec, maxAgeSec *int64, age, idle int64) (model.EvictionReason, bool) {
	if ttlSeconds != nil && *ttlSeconds > 0 && age >= *ttlSeconds {
		return model.EvictionReasonTTL, true
	}
	if idleTimeoutSec != nil && idle >= *idleTimeoutSec {
		return model.EvictionReasonIdleTimeout, true
	}
	if maxAgeSec != nil && age >= *maxAgeSec {
		return model.EvictionReasonMaxAge, true
	}
	return "", false
}

func clampNonNegative(seconds float64) int64 {
	if seconds < 0 {
		return 0
	}
	return int64(seconds)
}
