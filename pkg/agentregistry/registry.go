// Package agentregistry implements C4: CRUD plus state transitions over
// PersistentAgent records, and derivation of the approval label an agent
// was created with. It holds no state of its own beyond a handle to C3
// (§3: "C4 ... hold no state beyond handles to C3").
package agentregistry

import (
	"context"

	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/store"
)

// Registry is the C4 agent registry.
type Registry struct {
	agents store.AgentStore
}

// New constructs a Registry over the given AgentStore.
func New(agents store.AgentStore) *Registry {
	return &Registry{agents: agents}
}

// Create persists a new PersistentAgent record.
func (r *Registry) Create(ctx context.Context, record *model.PersistentAgent) error {
	return r.agents.Create(ctx, record)
}

// Get returns the record for id, or a NotFoundError.
func (r *Registry) Get(ctx context.Context, id string) (*model.PersistentAgent, error) {
	return r.agents.Get(ctx, id)
}

// List returns records matching filter.
func (r *Registry) List(ctx context.Context, filter store.AgentFilter) ([]*model.PersistentAgent, error) {
	return r.agents.List(ctx, filter)
}

// UpdateState transitions a record's state and bumps updated_at.
func (r *Registry) UpdateState(ctx context.Context, id string, state model.AgentState) error {
	return r.agents.UpdateState(ctx, id, state)
}

// UpdateLabels merges labels into a record's existing label set.
func (r *Registry) UpdateLabels(ctx context.Context, id string, labels map[string]string) error {
	return r.agents.UpdateLabels(ctx, id, labels)
}

// TouchActivity bumps last_activity_at and updated_at to now.
func (r *Registry) TouchActivity(ctx context.Context, id string) error {
	return r.agents.TouchActivity(ctx, id)
}

// Delete removes a record, used by GC (C9).
func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.agents.Delete(ctx, id)
}

// EnsureExists creates the record if missing, or updates its state to
// starting (and refreshes its approval labels) if present. Used by the
// revive planner (C8 step 5: "ensure persistent record exists").
func (r *Registry) EnsureExists(ctx context.Context, id, workspaceID, harness string, parentAgentID string, approval model.ApprovalContext) error {
	_, err := r.agents.Get(ctx, id)
	if err == nil {
		if err := r.agents.UpdateState(ctx, id, model.AgentStateStarting); err != nil {
			return err
		}
		return r.agents.UpdateLabels(ctx, id, approval.AsLabels())
	}

	return r.agents.Create(ctx, &model.PersistentAgent{
		ID:            id,
		ParentAgentID: parentAgentID,
		WorkspaceID:   workspaceID,
		Harness:       harness,
		Mode:          "continuous",
		State:         model.AgentStateStarting,
		Labels:        approval.AsLabels(),
	})
}

// ApprovalLabel derives the approval_policy label carried on a record, or
// "" if the agent was created without one (§3: "labels[approval_policy]
// present iff agent was created with one").
func ApprovalLabel(record *model.PersistentAgent) string {
	if record == nil {
		return ""
	}
	return record.ApprovalPolicy()
}
