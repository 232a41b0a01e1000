// Package store defines the durable key/value tables C3 exposes: agents,
// agent events, transcripts, and workflow runs/step logs. Implementers are
// free to choose the backing engine; MemoryStore and SQLiteStore both
// satisfy the same Store interface, grounded on the teacher's
// pkg/workflow.Store / internal/controller/backend.Backend split between an
// in-memory reference implementation and a real embedded database.
package store

import (
	"context"

	"github.com/tombee/forge/pkg/model"
)

// AgentFilter narrows Agents.List results.
type AgentFilter struct {
	WorkspaceID string
	States      []model.AgentState
	Limit       int
}

// AgentStore is the C3 contract for PersistentAgent CRUD (§4.2).
type AgentStore interface {
	Create(ctx context.Context, record *model.PersistentAgent) error
	Get(ctx context.Context, id string) (*model.PersistentAgent, error)
	List(ctx context.Context, filter AgentFilter) ([]*model.PersistentAgent, error)
	UpdateState(ctx context.Context, id string, state model.AgentState) error
	UpdateLabels(ctx context.Context, id string, labels map[string]string) error
	TouchActivity(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// EventStore is the C3/C5 contract for the append-only AgentEvent ledger.
// Append assigns ID and Timestamp and redacts Outcome/Detail before persist
// (§4.2); callers never see unredacted data once it round-trips.
type EventStore interface {
	Append(ctx context.Context, event *model.AgentEvent) (*model.AgentEvent, error)
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*model.AgentEvent, error)
	Query(ctx context.Context, kind string, limit int) ([]*model.AgentEvent, error)
}

// TranscriptStore is the C3 contract for the latest-wins transcript table.
type TranscriptStore interface {
	Put(ctx context.Context, t *model.Transcript) error
	LatestByAgent(ctx context.Context, agentID string) (*model.Transcript, error)
}

// WorkflowRunStore is the C3 contract for workflow run/step persistence.
type WorkflowRunStore interface {
	Create(ctx context.Context, name, source string, stepIDs []string, stepTypes map[string]string) (*model.WorkflowRun, error)
	Get(ctx context.Context, id string) (*model.WorkflowRun, error)
	UpdateRunStatus(ctx context.Context, id string, status model.WorkflowRunStatus) error
	UpdateStepStatus(ctx context.Context, runID, stepID string, status model.StepStatus) error
	UpdateStepOutputs(ctx context.Context, runID, stepID string, outputs map[string]string) error
	MarkStepWaitingApproval(ctx context.Context, runID, stepID string, timeoutAt *int64) error
	DecideStepApproval(ctx context.Context, runID, stepID string, approved bool, reason string) error
	AppendStepLog(ctx context.Context, runID, stepID, line string) error
	ReadStepLog(ctx context.Context, runID, stepID string) ([]string, error)
	LoadResumeState(ctx context.Context, runID string) (*model.WorkflowRun, error)
}

// Store bundles the four tables behind a single handle, the way the
// teacher's backend.Backend composes RunStore/CheckpointStore/etc.
type Store interface {
	Agents() AgentStore
	Events() EventStore
	Transcripts() TranscriptStore
	WorkflowRuns() WorkflowRunStore
}
