// Package model defines the data model shared by every component: the
// durable agent record, the append-only event, the transcript, the live
// snapshot the transport returns, and the workflow run/step records (§3).
package model

import "time"

// AgentState is the state of a PersistentAgent record.
type AgentState string

const (
	AgentStateStarting        AgentState = "starting"
	AgentStateRunning         AgentState = "running"
	AgentStateIdle            AgentState = "idle"
	AgentStatePaused          AgentState = "paused"
	AgentStateWaitingApproval AgentState = "waiting_approval"
	AgentStateStopped         AgentState = "stopped"
	AgentStateFailed          AgentState = "failed"
)

// IsTerminal reports whether the state is one of the two terminal states.
func (s AgentState) IsTerminal() bool {
	return s == AgentStateStopped || s == AgentStateFailed
}

// IsParked reports whether the state makes the agent eligible for GC (§4.5).
func (s AgentState) IsParked() bool {
	return s == AgentStateIdle || s == AgentStateStopped || s == AgentStateFailed
}

// Approval context label keys, carried on PersistentAgent.Labels.
const (
	LabelApprovalPolicy = "approval_policy"
	LabelAccountID      = "account_id"
	LabelProfile        = "profile"
)

// PersistentAgent is the durable record of an agent known to the system.
type PersistentAgent struct {
	ID             string
	ParentAgentID  string
	WorkspaceID    string
	Harness        string
	Mode           string
	State          AgentState
	Labels         map[string]string
	TTLSeconds     *int64
	CreatedAt      time.Time
	LastActivityAt time.Time
	UpdatedAt      time.Time
}

// ApprovalPolicy returns the agent's approval_policy label, or "" if absent.
func (a *PersistentAgent) ApprovalPolicy() string {
	if a.Labels == nil {
		return ""
	}
	return a.Labels[LabelApprovalPolicy]
}

// ApprovalContext is the (approval_policy, account_id?, profile?) tuple
// carried as labels on persistent records and as env vars on spawn (§6).
type ApprovalContext struct {
	ApprovalPolicy string
	AccountID      string
	Profile        string
}

// AsLabels converts the context to the label map stored on PersistentAgent.
func (c ApprovalContext) AsLabels() map[string]string {
	labels := map[string]string{}
	if c.ApprovalPolicy != "" {
		labels[LabelApprovalPolicy] = c.ApprovalPolicy
	}
	if c.AccountID != "" {
		labels[LabelAccountID] = c.AccountID
	}
	if c.Profile != "" {
		labels[LabelProfile] = c.Profile
	}
	return labels
}

// AgentEvent is an append-only audit record (§3, §4.2).
type AgentEvent struct {
	ID        int64
	AgentID   string
	Kind      string
	Outcome   string
	Detail    string
	Timestamp time.Time
}

// Transcript is the latest captured chat transcript for an agent.
type Transcript struct {
	AgentID     string
	Content     string
	ContentHash string
	CapturedAt  time.Time
}

// AgentSnapshot is the volatile, transport-produced view of a live agent.
type AgentSnapshot struct {
	ID             string
	WorkspaceID    string
	State          AgentState
	PaneID         string
	PID            int
	Command        string
	Adapter        string
	SpawnedAt      time.Time
	LastActivityAt time.Time
}
