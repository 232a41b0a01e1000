// Package transport defines the Transport contract (§6): the opaque
// collaborator C7 drives for spawn/send/wait/interrupt/kill/list/get. The
// core never assumes an in-process or networked implementation; it only
// relies on this interface, grounded on the teacher's mcp client contract
// in internal/mcp (a narrow interface in front of a process the core does
// not own).
package transport

import (
	"context"
	"time"

	"github.com/tombee/forge/pkg/model"
)

// SpawnParams mirrors spec §4.3's spawn params tuple.
type SpawnParams struct {
	AgentID              string
	WorkspaceID          string
	Command              string
	Args                 []string
	Env                  map[string]string
	WorkingDir           string
	SessionName          string
	Adapter              string
	RequestedMode        string
	AllowOneshotFallback bool
}

// KillParams mirrors spec §4.3's kill params tuple.
type KillParams struct {
	AgentID     string
	Force       bool
	GracePeriod *time.Duration
}

// ListFilter narrows Transport.List results.
type ListFilter struct {
	WorkspaceID string
	States      []model.AgentState
}

// Transport is the opaque collaborator the core consumes (§6). Both
// in-memory (Fake, for tests) and networked production implementations
// satisfy this contract.
type Transport interface {
	Spawn(ctx context.Context, params SpawnParams) (*model.AgentSnapshot, error)
	Send(ctx context.Context, agentID, text string, sendEnter bool, keys []string) error
	WaitState(ctx context.Context, agentID string, targetStates []model.AgentState, timeout, pollInterval time.Duration) (*model.AgentSnapshot, error)
	Interrupt(ctx context.Context, agentID string) error
	Kill(ctx context.Context, params KillParams) error
	List(ctx context.Context, filter ListFilter) ([]*model.AgentSnapshot, error)
	Get(ctx context.Context, agentID string) (*model.AgentSnapshot, error)
}
