package transport

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/ferrors"
	"github.com/tombee/forge/pkg/model"
)

// Fake is an in-memory Transport used by tests and by the revive/lifecycle
// unit suites, grounded on the teacher's internal/mcp fakeClient pattern of
// a mutex-guarded map standing in for the real daemon connection.
type Fake struct {
	mu        sync.Mutex
	clock     clock.Clock
	snapshots map[string]*model.AgentSnapshot

	// SpawnErr, when set, is returned by the next Spawn call instead of
	// succeeding, letting tests exercise C7's error paths.
	SpawnErr error
	// SendErr, when set, is returned by the next Send call.
	SendErr error
	// InterruptErr, when set, is returned by the next Interrupt call.
	InterruptErr error
	// KillErr, when set, is returned by the next Kill call.
	KillErr error
}

// NewFake constructs an empty Fake transport.
func NewFake(c clock.Clock) *Fake {
	return &Fake{clock: c, snapshots: map[string]*model.AgentSnapshot{}}
}

// Seed installs a snapshot directly, bypassing Spawn, for tests that need a
// pre-existing live agent.
func (f *Fake) Seed(snap *model.AgentSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[snap.ID] = snap
}

func (f *Fake) Spawn(ctx context.Context, params SpawnParams) (*model.AgentSnapshot, error) {
	if f.SpawnErr != nil {
		err := f.SpawnErr
		f.SpawnErr = nil
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id := params.AgentID
	if id == "" {
		id = f.clock.NewID()
	}
	now := f.clock.Now()
	snap := &model.AgentSnapshot{
		ID:             id,
		WorkspaceID:    params.WorkspaceID,
		State:          model.AgentStateStarting,
		PID:            len(f.snapshots) + 1,
		Command:        params.Command,
		Adapter:        params.Adapter,
		SpawnedAt:      now,
		LastActivityAt: now,
	}
	f.snapshots[id] = snap
	return cloneSnapshot(snap), nil
}

func (f *Fake) Send(ctx context.Context, agentID, text string, sendEnter bool, keys []string) error {
	if f.SendErr != nil {
		err := f.SendErr
		f.SendErr = nil
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snapshots[agentID]
	if !ok {
		return &ferrors.NotFoundError{Resource: "agent", ID: agentID}
	}
	snap.State = model.AgentStateRunning
	snap.LastActivityAt = f.clock.Now()
	return nil
}

func (f *Fake) WaitState(ctx context.Context, agentID string, targetStates []model.AgentState, timeout, pollInterval time.Duration) (*model.AgentSnapshot, error) {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Millisecond
	}
	deadline := f.clock.Now().Add(timeout)
	limiter := rate.NewLimiter(rate.Every(pollInterval), 1)
	for {
		f.mu.Lock()
		snap, ok := f.snapshots[agentID]
		if !ok {
			f.mu.Unlock()
			return nil, &ferrors.NotFoundError{Resource: "agent", ID: agentID}
		}
		for _, want := range targetStates {
			if snap.State == want {
				f.mu.Unlock()
				return cloneSnapshot(snap), nil
			}
		}
		f.mu.Unlock()

		if f.clock.Now().After(deadline) {
			return nil, &ferrors.TimeoutError{Operation: "wait_state", Duration: timeout}
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
}

func (f *Fake) Interrupt(ctx context.Context, agentID string) error {
	if f.InterruptErr != nil {
		err := f.InterruptErr
		f.InterruptErr = nil
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snapshots[agentID]
	if !ok {
		return &ferrors.NotFoundError{Resource: "agent", ID: agentID}
	}
	snap.State = model.AgentStateIdle
	return nil
}

func (f *Fake) Kill(ctx context.Context, params KillParams) error {
	if f.KillErr != nil {
		err := f.KillErr
		f.KillErr = nil
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snapshots[params.AgentID]
	if !ok {
		return &ferrors.NotFoundError{Resource: "agent", ID: params.AgentID}
	}
	snap.State = model.AgentStateStopped
	return nil
}

func (f *Fake) List(ctx context.Context, filter ListFilter) ([]*model.AgentSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.AgentSnapshot
	for _, snap := range f.snapshots {
		if filter.WorkspaceID != "" && snap.WorkspaceID != filter.WorkspaceID {
			continue
		}
		if len(filter.States) > 0 && !containsState(filter.States, snap.State) {
			continue
		}
		out = append(out, cloneSnapshot(snap))
	}
	return out, nil
}

func (f *Fake) Get(ctx context.Context, agentID string) (*model.AgentSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snapshots[agentID]
	if !ok {
		return nil, &ferrors.NotFoundError{Resource: "agent", ID: agentID}
	}
	return cloneSnapshot(snap), nil
}

func containsState(states []model.AgentState, s model.AgentState) bool {
	for _, want := range states {
		if want == s {
			return true
		}
	}
	return false
}

func cloneSnapshot(s *model.AgentSnapshot) *model.AgentSnapshot {
	cp := *s
	return &cp
}
