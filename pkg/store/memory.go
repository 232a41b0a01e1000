package store

import (
	"context"
	"sync"

	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/ferrors"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/redact"
)

// MemoryStore is a thread-safe, in-memory Store implementation, suitable
// for tests and single-process deployments. Grounded on the teacher's
// pkg/workflow.MemoryStore (mutex-guarded map, timestamp stamping on
// Create/Update).
type MemoryStore struct {
	clock clock.Clock
	ids   clock.MonotonicIDs

	mu          sync.RWMutex
	agents      map[string]*model.PersistentAgent
	events      []*model.AgentEvent
	transcripts map[string]*model.Transcript
	runs        map[string]*model.WorkflowRun
	stepLogs    map[string][]string // "<runID>/<stepID>" -> lines
}

// NewMemoryStore constructs an empty MemoryStore backed by the given Clock.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.New()
	}
	return &MemoryStore{
		clock:       c,
		agents:      make(map[string]*model.PersistentAgent),
		transcripts: make(map[string]*model.Transcript),
		runs:        make(map[string]*model.WorkflowRun),
		stepLogs:    make(map[string][]string),
	}
}

func (s *MemoryStore) Agents() AgentStore             { return (*memAgents)(s) }
func (s *MemoryStore) Events() EventStore             { return (*memEvents)(s) }
func (s *MemoryStore) Transcripts() TranscriptStore   { return (*memTranscripts)(s) }
func (s *MemoryStore) WorkflowRuns() WorkflowRunStore { return (*memRuns)(s) }

// --- agents ---

type memAgents MemoryStore

func (m *memAgents) Create(_ context.Context, record *model.PersistentAgent) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[record.ID]; exists {
		return &ferrors.InvalidArgumentError{Field: "id", Message: "agent already exists: " + record.ID}
	}

	now := s.clock.Now()
	clone := *record
	clone.CreatedAt = now
	clone.LastActivityAt = now
	clone.UpdatedAt = now
	if clone.Labels == nil {
		clone.Labels = map[string]string{}
	}
	s.agents[record.ID] = &clone
	return nil
}

func (m *memAgents) Get(_ context.Context, id string) (*model.PersistentAgent, error) {
	s := (*MemoryStore)(m)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.agents[id]
	if !ok {
		return nil, &ferrors.NotFoundError{Resource: "agent", ID: id}
	}
	clone := *rec
	return &clone, nil
}

func (m *memAgents) List(_ context.Context, filter AgentFilter) ([]*model.PersistentAgent, error) {
	s := (*MemoryStore)(m)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var states map[model.AgentState]bool
	if len(filter.States) > 0 {
		states = make(map[model.AgentState]bool, len(filter.States))
		for _, st := range filter.States {
			states[st] = true
		}
	}

	var out []*model.PersistentAgent
	for _, rec := range s.agents {
		if filter.WorkspaceID != "" && rec.WorkspaceID != filter.WorkspaceID {
			continue
		}
		if states != nil && !states[rec.State] {
			continue
		}
		clone := *rec
		out = append(out, &clone)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *memAgents) UpdateState(_ context.Context, id string, state model.AgentState) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.agents[id]
	if !ok {
		return &ferrors.NotFoundError{Resource: "agent", ID: id}
	}
	rec.State = state
	rec.UpdatedAt = s.clock.Now()
	return nil
}

func (m *memAgents) UpdateLabels(_ context.Context, id string, labels map[string]string) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.agents[id]
	if !ok {
		return &ferrors.NotFoundError{Resource: "agent", ID: id}
	}
	if rec.Labels == nil {
		rec.Labels = map[string]string{}
	}
	for k, v := range labels {
		rec.Labels[k] = v
	}
	rec.UpdatedAt = s.clock.Now()
	return nil
}

func (m *memAgents) TouchActivity(_ context.Context, id string) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.agents[id]
	if !ok {
		return &ferrors.NotFoundError{Resource: "agent", ID: id}
	}
	now := s.clock.Now()
	rec.LastActivityAt = now
	rec.UpdatedAt = now
	return nil
}

func (m *memAgents) Delete(_ context.Context, id string) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return &ferrors.NotFoundError{Resource: "agent", ID: id}
	}
	delete(s.agents, id)
	return nil
}

// --- events ---

type memEvents MemoryStore

func (m *memEvents) Append(_ context.Context, event *model.AgentEvent) (*model.AgentEvent, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *event
	clone.ID = s.ids.Next()
	clone.Timestamp = s.clock.Now()
	clone.Outcome = redact.Text(clone.Outcome)
	clone.Detail = redact.Detail(clone.Detail)

	s.events = append(s.events, &clone)
	result := clone
	return &result, nil
}

func (m *memEvents) ListByAgent(_ context.Context, agentID string, limit int) ([]*model.AgentEvent, error) {
	s := (*MemoryStore)(m)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.AgentEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if e.AgentID != agentID {
			continue
		}
		clone := *e
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memEvents) Query(_ context.Context, kind string, limit int) ([]*model.AgentEvent, error) {
	s := (*MemoryStore)(m)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.AgentEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if kind != "" && e.Kind != kind {
			continue
		}
		clone := *e
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- transcripts ---

type memTranscripts MemoryStore

func (m *memTranscripts) Put(_ context.Context, t *model.Transcript) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *t
	s.transcripts[t.AgentID] = &clone
	return nil
}

func (m *memTranscripts) LatestByAgent(_ context.Context, agentID string) (*model.Transcript, error) {
	s := (*MemoryStore)(m)
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transcripts[agentID]
	if !ok {
		return nil, &ferrors.NotFoundError{Resource: "transcript", ID: agentID}
	}
	clone := *t
	return &clone, nil
}
