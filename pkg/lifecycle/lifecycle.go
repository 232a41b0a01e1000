// Package lifecycle implements C7, the agent lifecycle service: a
// language-neutral API over an opaque Transport that adds policy
// enforcement, redaction, and event emission.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/tombee/forge/pkg/agentregistry"
	"github.com/tombee/forge/pkg/ferrors"
	"github.com/tombee/forge/pkg/ledger"
	"github.com/tombee/forge/pkg/metrics"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/policy"
	"github.com/tombee/forge/pkg/transport"
)

// Reviver is the C8 collaborator C7.Revive delegates to. Defined here
// (rather than importing pkg/revive) to break the natural dependency
// cycle: C8's revive procedure itself calls back into C7's Spawn/Kill/Send.
type Reviver interface {
	Revive(ctx context.Context, agentID string, rc ReviveContext) error
}

// ReviveContext mirrors §4.4's revive context: the approval/workspace
// context a revive needs to fabricate a spawn.
type ReviveContext struct {
	RevivePolicy   string // auto | never | ask
	ApprovalPolicy string
	AccountID      string
	Profile        string
	WorkspaceID    string
	Command        string
	Args           []string
	Env            map[string]string
	Adapter        string
	Harness        string
	ParentAgentID  string
}

// Service is the C7 agent lifecycle service.
type Service struct {
	transport transport.Transport
	registry  *agentregistry.Registry
	ledger    *ledger.Ledger
	metrics   *metrics.Tap
	reviver   Reviver

	mu         sync.Mutex
	lastSendAt map[string]time.Time
}

// New constructs a Service. SetReviver must be called before Revive is used
// (the revive planner is constructed after the service, since it itself
// depends on the service).
func New(t transport.Transport, reg *agentregistry.Registry, l *ledger.Ledger, m *metrics.Tap) *Service {
	return &Service{transport: t, registry: reg, ledger: l, metrics: m, lastSendAt: map[string]time.Time{}}
}

// SetReviver wires the C8 collaborator used by Revive.
func (s *Service) SetReviver(r Reviver) { s.reviver = r }

// Spawn calls the transport and emits agents_spawned.{success,error}.
func (s *Service) Spawn(ctx context.Context, params transport.SpawnParams) (*model.AgentSnapshot, error) {
	snap, err := s.transport.Spawn(ctx, params)
	if err != nil {
		s.emit(ctx, params.AgentID, "agents_spawned", "error", map[string]string{"error": err.Error()})
		return nil, classify(err)
	}
	s.emit(ctx, snap.ID, "agents_spawned", "success", snap)
	return snap, nil
}

// Send classifies the payload via C13 before forwarding to the transport.
func (s *Service) Send(ctx context.Context, agentID, text string, sendEnter bool, keys []string, requestPolicy string, allowRisky bool) error {
	labelPolicy := s.labelPolicy(ctx, agentID)
	effective := policy.Resolve(requestPolicy, labelPolicy)
	reason := policy.ClassifySend(text, keys)
	if d := policy.Enforce(effective, allowRisky, reason); d.Blocked {
		s.emit(ctx, agentID, "sends", "error", map[string]string{"reason": "policy_denied", "detail": d.Reason})
		return &ferrors.RiskyActionBlockedError{AgentID: agentID, Policy: effective, Reason: d.Reason, Remediation: d.Remediation}
	}

	err := s.transport.Send(ctx, agentID, text, sendEnter, keys)
	s.mu.Lock()
	s.lastSendAt[agentID] = time.Now()
	s.mu.Unlock()
	if err != nil {
		s.emit(ctx, agentID, "sends", "error", map[string]string{"error": err.Error()})
		return classify(err)
	}
	s.emit(ctx, agentID, "sends", "success", nil)
	return nil
}

// WaitState forwards to the transport, recording wait_timeout.error on
// timeout and a send_to_idle_duration latency sample when idle is among
// the requested target states and a preceding Send was observed.
func (s *Service) WaitState(ctx context.Context, agentID string, targetStates []model.AgentState, timeout, pollInterval time.Duration) (*model.AgentSnapshot, error) {
	snap, err := s.transport.WaitState(ctx, agentID, targetStates, timeout, pollInterval)
	if err != nil {
		s.emit(ctx, agentID, "wait_timeout", "error", map[string]string{"error": err.Error()})
		return nil, classify(err)
	}

	if wantsIdle(targetStates) {
		s.mu.Lock()
		sentAt, ok := s.lastSendAt[agentID]
		delete(s.lastSendAt, agentID)
		s.mu.Unlock()
		if ok && s.metrics != nil {
			s.metrics.Latency(ctx, agentID, "send_to_idle_duration", float64(time.Since(sentAt).Milliseconds()))
		}
	}
	return snap, nil
}

// Interrupt classifies via C13 using the live snapshot's current state.
func (s *Service) Interrupt(ctx context.Context, agentID string, requestPolicy string, allowRisky bool) error {
	snap, err := s.transport.Get(ctx, agentID)
	if err != nil {
		return classify(err)
	}
	labelPolicy := s.labelPolicy(ctx, agentID)
	effective := policy.Resolve(requestPolicy, labelPolicy)
	reason := policy.ClassifyInterrupt(string(snap.State))
	if d := policy.Enforce(effective, allowRisky, reason); d.Blocked {
		s.emit(ctx, agentID, "interrupts", "error", map[string]string{"reason": "policy_denied", "detail": d.Reason})
		return &ferrors.RiskyActionBlockedError{AgentID: agentID, Policy: effective, Reason: d.Reason, Remediation: d.Remediation}
	}

	if err := s.transport.Interrupt(ctx, agentID); err != nil {
		s.emit(ctx, agentID, "interrupts", "error", map[string]string{"error": err.Error()})
		return classify(err)
	}
	s.emit(ctx, agentID, "interrupts", "success", nil)
	return nil
}

// Kill forwards to the transport and records kill.{success,error}.
func (s *Service) Kill(ctx context.Context, params transport.KillParams) error {
	if err := s.transport.Kill(ctx, params); err != nil {
		s.emit(ctx, params.AgentID, "kill", "error", map[string]string{"error": err.Error()})
		return classify(err)
	}
	s.emit(ctx, params.AgentID, "kill", "success", nil)
	if s.metrics != nil {
		s.metrics.Gauge(ctx, params.AgentID, "live_agents", "", 0)
	}
	return nil
}

// List is a pure delegation; no events emitted.
func (s *Service) List(ctx context.Context, filter transport.ListFilter) ([]*model.AgentSnapshot, error) {
	snaps, err := s.transport.List(ctx, filter)
	return snaps, classify(err)
}

// Get is a pure delegation; no events emitted.
func (s *Service) Get(ctx context.Context, agentID string) (*model.AgentSnapshot, error) {
	snap, err := s.transport.Get(ctx, agentID)
	return snap, classify(err)
}

// Revive delegates to the injected C8 Reviver.
func (s *Service) Revive(ctx context.Context, agentID string, rc ReviveContext) error {
	if s.reviver == nil {
		return &ferrors.InternalError{Message: "revive planner not configured"}
	}
	return s.reviver.Revive(ctx, agentID, rc)
}

func (s *Service) labelPolicy(ctx context.Context, agentID string) string {
	rec, err := s.registry.Get(ctx, agentID)
	if err != nil {
		return ""
	}
	return agentregistry.ApprovalLabel(rec)
}

func (s *Service) emit(ctx context.Context, agentID, kind, outcome string, detail interface{}) {
	if s.ledger == nil {
		return
	}
	s.ledger.Append(ctx, agentID, kind, outcome, detail)
	if s.metrics != nil {
		s.metrics.Counter(ctx, agentID, kind, outcome)
	}
}

func wantsIdle(states []model.AgentState) bool {
	for _, st := range states {
		if st == model.AgentStateIdle {
			return true
		}
	}
	return false
}

// classify wraps transport/store errors as Internal unless they already
// carry one of the §7 failure kinds (NotFound, CapabilityMismatch,
// TransportUnavailable, RiskyActionBlocked, InvalidArgument, Timeout,
// Internal).
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch err.(type) {
	case *ferrors.NotFoundError, *ferrors.CapabilityMismatchError, *ferrors.TransportUnavailableError,
		*ferrors.RiskyActionBlockedError, *ferrors.InvalidArgumentError, *ferrors.TimeoutError, *ferrors.InternalError:
		return err
	default:
		return ferrors.Wrap(err, "transport operation failed")
	}
}
