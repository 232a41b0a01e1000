// Package revive implements C8, the revive planner: given a request to run
// or send against an agent, decide whether to reuse a live snapshot,
// revive a terminal or missing process, or create one from scratch, then
// carry out the ordered append-kill-spawn-preamble-record procedure
// (§4.4).
package revive

import (
	"context"
	"strings"

	"github.com/tombee/forge/pkg/agentregistry"
	"github.com/tombee/forge/pkg/ferrors"
	"github.com/tombee/forge/pkg/ledger"
	"github.com/tombee/forge/pkg/lifecycle"
	"github.com/tombee/forge/pkg/metrics"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/summary"
	"github.com/tombee/forge/pkg/transport"
)

// Outcome is one of the three decisions §4.4 describes.
type Outcome string

const (
	OutcomeReuse  Outcome = "reuse"
	OutcomeRevive Outcome = "revive"
	OutcomeCreate Outcome = "create"
)

// Decision is the planner's verdict for a single agent id.
type Decision struct {
	Outcome         Outcome
	KillBeforeSpawn bool
	Reason          string // terminal state name, "missing_process", or "" for create/reuse
}

// Decide implements §4.4's three-way branch. snap is nil if no live
// snapshot exists; record is nil if no PersistentAgent is known.
func Decide(agentID string, snap *model.AgentSnapshot, record *model.PersistentAgent, revivePolicy string) (Decision, error) {
	if snap != nil && !snap.State.IsTerminal() {
		return Decision{Outcome: OutcomeReuse}, nil
	}

	if snap != nil && snap.State.IsTerminal() {
		reason := string(snap.State)
		if strings.EqualFold(revivePolicy, "auto") {
			return Decision{Outcome: OutcomeRevive, KillBeforeSpawn: true, Reason: reason}, nil
		}
		return Decision{}, &ferrors.RevivePolicyBlockedError{AgentID: agentID, Reason: reason}
	}

	if record != nil {
		reason := "missing_process"
		if strings.EqualFold(revivePolicy, "auto") {
			return Decision{Outcome: OutcomeRevive, KillBeforeSpawn: false, Reason: reason}, nil
		}
		return Decision{}, &ferrors.RevivePolicyBlockedError{AgentID: agentID, Reason: reason}
	}

	return Decision{Outcome: OutcomeCreate}, nil
}

// Planner is the C8 revive planner. It is wired back into lifecycle.Service
// via SetReviver after construction, since the procedure itself calls the
// service's Kill/Spawn/Send.
type Planner struct {
	service  *lifecycle.Service
	registry *agentregistry.Registry
	ledger   *ledger.Ledger
	metrics  *metrics.Tap
	summary  *summary.Generator
}

// New constructs a Planner.
func New(service *lifecycle.Service, registry *agentregistry.Registry, l *ledger.Ledger, m *metrics.Tap, s *summary.Generator) *Planner {
	return &Planner{service: service, registry: registry, ledger: l, metrics: m, summary: s}
}

// Revive implements lifecycle.Reviver: decide, then carry out the ordered
// revive procedure of §4.4.
func (p *Planner) Revive(ctx context.Context, agentID string, rc lifecycle.ReviveContext) error {
	snap, err := p.service.Get(ctx, agentID)
	if ferrors.IsNotFound(err) {
		snap = nil
	} else if err != nil {
		return err
	}

	record, err := p.registry.Get(ctx, agentID)
	if ferrors.IsNotFound(err) {
		record = nil
	} else if err != nil {
		return err
	}

	decision, err := Decide(agentID, snap, record, rc.RevivePolicy)
	if err != nil {
		return err
	}
	if decision.Outcome == OutcomeReuse {
		return nil
	}

	return p.runProcedure(ctx, agentID, rc, decision)
}

// runProcedure implements the 6-step revive procedure with strict ledger
// ordering: revive_start precedes every side-effecting event, revive_done
// is last (§5's ordering guarantee).
func (p *Planner) runProcedure(ctx context.Context, agentID string, rc lifecycle.ReviveContext, decision Decision) error {
	p.ledger.Append(ctx, agentID, "revive_start", "started", map[string]interface{}{
		"reason":          decision.Reason,
		"policy":          rc.RevivePolicy,
		"approval_policy": rc.ApprovalPolicy,
		"account_id":      rc.AccountID,
		"profile":         rc.Profile,
		"workspace_id":    rc.WorkspaceID,
		"command":         rc.Command,
		"adapter":         rc.Adapter,
		"harness":         rc.Harness,
		"parent_agent_id": rc.ParentAgentID,
	})

	if decision.KillBeforeSpawn {
		if err := p.service.Kill(ctx, transport.KillParams{AgentID: agentID, Force: true}); err != nil {
			p.countRevive(ctx, agentID, "error")
			p.ledger.Append(ctx, agentID, "revive_done", "error", map[string]string{"phase": "kill", "error": err.Error()})
			return err
		}
	}

	env := materializeEnv(rc)
	_, err := p.service.Spawn(ctx, transport.SpawnParams{
		AgentID:     agentID,
		WorkspaceID: rc.WorkspaceID,
		Command:     rc.Command,
		Args:        rc.Args,
		Env:         env,
		Adapter:     rc.Adapter,
	})
	if err != nil {
		p.countRevive(ctx, agentID, "error")
		p.ledger.Append(ctx, agentID, "revive_done", "error", map[string]string{"phase": "spawn", "error": err.Error()})
		return err
	}

	preamble := p.summary.Generate(agentID, nil, nil)
	preambleText, _ := summary.MarshalDetail(preamble)
	if err := p.service.Send(ctx, agentID, "resuming: "+preambleText, true, nil, rc.ApprovalPolicy, true); err != nil {
		p.countRevive(ctx, agentID, "error")
		p.ledger.Append(ctx, agentID, "revive_done", "error", map[string]string{"phase": "preamble", "error": err.Error()})
		return err
	}

	approval := model.ApprovalContext{ApprovalPolicy: rc.ApprovalPolicy, AccountID: rc.AccountID, Profile: rc.Profile}
	if err := p.registry.EnsureExists(ctx, agentID, rc.WorkspaceID, rc.Harness, rc.ParentAgentID, approval); err != nil {
		p.countRevive(ctx, agentID, "error")
		p.ledger.Append(ctx, agentID, "revive_done", "error", map[string]string{"phase": "record", "error": err.Error()})
		return err
	}

	p.countRevive(ctx, agentID, "success")
	p.ledger.Append(ctx, agentID, "revive_done", "success", nil)
	return nil
}

func (p *Planner) countRevive(ctx context.Context, agentID, outcome string) {
	p.ledger.Append(ctx, agentID, "agents_revived", outcome, nil)
	if p.metrics != nil {
		p.metrics.Counter(ctx, agentID, "agents_revived", outcome)
	}
}

// materializeEnv turns the approval context into the environment variables
// spawned processes receive (§6): FORGE_APPROVAL_POLICY always, and
// FORGE_ACCOUNT_ID/FORGE_PROFILE only when non-empty.
func materializeEnv(rc lifecycle.ReviveContext) map[string]string {
	env := map[string]string{}
	for k, v := range rc.Env {
		env[k] = v
	}
	env["FORGE_APPROVAL_POLICY"] = rc.ApprovalPolicy
	if rc.AccountID != "" {
		env["FORGE_ACCOUNT_ID"] = rc.AccountID
	}
	if rc.Profile != "" {
		env["FORGE_PROFILE"] = rc.Profile
	}
	return env
}
