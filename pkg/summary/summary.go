// Package summary implements C10, the summary generator: derives a
// concise status, latest task outcome, unresolved blockers, and a
// transcript excerpt from an agent's transcript and recent event stream
// (§4.6), grounded on the teacher's internal/summarize package, which
// performs the same newest-first scan over a session's scrollback and
// event log to produce a human-facing status line.
package summary

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/ledger"
	"github.com/tombee/forge/pkg/model"
)

// ConciseStatus is the coarse health classification (§4.6).
type ConciseStatus string

const (
	StatusBlocked        ConciseStatus = "blocked"
	StatusNeedsAttention ConciseStatus = "needs_attention"
	StatusIdle           ConciseStatus = "idle"
	StatusRunning        ConciseStatus = "running"
	StatusActive         ConciseStatus = "active"
	StatusUnknown        ConciseStatus = "unknown"
)

const maxLineLen = 220
const maxBlockers = 6
const maxExcerptLines = 8
const transcriptWindow = 160

var blockerKeywords = []string{
	"blocked", "blocker", "waiting on", "waiting for", "cannot", "can't", "failed", "error",
}

var outcomeKeywords = []string{
	"done", "complete", "completed", "shipped", "fixed", "passed", "failed", "error",
}

// Snapshot is the full summary produced for an agent (§4.6 and §3).
type Snapshot struct {
	AgentID                string        `json:"agent_id"`
	ConciseStatus          ConciseStatus `json:"concise_status"`
	LatestTaskOutcome      string        `json:"latest_task_outcome"`
	UnresolvedBlockers     []string      `json:"unresolved_blockers"`
	TranscriptExcerpt      []string      `json:"transcript_excerpt"`
	TranscriptCapturedAt   *string       `json:"transcript_captured_at,omitempty"`
	RecentEventsConsidered int           `json:"recent_events_considered"`
	GeneratedAt            string        `json:"generated_at"`
}

// Generator is the C10 summary generator.
type Generator struct {
	clock  clock.Clock
	ledger *ledger.Ledger
}

// New constructs a Generator. ledger may be nil if Persist is never called.
func New(c clock.Clock, l *ledger.Ledger) *Generator {
	return &Generator{clock: c, ledger: l}
}

// Generate computes a Snapshot from a transcript (may be nil) and the
// agent's recent event stream, newest-first.
func (g *Generator) Generate(agentID string, transcript *model.Transcript, events []*model.AgentEvent) *Snapshot {
	var transcriptLines []string
	if transcript != nil {
		transcriptLines = strings.Split(transcript.Content, "\n")
	}

	s := &Snapshot{
		AgentID:                agentID,
		RecentEventsConsidered: len(events),
		GeneratedAt:            clock.RFC3339(g.clock.Now()),
	}
	if transcript != nil {
		captured := clock.RFC3339(transcript.CapturedAt)
		s.TranscriptCapturedAt = &captured
	}

	s.UnresolvedBlockers = findBlockers(transcriptLines, events)
	s.LatestTaskOutcome = latestTaskOutcome(events, transcriptLines)
	s.ConciseStatus = conciseStatus(s.UnresolvedBlockers, s.LatestTaskOutcome, events)
	s.TranscriptExcerpt = transcriptExcerpt(transcriptLines)
	return s
}

// Persist appends a summary_snapshot event whose outcome is the concise
// status and whose detail is the full snapshot, passed through redaction by
// the underlying store (§4.6's "Persisting a summary").
func (g *Generator) Persist(ctx context.Context, s *Snapshot) error {
	_, err := g.ledger.Append(ctx, s.AgentID, "summary_snapshot", string(s.ConciseStatus), s)
	return err
}

func conciseStatus(blockers []string, latestOutcome string, events []*model.AgentEvent) ConciseStatus {
	if len(blockers) > 0 || containsAny(strings.ToLower(latestOutcome), blockerKeywords) {
		return StatusBlocked
	}

	for _, e := range events {
		if e.Kind == "summary_snapshot" {
			continue
		}
		outcome := strings.ToLower(e.Outcome)
		switch {
		case strings.Contains(outcome, "error") || strings.Contains(outcome, "fail"):
			return StatusNeedsAttention
		case e.Kind == "wait_state" && strings.Contains(outcome, "success"):
			return StatusIdle
		case e.Kind == "spawn" && strings.Contains(outcome, "success"):
			return StatusRunning
		default:
			return StatusActive
		}
	}
	return StatusUnknown
}

func latestTaskOutcome(events []*model.AgentEvent, transcriptLines []string) string {
	for _, e := range events {
		if e.Kind == "summary_snapshot" {
			continue
		}
		return truncate(e.Kind+": "+e.Outcome+" :: "+e.Detail, maxLineLen)
	}

	for i := len(transcriptLines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(transcriptLines[i])
		if line == "" {
			continue
		}
		if containsAny(strings.ToLower(line), outcomeKeywords) {
			return truncate(line, maxLineLen)
		}
	}

	for i := len(transcriptLines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(transcriptLines[i])
		if line != "" {
			return truncate(line, maxLineLen)
		}
	}

	return "unknown"
}

func findBlockers(transcriptLines []string, events []*model.AgentEvent) []string {
	seen := map[string]bool{}
	var out []string

	add := func(line string) bool {
		line = strings.TrimSpace(line)
		if line == "" || !containsAny(strings.ToLower(line), blockerKeywords) {
			return false
		}
		folded := strings.ToLower(line)
		if seen[folded] {
			return false
		}
		seen[folded] = true
		out = append(out, truncate(line, maxLineLen))
		return len(out) >= maxBlockers
	}

	for i := len(transcriptLines) - 1; i >= 0; i-- {
		if add(transcriptLines[i]) {
			return out
		}
	}
	for _, e := range events {
		if add(e.Kind + ": " + e.Outcome) {
			return out
		}
		if add(e.Detail) {
			return out
		}
	}
	return out
}

func transcriptExcerpt(lines []string) []string {
	start := 0
	if len(lines) > transcriptWindow {
		start = len(lines) - transcriptWindow
	}
	window := lines[start:]

	var out []string
	for _, line := range window {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		out = append(out, truncate(trimmed, maxLineLen))
	}
	if len(out) > maxExcerptLines {
		out = out[len(out)-maxExcerptLines:]
	}
	return out
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// MarshalDetail is a convenience used by callers that need the snapshot as
// a redactable JSON string outside of Persist (e.g. the revive preamble).
func MarshalDetail(s *Snapshot) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
