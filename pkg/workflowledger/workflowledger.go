// Package workflowledger implements C14, the workflow ledger writer: on
// every terminal WorkflowRun status transition, it appends a Markdown
// record to a per-workflow ledger file under
// <repo>/.forge/ledgers/workflow-<slug>.md (§4.10): a human-readable run
// summary kept alongside the structured event stream.
package workflowledger

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tombee/forge/pkg/config"
	"github.com/tombee/forge/pkg/model"
)

var slugDisallowed = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives the ledger filename slug per §4.10: lower-case,
// non-alphanumerics replaced with '-', runs collapsed.
func Slugify(name string) string {
	lower := strings.ToLower(name)
	replaced := slugDisallowed.ReplaceAllString(lower, "-")
	return strings.Trim(replaced, "-")
}

// Writer is the C14 workflow ledger writer.
type Writer struct {
	repoRoot string
}

// New constructs a Writer anchored at repoRoot.
func New(repoRoot string) *Writer {
	return &Writer{repoRoot: repoRoot}
}

// Record appends a Markdown entry for run to its per-workflow ledger file.
// Callers invoke this only on a terminal WorkflowRun status transition.
func (w *Writer) Record(run *model.WorkflowRun) error {
	dir := config.LedgerDir(w.repoRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating ledger directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("workflow-%s.md", Slugify(run.WorkflowName)))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening workflow ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(render(run)); err != nil {
		return fmt.Errorf("writing workflow ledger: %w", err)
	}
	return nil
}

func render(run *model.WorkflowRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## run_id=%s workflow=%s\n", run.ID, run.WorkflowName)
	fmt.Fprintf(&b, "- run_id: %s\n", run.ID)
	fmt.Fprintf(&b, "- step_count: %d\n", len(run.Steps))
	for _, step := range run.Steps {
		duration := "n/a"
		if step.StartedAt != nil && step.FinishedAt != nil {
			duration = fmt.Sprintf("%d", step.FinishedAt.Sub(*step.StartedAt).Milliseconds())
		}
		line := fmt.Sprintf("  - %s [%s] status=%s duration_ms=%s", step.StepID, step.Type, step.Status, duration)
		if step.Status == model.StepFailed && step.Error != "" {
			line += fmt.Sprintf(" error=%s", step.Error)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}
