package workflowledger_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/workflowledger"
)

func TestSlugify(t *testing.T) {
	require.Equal(t, "release-train-v2", workflowledger.Slugify("Release Train!! v2"))
	require.Equal(t, "demo", workflowledger.Slugify("  Demo  "))
}

func TestRecordAppendsMarkdownEntry(t *testing.T) {
	repoRoot := t.TempDir()
	w := workflowledger.New(repoRoot)

	start := time.Now().UTC()
	finish := start.Add(500 * time.Millisecond)
	run := &model.WorkflowRun{
		ID:           "run-1",
		WorkflowName: "Release Train",
		Steps: []*model.WorkflowStepRecord{
			{StepID: "build", Type: "bash", Status: model.StepSuccess, StartedAt: &start, FinishedAt: &finish},
			{StepID: "deploy", Type: "bash", Status: model.StepFailed, Error: "exit 1", StartedAt: &start, FinishedAt: &finish},
		},
	}

	require.NoError(t, w.Record(run))

	path := filepath.Join(repoRoot, ".forge", "ledgers", "workflow-release-train.md")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "run_id: run-1")
	require.Contains(t, content, "step_count: 2")
	require.Contains(t, content, "build [bash] status=success duration_ms=500")
	require.Contains(t, content, "error=exit 1")

	require.NoError(t, w.Record(run))
	data2, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data2), len(data))
}
