package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tombee/forge/pkg/ferrors"
	"github.com/tombee/forge/pkg/model"
)

type sqliteRuns SQLiteStore

func (r *sqliteRuns) Create(ctx context.Context, name, source string, stepIDs []string, stepTypes map[string]string) (*model.WorkflowRun, error) {
	s := (*SQLiteStore)(r)
	run := &model.WorkflowRun{
		ID:             s.clock.NewID(),
		WorkflowName:   name,
		WorkflowSource: source,
		Status:         model.WorkflowRunRunning,
		StartedAt:      s.clock.Now(),
	}
	for _, id := range stepIDs {
		run.Steps = append(run.Steps, &model.WorkflowStepRecord{
			StepID: id, Type: stepTypes[id], Status: model.StepPending, Outputs: map[string]string{},
		})
	}
	if err := r.save(ctx, run); err != nil {
		return nil, err
	}
	return cloneRun(run), nil
}

func (r *sqliteRuns) save(ctx context.Context, run *model.WorkflowRun) error {
	s := (*SQLiteStore)(r)
	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling workflow run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO workflow_runs (id, document) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document`, run.ID, string(doc))
	if err != nil {
		return fmt.Errorf("saving workflow run: %w", err)
	}
	return nil
}

func (r *sqliteRuns) load(ctx context.Context, id string) (*model.WorkflowRun, error) {
	s := (*SQLiteStore)(r)
	row := s.db.QueryRowContext(ctx, `SELECT document FROM workflow_runs WHERE id = ?`, id)
	var doc string
	if err := row.Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ferrors.NotFoundError{Resource: "workflow_run", ID: id}
		}
		return nil, err
	}
	var run model.WorkflowRun
	if err := json.Unmarshal([]byte(doc), &run); err != nil {
		return nil, fmt.Errorf("unmarshaling workflow run: %w", err)
	}
	return &run, nil
}

func (r *sqliteRuns) Get(ctx context.Context, id string) (*model.WorkflowRun, error) {
	run, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return cloneRun(run), nil
}

func (r *sqliteRuns) UpdateRunStatus(ctx context.Context, id string, status model.WorkflowRunStatus) error {
	s := (*SQLiteStore)(r)
	run, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	run.Status = status
	if status.IsTerminal() && run.FinishedAt == nil {
		t := s.clock.Now()
		run.FinishedAt = &t
	}
	if !status.IsTerminal() {
		run.FinishedAt = nil
	}
	return r.save(ctx, run)
}

func (r *sqliteRuns) withStep(ctx context.Context, runID, stepID string, fn func(run *model.WorkflowRun, step *model.WorkflowStepRecord) error) error {
	run, err := r.load(ctx, runID)
	if err != nil {
		return err
	}
	step := run.StepByID(stepID)
	if step == nil {
		return &ferrors.NotFoundError{Resource: "workflow_step", ID: stepID}
	}
	if err := fn(run, step); err != nil {
		return err
	}
	return r.save(ctx, run)
}

func (r *sqliteRuns) UpdateStepStatus(ctx context.Context, runID, stepID string, status model.StepStatus) error {
	s := (*SQLiteStore)(r)
	return r.withStep(ctx, runID, stepID, func(_ *model.WorkflowRun, step *model.WorkflowStepRecord) error {
		now := s.clock.Now()
		switch status {
		case model.StepRunning:
			step.StartedAt = &now
			step.FinishedAt = nil
		case model.StepSuccess, model.StepFailed, model.StepSkipped, model.StepCanceled:
			if step.StartedAt == nil && status != model.StepSkipped && status != model.StepCanceled {
				step.StartedAt = &now
			}
			step.FinishedAt = &now
		}
		step.Status = status
		return nil
	})
}

func (r *sqliteRuns) UpdateStepOutputs(ctx context.Context, runID, stepID string, outputs map[string]string) error {
	return r.withStep(ctx, runID, stepID, func(_ *model.WorkflowRun, step *model.WorkflowStepRecord) error {
		if step.Outputs == nil {
			step.Outputs = map[string]string{}
		}
		for k, v := range outputs {
			step.Outputs[k] = v
		}
		return nil
	})
}

func (r *sqliteRuns) MarkStepWaitingApproval(ctx context.Context, runID, stepID string, timeoutAt *int64) error {
	s := (*SQLiteStore)(r)
	return r.withStep(ctx, runID, stepID, func(_ *model.WorkflowRun, step *model.WorkflowStepRecord) error {
		now := s.clock.Now()
		if step.StartedAt == nil {
			step.StartedAt = &now
		}
		step.FinishedAt = nil
		step.Status = model.StepWaitingApproval
		approval := &model.StepApproval{State: model.ApprovalPending, RequestedAt: now}
		if timeoutAt != nil {
			t := time.Unix(*timeoutAt, 0).UTC()
			approval.TimeoutAt = &t
		}
		step.Approval = approval
		return nil
	})
}

func (r *sqliteRuns) DecideStepApproval(ctx context.Context, runID, stepID string, approved bool, reason string) error {
	s := (*SQLiteStore)(r)
	return r.withStep(ctx, runID, stepID, func(_ *model.WorkflowRun, step *model.WorkflowStepRecord) error {
		if step.Approval == nil || step.Approval.State != model.ApprovalPending {
			return &ferrors.InvalidArgumentError{Field: "step", Message: "step is not waiting for approval: " + stepID}
		}
		now := s.clock.Now()
		step.Approval.DecidedAt = &now
		step.Approval.Reason = reason
		if approved {
			step.Approval.State = model.ApprovalApproved
		} else {
			step.Approval.State = model.ApprovalDenied
			step.Status = model.StepFailed
			step.FinishedAt = &now
			step.Error = "approval denied: " + reason
		}
		return nil
	})
}

func (r *sqliteRuns) AppendStepLog(ctx context.Context, runID, stepID, line string) error {
	s := (*SQLiteStore)(r)
	if _, err := r.load(ctx, runID); err != nil {
		return err
	}
	var seq int
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM workflow_step_logs WHERE run_id = ? AND step_id = ?`, runID, stepID)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("allocating log sequence: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO workflow_step_logs (run_id, step_id, seq, line) VALUES (?, ?, ?, ?)`, runID, stepID, seq, line)
	if err != nil {
		return fmt.Errorf("appending step log: %w", err)
	}
	return nil
}

func (r *sqliteRuns) ReadStepLog(ctx context.Context, runID, stepID string) ([]string, error) {
	s := (*SQLiteStore)(r)
	rows, err := s.db.QueryContext(ctx, `SELECT line FROM workflow_step_logs WHERE run_id = ? AND step_id = ? ORDER BY seq`, runID, stepID)
	if err != nil {
		return nil, fmt.Errorf("reading step log: %w", err)
	}
	defer rows.Close()
	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *sqliteRuns) LoadResumeState(ctx context.Context, runID string) (*model.WorkflowRun, error) {
	return r.Get(ctx, runID)
}
