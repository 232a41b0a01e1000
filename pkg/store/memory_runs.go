package store

import (
	"context"
	"time"

	"github.com/tombee/forge/pkg/ferrors"
	"github.com/tombee/forge/pkg/model"
)

type memRuns MemoryStore

func (m *memRuns) Create(_ context.Context, name, source string, stepIDs []string, stepTypes map[string]string) (*model.WorkflowRun, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &model.WorkflowRun{
		ID:             s.clock.NewID(),
		WorkflowName:   name,
		WorkflowSource: source,
		Status:         model.WorkflowRunRunning,
		StartedAt:      s.clock.Now(),
	}
	for _, id := range stepIDs {
		run.Steps = append(run.Steps, &model.WorkflowStepRecord{
			StepID:  id,
			Type:    stepTypes[id],
			Status:  model.StepPending,
			Outputs: map[string]string{},
		})
	}
	s.runs[run.ID] = run
	return cloneRun(run), nil
}

func (m *memRuns) Get(_ context.Context, id string) (*model.WorkflowRun, error) {
	s := (*MemoryStore)(m)
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, &ferrors.NotFoundError{Resource: "workflow_run", ID: id}
	}
	return cloneRun(run), nil
}

func (m *memRuns) UpdateRunStatus(_ context.Context, id string, status model.WorkflowRunStatus) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return &ferrors.NotFoundError{Resource: "workflow_run", ID: id}
	}
	run.Status = status
	if status.IsTerminal() && run.FinishedAt == nil {
		t := s.clock.Now()
		run.FinishedAt = &t
	}
	if !status.IsTerminal() {
		run.FinishedAt = nil
	}
	return nil
}

func (m *memRuns) mustStep(runID, stepID string) (*model.WorkflowRun, *model.WorkflowStepRecord, error) {
	s := (*MemoryStore)(m)
	run, ok := s.runs[runID]
	if !ok {
		return nil, nil, &ferrors.NotFoundError{Resource: "workflow_run", ID: runID}
	}
	step := run.StepByID(stepID)
	if step == nil {
		return nil, nil, &ferrors.NotFoundError{Resource: "workflow_step", ID: stepID}
	}
	return run, step, nil
}

func (m *memRuns) UpdateStepStatus(_ context.Context, runID, stepID string, status model.StepStatus) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, step, err := m.mustStep(runID, stepID)
	if err != nil {
		return err
	}
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
}

func (m *memRuns) UpdateStepOutputs(_ context.Context, runID, stepID string, outputs map[string]string) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, step, err := m.mustStep(runID, stepID)
	if err != nil {
		return err
	}
	if step.Outputs == nil {
		step.Outputs = map[string]string{}
	}
	for k, v := range outputs {
		step.Outputs[k] = v
	}
	return nil
}

func (m *memRuns) MarkStepWaitingApproval(_ context.Context, runID, stepID string, timeoutAt *int64) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, step, err := m.mustStep(runID, stepID)
	if err != nil {
		return err
	}
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
}

func (m *memRuns) DecideStepApproval(_ context.Context, runID, stepID string, approved bool, reason string) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, step, err := m.mustStep(runID, stepID)
	if err != nil {
		return err
	}
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
}

func (m *memRuns) AppendStepLog(_ context.Context, runID, stepID, line string) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, err := m.mustStep(runID, stepID); err != nil {
		return err
	}
	key := runID + "/" + stepID
	s.stepLogs[key] = append(s.stepLogs[key], line)
	return nil
}

func (m *memRuns) ReadStepLog(_ context.Context, runID, stepID string) ([]string, error) {
	s := (*MemoryStore)(m)
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := runID + "/" + stepID
	lines := s.stepLogs[key]
	out := make([]string, len(lines))
	copy(out, lines)
	return out, nil
}

func (m *memRuns) LoadResumeState(ctx context.Context, runID string) (*model.WorkflowRun, error) {
	return m.Get(ctx, runID)
}

func cloneRun(run *model.WorkflowRun) *model.WorkflowRun {
	clone := *run
	clone.Steps = make([]*model.WorkflowStepRecord, len(run.Steps))
	for i, step := range run.Steps {
		s := *step
		if step.Outputs != nil {
			s.Outputs = make(map[string]string, len(step.Outputs))
			for k, v := range step.Outputs {
				s.Outputs[k] = v
			}
		}
		if step.Approval != nil {
			a := *step.Approval
			s.Approval = &a
		}
		clone.Steps[i] = &s
	}
	return &clone
}
