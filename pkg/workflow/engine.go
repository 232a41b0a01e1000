package workflow

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/config"
	"github.com/tombee/forge/pkg/ferrors"
	"github.com/tombee/forge/pkg/ledger"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/store"
	"github.com/tombee/forge/pkg/workflow/expression"
)

// LedgerWriter is the C14 collaborator notified of terminal run status
// transitions. Declared here (rather than importing pkg/workflowledger
// directly) so the engine stays agnostic of the Markdown ledger's on-disk
// format.
type LedgerWriter interface {
	Record(run *model.WorkflowRun) error
}

// Engine is the C11 workflow engine.
type Engine struct {
	store        store.WorkflowRunStore
	clock        clock.Clock
	ledger       *ledger.Ledger
	evaluator    *expression.Evaluator
	repoRoot     string
	configPath   string
	ledgerWriter LedgerWriter
}

// New constructs an Engine. repoRoot anchors relative step workdirs;
// configPath is the optional scheduler config file consulted by §4.8.1.
func New(s store.WorkflowRunStore, c clock.Clock, l *ledger.Ledger, repoRoot, configPath string) *Engine {
	return &Engine{store: s, clock: c, ledger: l, evaluator: expression.New(), repoRoot: repoRoot, configPath: configPath}
}

// SetLedgerWriter wires the C14 workflow ledger writer invoked on terminal
// run status transitions.
func (e *Engine) SetLedgerWriter(w LedgerWriter) { e.ledgerWriter = w }

// Start creates a run for def and drives it to completion or to its first
// pause (a waiting_approval step), per §4.8.
func (e *Engine) Start(ctx context.Context, def Definition, inputs map[string]string) (*model.WorkflowRun, error) {
	p, err := config.ResolveWorkflowMaxParallel(def.Parallelism, e.configPath)
	if err != nil {
		return nil, err
	}
	if p <= 0 {
		return nil, &ferrors.InvalidArgumentError{Field: "parallelism", Message: fmt.Sprintf("resolved workflow parallelism must be positive, got %d", p)}
	}

	run, err := e.store.Create(ctx, def.Name, def.Source, def.stepIDs(), def.stepTypes())
	if err != nil {
		return nil, err
	}

	firstStepID := ""
	if len(def.Steps) > 0 {
		firstStepID = def.Steps[0].ID
	}
	if len(def.PreHooks) > 0 && firstStepID != "" {
		lines, hookErr := runHooks(def.PreHooks, e.repoRoot)
		for _, line := range lines {
			e.store.AppendStepLog(ctx, run.ID, firstStepID, line)
		}
		if hookErr != nil {
			e.store.UpdateRunStatus(ctx, run.ID, model.WorkflowRunFailed)
			failed, err := e.store.Get(ctx, run.ID)
			if err == nil && e.ledgerWriter != nil {
				e.ledgerWriter.Record(failed)
			}
			return failed, err
		}
	}

	if err := e.runDAG(ctx, run.ID, def, inputs, p); err != nil {
		return nil, err
	}

	return e.finalize(ctx, run.ID, def)
}

// CompleteHumanStep finishes a waiting_approval step once C12 has recorded
// an approval decision: runs the step's post hooks, binds its outputs (base
// `{approved: "true"}`), and transitions it to success. Denials are fully
// handled by the store's DecideStepApproval (it sets the step failed
// directly); this is only called for the approved path (§4.9: "for human
// steps the approval transition itself completes them successfully").
func (e *Engine) CompleteHumanStep(ctx context.Context, runID string, sd StepDef) error {
	base := map[string]string{"approved": "true"}

	var postErr error
	if len(sd.PostHooks) > 0 {
		lines, hookErr := runHooks(sd.PostHooks, e.stepWorkdir(sd))
		for _, line := range lines {
			e.store.AppendStepLog(ctx, runID, sd.ID, line)
		}
		postErr = hookErr
	}
	if postErr != nil {
		e.failStep(ctx, runID, sd, fmt.Errorf("post hook error: %s", postErr))
		return nil
	}

	outputs, err := e.bindOutputs(sd, base)
	if err != nil {
		e.failStep(ctx, runID, sd, err)
		return nil
	}
	if err := e.store.UpdateStepOutputs(ctx, runID, sd.ID, outputs); err != nil {
		return err
	}
	return e.store.UpdateStepStatus(ctx, runID, sd.ID, model.StepSuccess)
}

// Resume continues a paused run after an approval decision, executing the
// sub-DAG over steps still pending (§4.9).
func (e *Engine) Resume(ctx context.Context, runID string, def Definition, inputs map[string]string) (*model.WorkflowRun, error) {
	p, err := config.ResolveWorkflowMaxParallel(def.Parallelism, e.configPath)
	if err != nil {
		return nil, err
	}
	if p <= 0 {
		return nil, &ferrors.InvalidArgumentError{Field: "parallelism", Message: fmt.Sprintf("resolved workflow parallelism must be positive, got %d", p)}
	}
	if err := e.runDAG(ctx, runID, def, inputs, p); err != nil {
		return nil, err
	}
	return e.finalize(ctx, runID, def)
}

// finalize computes the run status per §4.8.5 and persists it, writing the
// C14 ledger entry once the status is terminal.
func (e *Engine) finalize(ctx context.Context, runID string, def Definition) (*model.WorkflowRun, error) {
	run, err := e.store.Get(ctx, runID)
	if err != nil {
		return nil, err
	}

	status := computeRunStatus(run)
	if status != run.Status {
		if err := e.store.UpdateRunStatus(ctx, runID, status); err != nil {
			return nil, err
		}
	}

	if status.IsTerminal() && status != model.WorkflowRunFailed {
		if len(def.PostHooks) > 0 {
			firstStepID := ""
			if len(def.Steps) > 0 {
				firstStepID = def.Steps[0].ID
			}
			lines, hookErr := runHooks(def.PostHooks, e.repoRoot)
			for _, line := range lines {
				e.store.AppendStepLog(ctx, runID, firstStepID, line)
			}
			if hookErr != nil {
				e.store.UpdateRunStatus(ctx, runID, model.WorkflowRunFailed)
			}
		}
	}

	final, err := e.store.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if status.IsTerminal() && e.ledgerWriter != nil {
		e.ledgerWriter.Record(final)
	}
	return final, nil
}

// computeRunStatus implements §4.8.5.
func computeRunStatus(run *model.WorkflowRun) model.WorkflowRunStatus {
	anyWaiting := false
	for _, s := range run.Steps {
		if s.Status == model.StepFailed {
			return model.WorkflowRunFailed
		}
		if s.Status == model.StepWaitingApproval {
			anyWaiting = true
		}
	}
	if anyWaiting {
		return model.WorkflowRunRunning
	}
	return model.WorkflowRunSuccess
}

// runDAG drives ready steps to completion with a bounded worker pool of
// size p, skip-cascading steps whose dependency failed/was skipped, and
// stopping when no step is runnable (either everything is terminal, or the
// run is paused on a waiting_approval step) (§4.8.1, §5).
func (e *Engine) runDAG(ctx context.Context, runID string, def Definition, inputs map[string]string, p int) error {
	sem := make(chan struct{}, p)
	var wg sync.WaitGroup
	doneCh := make(chan struct{}, len(def.Steps)+1)
	started := map[string]bool{}
	var startedMu sync.Mutex

	for {
		run, err := e.store.Get(ctx, runID)
		if err != nil {
			return err
		}

		launchedAny := false
		for _, step := range run.Steps {
			if step.Status != model.StepPending {
				continue
			}

			sd := def.stepByID(step.StepID)
			if sd == nil {
				continue
			}

			blocked, ready := dependencyState(run, sd.DependsOn)
			if blocked {
				e.store.UpdateStepStatus(ctx, runID, step.StepID, model.StepSkipped)
				continue
			}
			if !ready {
				continue
			}

			startedMu.Lock()
			if started[step.StepID] {
				startedMu.Unlock()
				continue
			}
			select {
			case sem <- struct{}{}:
				started[step.StepID] = true
				startedMu.Unlock()
			default:
				startedMu.Unlock()
				continue
			}

			launchedAny = true
			wg.Add(1)
			sdCopy := *sd
			go func(stepID string, sd StepDef) {
				defer wg.Done()
				defer func() { <-sem }()
				e.executeStep(ctx, runID, sd, inputs)
				select {
				case doneCh <- struct{}{}:
				default:
				}
			}(step.StepID, sdCopy)
		}

		run2, err := e.store.Get(ctx, runID)
		if err != nil {
			return err
		}
		if allSettled(run2) {
			break
		}
		if !launchedAny && !anyRunning(run2) {
			break // paused on waiting_approval or truly stuck; stop scheduling
		}

		select {
		case <-doneCh:
		case <-time.After(2 * time.Millisecond):
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}
	}

	wg.Wait()
	return nil
}

func dependencyState(run *model.WorkflowRun, deps []string) (blocked, ready bool) {
	ready = true
	for _, dep := range deps {
		depStep := run.StepByID(dep)
		if depStep == nil {
			continue
		}
		if !depStep.Status.IsTerminal() {
			ready = false
			continue
		}
		if depStep.Status != model.StepSuccess {
			blocked = true
		}
	}
	return blocked, ready
}

func allSettled(run *model.WorkflowRun) bool {
	for _, s := range run.Steps {
		if s.Status == model.StepPending || s.Status == model.StepRunning {
			return false
		}
	}
	return true
}

func anyRunning(run *model.WorkflowRun) bool {
	for _, s := range run.Steps {
		if s.Status == model.StepRunning {
			return true
		}
	}
	return false
}

// executeStep implements the single-step lifecycle of §4.8.2.
func (e *Engine) executeStep(ctx context.Context, runID string, sd StepDef, inputs map[string]string) {
	e.store.UpdateStepStatus(ctx, runID, sd.ID, model.StepRunning)

	priorOutputs, err := e.collectOutputs(ctx, runID)
	if err != nil {
		e.failStep(ctx, runID, sd, err)
		return
	}

	resolvedInputs := map[string]string{}
	for key, raw := range sd.Inputs {
		val, err := renderTemplate(raw, priorOutputs, inputs, true)
		if err != nil {
			e.failStep(ctx, runID, sd, err)
			return
		}
		resolvedInputs[key] = val
	}

	if len(sd.PreHooks) > 0 {
		lines, hookErr := runHooks(sd.PreHooks, e.stepWorkdir(sd))
		for _, line := range lines {
			e.store.AppendStepLog(ctx, runID, sd.ID, line)
		}
		if hookErr != nil {
			e.failStep(ctx, runID, sd, hookErr)
			return
		}
	}

	outputs, bodyErr := e.runBody(ctx, runID, sd, priorOutputs, resolvedInputs)

	if sd.Type == StepTypeHuman && bodyErr == nil {
		// Paused at waiting_approval (§4.8.2 step 4): output binding and
		// post hooks resume only once the step is later decided.
		return
	}

	var postErr error
	if len(sd.PostHooks) > 0 {
		lines, hookErr := runHooks(sd.PostHooks, e.stepWorkdir(sd))
		for _, line := range lines {
			e.store.AppendStepLog(ctx, runID, sd.ID, line)
		}
		postErr = hookErr
	}

	switch {
	case bodyErr == nil && postErr == nil:
		finalOutputs, err := e.bindOutputs(sd, outputs)
		if err != nil {
			e.failStep(ctx, runID, sd, err)
			return
		}
		e.store.UpdateStepOutputs(ctx, runID, sd.ID, finalOutputs)
		e.store.UpdateStepStatus(ctx, runID, sd.ID, model.StepSuccess)
	case bodyErr == nil && postErr != nil:
		e.failStep(ctx, runID, sd, fmt.Errorf("post hook error: %s", postErr))
	case bodyErr != nil && postErr == nil:
		e.failStep(ctx, runID, sd, bodyErr)
	default:
		e.failStep(ctx, runID, sd, fmt.Errorf("%s; post hook error: %s", bodyErr, postErr))
	}
}

func (e *Engine) failStep(ctx context.Context, runID string, sd StepDef, err error) {
	e.store.AppendStepLog(ctx, runID, sd.ID, "error: "+err.Error())
	e.store.UpdateStepStatus(ctx, runID, sd.ID, model.StepFailed)
}

// runBody executes the step body by type (§4.8.2 step 4), returning the
// base output map for bash/logic steps ({} for human, which pauses).
func (e *Engine) runBody(ctx context.Context, runID string, sd StepDef, priorOutputs map[string]map[string]string, resolvedInputs map[string]string) (map[string]string, error) {
	switch sd.Type {
	case StepTypeBash:
		return e.runBash(ctx, runID, sd, priorOutputs, resolvedInputs)
	case StepTypeHuman:
		return nil, e.runHuman(ctx, runID, sd)
	case StepTypeLogic:
		return e.runLogic(priorOutputs, resolvedInputs, sd)
	default:
		return nil, fmt.Errorf("step type %q is declared supported by validation but not executed by this engine", sd.Type)
	}
}

func (e *Engine) runBash(ctx context.Context, runID string, sd StepDef, priorOutputs map[string]map[string]string, resolvedInputs map[string]string) (map[string]string, error) {
	cmdText, err := renderTemplate(sd.Cmd, priorOutputs, resolvedInputs, true)
	if err != nil {
		return nil, err
	}

	workdir := e.stepWorkdir(sd)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdText)
	cmd.Dir = workdir
	cmd.Env = os.Environ()
	for key, val := range resolvedInputs {
		cmd.Env = append(cmd.Env, "FORGE_INPUT_"+sanitizeEnvKey(key)+"="+val)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, runErr
		}
	}

	for _, line := range strings.Split(stdout.String(), "\n") {
		if strings.TrimSpace(line) != "" {
			e.store.AppendStepLog(ctx, runID, sd.ID, line)
		}
	}
	for _, line := range strings.Split(stderr.String(), "\n") {
		if strings.TrimSpace(line) != "" {
			e.store.AppendStepLog(ctx, runID, sd.ID, "stderr: "+line)
		}
	}

	outputs := map[string]string{
		"output":    strings.TrimSpace(stdout.String()),
		"stdout":    strings.TrimSpace(stdout.String()),
		"stderr":    strings.TrimSpace(stderr.String()),
		"exit_code": strconv.Itoa(exitCode),
	}
	if exitCode != 0 {
		return outputs, fmt.Errorf("command exited with status %d", exitCode)
	}
	return outputs, nil
}

func (e *Engine) runHuman(ctx context.Context, runID string, sd StepDef) error {
	timeoutAt, err := humanTimeoutAt(e.clock.Now(), sd.Timeout)
	if err != nil {
		return err
	}
	return e.store.MarkStepWaitingApproval(ctx, runID, sd.ID, timeoutAt)
}

func (e *Engine) runLogic(priorOutputs map[string]map[string]string, resolvedInputs map[string]string, sd StepDef) (map[string]string, error) {
	evalCtx := map[string]interface{}{
		"steps":  stepsToInterfaceMap(priorOutputs),
		"inputs": inputsToInterfaceMap(resolvedInputs),
	}
	result, err := e.evaluator.Evaluate(sd.Condition, evalCtx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"result": strconv.FormatBool(result), "exit_code": "0"}, nil
}

// bindOutputs implements §4.8.2 step 5: declared outputs are rendered with
// the step's own base output map visible under steps.<id>.*.
func (e *Engine) bindOutputs(sd StepDef, base map[string]string) (map[string]string, error) {
	outputs := map[string]string{}
	for k, v := range base {
		outputs[k] = v
	}
	selfView := map[string]map[string]string{sd.ID: outputs}
	for _, binding := range sd.Outputs {
		rendered, err := renderTemplate(binding.Expression, selfView, nil, false)
		if err != nil {
			return nil, err
		}
		outputs[binding.Key] = rendered
	}
	return outputs, nil
}

func (e *Engine) stepWorkdir(sd StepDef) string {
	if sd.Workdir == "" {
		return e.repoRoot
	}
	if filepath.IsAbs(sd.Workdir) {
		return sd.Workdir
	}
	return filepath.Join(e.repoRoot, sd.Workdir)
}

func (e *Engine) collectOutputs(ctx context.Context, runID string) (map[string]map[string]string, error) {
	run, err := e.store.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := map[string]map[string]string{}
	for _, s := range run.Steps {
		if s.Outputs != nil {
			out[s.StepID] = s.Outputs
		}
	}
	return out, nil
}

// humanTimeoutAt resolves a human step's timeout per §4.8.2: none/off/0
// disables the timeout, a bare integer is seconds, otherwise a
// <N>{s|m|h|d} suffix; default 24h.
func humanTimeoutAt(now time.Time, raw string) (*int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = "24h"
	}
	switch strings.ToLower(trimmed) {
	case "none", "off", "0":
		return nil, nil
	}

	var d time.Duration
	if n, err := strconv.Atoi(trimmed); err == nil {
		d = time.Duration(n) * time.Second
	} else {
		unit := trimmed[len(trimmed)-1:]
		numPart := trimmed[:len(trimmed)-1]
		n, err := strconv.Atoi(numPart)
		if err != nil {
			return nil, &ferrors.InvalidArgumentError{Field: "timeout", Message: "invalid human step timeout: " + raw}
		}
		switch unit {
		case "s":
			d = time.Duration(n) * time.Second
		case "m":
			d = time.Duration(n) * time.Minute
		case "h":
			d = time.Duration(n) * time.Hour
		case "d":
			d = time.Duration(n) * 24 * time.Hour
		default:
			return nil, &ferrors.InvalidArgumentError{Field: "timeout", Message: "invalid human step timeout: " + raw}
		}
	}

	t := now.Add(d).Unix()
	return &t, nil
}

func stepsToInterfaceMap(steps map[string]map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(steps))
	for id, fields := range steps {
		inner := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			inner[k] = v
		}
		out[id] = inner
	}
	return out
}

func inputsToInterfaceMap(inputs map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	return out
}
