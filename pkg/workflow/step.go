// Package workflow implements C11, the workflow engine: a declaration-order
// DAG executor with bounded parallelism, template bindings over prior step
// outputs, pre/post hooks, and bash/human/logic step bodies (§4.8), grounded on
// the teacher's pkg/workflow executor.go, which runs the identical
// ready-set/skip-cascade scheduling loop over its own step graph.
package workflow

// StepType is the declared kind of a workflow step (§4.8.2).
type StepType string

const (
	StepTypeBash     StepType = "bash"
	StepTypeHuman    StepType = "human"
	StepTypeAgent    StepType = "agent"
	StepTypeLoop     StepType = "loop"
	StepTypeJob      StepType = "job"
	StepTypeWorkflow StepType = "workflow"
	StepTypeLogic    StepType = "logic"
)

// OutputBinding is a single declared `(key, template-expr)` output (§4.8.2
// step 5).
type OutputBinding struct {
	Key        string `yaml:"key"`
	Expression string `yaml:"expression"`
}

// StepDef is the static declaration of one workflow step.
type StepDef struct {
	ID        string   `yaml:"id"`
	Type      StepType `yaml:"type"`
	DependsOn []string `yaml:"depends_on,omitempty"`

	// Inputs are raw template strings resolved against prior step outputs
	// and the run's declared inputs (§4.8.2 step 2).
	Inputs map[string]string `yaml:"inputs,omitempty"`

	// Cmd is the bash command template (StepTypeBash only).
	Cmd string `yaml:"cmd,omitempty"`
	// Workdir is resolved against the repo root if relative, else used
	// verbatim (StepTypeBash only).
	Workdir string `yaml:"workdir,omitempty"`

	// Timeout is the human step's advisory timeout, e.g. "24h" or a bare
	// integer (seconds). Empty defaults to 24h (StepTypeHuman only).
	Timeout string `yaml:"timeout,omitempty"`

	// Condition is the boolean expr-lang expression a logic step
	// evaluates (StepTypeLogic only).
	Condition string `yaml:"condition,omitempty"`

	Outputs []OutputBinding `yaml:"outputs,omitempty"`

	PreHooks  []string `yaml:"pre_hooks,omitempty"`
	PostHooks []string `yaml:"post_hooks,omitempty"`
}

// Definition is a declaration-order workflow: a name, a default
// parallelism, workflow-level hooks, and its steps.
type Definition struct {
	Name        string    `yaml:"name"`
	Source      string    `yaml:"-"`
	Parallelism int       `yaml:"parallelism,omitempty"` // 0 means "unset", falls through §4.8.1's resolution chain
	Steps       []StepDef `yaml:"steps"`
	PreHooks    []string  `yaml:"pre_hooks,omitempty"`
	PostHooks   []string  `yaml:"post_hooks,omitempty"`
}

func (d *Definition) stepIDs() []string {
	ids := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		ids[i] = s.ID
	}
	return ids
}

func (d *Definition) stepTypes() map[string]string {
	types := make(map[string]string, len(d.Steps))
	for _, s := range d.Steps {
		types[s.ID] = string(s.Type)
	}
	return types
}

func (d *Definition) stepByID(id string) *StepDef {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}
