package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tombee/forge/pkg/ferrors"
)

// ParseDefinition parses a workflow definition from YAML bytes, grounded on
// the teacher's pkg/workflow.ParseDefinition: unmarshal then validate, so
// a malformed or incomplete file is rejected before a run is ever created.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing workflow definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDefinitionFile reads and parses a workflow definition file, stamping
// Source with the originating path.
func LoadDefinitionFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow definition %s: %w", path, err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, err
	}
	def.Source = path
	return def, nil
}

// Validate checks the declaration invariants the engine assumes hold before
// a run starts: a name, at least one step, unique step ids, and every
// depends_on referencing a declared step.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return &ferrors.InvalidArgumentError{Field: "name", Message: "workflow definition requires a name"}
	}
	if len(d.Steps) == 0 {
		return &ferrors.InvalidArgumentError{Field: "steps", Message: "workflow definition requires at least one step"}
	}
	seen := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.ID == "" {
			return &ferrors.InvalidArgumentError{Field: "steps[].id", Message: "step id must not be empty"}
		}
		if seen[s.ID] {
			return &ferrors.InvalidArgumentError{Field: "steps[].id", Message: "duplicate step id: " + s.ID}
		}
		seen[s.ID] = true
	}
	for _, s := range d.Steps {
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return &ferrors.InvalidArgumentError{Field: "steps[].depends_on", Message: fmt.Sprintf("step %q depends on undeclared step %q", s.ID, dep)}
			}
		}
	}
	return nil
}

// Registry is an in-memory Definitions implementation keyed by workflow
// name, satisfying the approval package's Definitions interface so the CLI
// can resolve a run's originating declaration to complete or resume it.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: map[string]Definition{}}
}

// Register stores def under its Name, overwriting any prior definition of
// the same name.
func (r *Registry) Register(def Definition) {
	r.defs[def.Name] = def
}

// Lookup implements approval.Definitions.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}
