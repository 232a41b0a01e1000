// Package config resolves the small set of environment-driven knobs the
// core consults directly: the persistent-store path (§6) and the workflow
// scheduler's default parallelism (§4.8.1). Everything else (CLI flags,
// profile/prompt registries) belongs to an external collaborator.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DatabasePath resolves the persistent-store location per §6:
// FORGE_DATABASE_PATH, else FORGE_DB_PATH, else a platform cache path.
func DatabasePath() string {
	if p := os.Getenv("FORGE_DATABASE_PATH"); p != "" {
		return p
	}
	if p := os.Getenv("FORGE_DB_PATH"); p != "" {
		return p
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "forge", "forge.db")
}

// LedgerDir resolves the workflow ledger directory for C14: <repo>/.forge/ledgers.
func LedgerDir(repoRoot string) string {
	return filepath.Join(repoRoot, ".forge", "ledgers")
}

// SchedulerConfig is the optional on-disk config file consulted as the
// third tier of the P resolution order in §4.8.1, mirroring the teacher's
// YAML config file format (internal/config).
type SchedulerConfig struct {
	Scheduler struct {
		WorkflowMaxParallel int `yaml:"workflow_max_parallel"`
	} `yaml:"scheduler"`
}

// DefaultWorkflowMaxParallel is the fallback used when no field, env var,
// or config file sets P.
const DefaultWorkflowMaxParallel = 4

// ResolveWorkflowMaxParallel implements the §4.8.1 resolution order:
// workflow field (fieldValue, 0 if unset) -> FORGE_WORKFLOW_MAX_PARALLEL ->
// config file's scheduler.workflow_max_parallel -> DefaultWorkflowMaxParallel.
// Negative or zero resolved values are rejected by the caller (see workflow
// package); this function only implements the precedence, not validation.
func ResolveWorkflowMaxParallel(fieldValue int, configPath string) (int, error) {
	if fieldValue != 0 {
		return fieldValue, nil
	}
	if raw := os.Getenv("FORGE_WORKFLOW_MAX_PARALLEL"); raw != "" {
		var n int
		if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
			return 0, fmt.Errorf("parsing FORGE_WORKFLOW_MAX_PARALLEL: %w", err)
		}
		return n, nil
	}
	if configPath != "" {
		if n, ok, err := readConfigParallel(configPath); err != nil {
			return 0, err
		} else if ok {
			return n, nil
		}
	}
	return DefaultWorkflowMaxParallel, nil
}

func readConfigParallel(path string) (int, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("reading scheduler config: %w", err)
	}
	var cfg SchedulerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return 0, false, fmt.Errorf("parsing scheduler config: %w", err)
	}
	if cfg.Scheduler.WorkflowMaxParallel == 0 {
		return 0, false, nil
	}
	return cfg.Scheduler.WorkflowMaxParallel, true, nil
}
