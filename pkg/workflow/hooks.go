package workflow

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// hookMode is the failure semantics of a parsed hook entry (§4.8.3).
type hookMode string

const (
	hookModeFail hookMode = "fail"
	hookModeWarn hookMode = "warn"
)

// parsedHook is a single `[mode:]bash:<command>` hook entry.
type parsedHook struct {
	Mode    hookMode
	Command string
}

// parseHook parses one hook entry per §4.8.3.
func parseHook(entry string) (parsedHook, error) {
	rest := entry
	mode := hookModeFail

	if strings.HasPrefix(rest, "fail:") {
		mode = hookModeFail
		rest = strings.TrimPrefix(rest, "fail:")
	} else if strings.HasPrefix(rest, "warn:") {
		mode = hookModeWarn
		rest = strings.TrimPrefix(rest, "warn:")
	}

	if !strings.HasPrefix(rest, "bash:") {
		return parsedHook{}, fmt.Errorf("unsupported hook entry: %s", entry)
	}
	command := strings.TrimPrefix(rest, "bash:")
	if strings.TrimSpace(command) == "" {
		return parsedHook{}, fmt.Errorf("empty hook command: %s", entry)
	}
	return parsedHook{Mode: mode, Command: command}, nil
}

// hookOutcome is the result of running a single hook.
type hookOutcome struct {
	LogLines []string
	Failed   bool // only true for fail-mode hooks with a non-zero exit
}

// runHook executes a parsed hook's bash command in workdir, logging a
// "hook ok: <command>" line on success, a "warning: ..." line for a
// warn-mode non-zero exit, or a "hook error: ..." line for a fail-mode one
// (§4.8.3). The hook's own stdout is not logged.
func runHook(entry, workdir string) (hookOutcome, error) {
	parsed, err := parseHook(entry)
	if err != nil {
		return hookOutcome{}, err
	}

	cmd := exec.Command("/bin/sh", "-c", parsed.Command)
	cmd.Dir = workdir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr == nil {
		return hookOutcome{LogLines: []string{"hook ok: " + parsed.Command}}, nil
	}

	message := fmt.Sprintf("hook error: %s: %s", parsed.Command, firstNonEmpty(stderr.String(), runErr.Error()))
	if parsed.Mode == hookModeWarn {
		return hookOutcome{LogLines: []string{"warning: " + message}}, nil
	}
	return hookOutcome{LogLines: []string{message}, Failed: true}, nil
}

// runHooks runs entries in declaration order, stopping at the first
// fail-mode failure (its failure message is returned as err).
func runHooks(entries []string, workdir string) ([]string, error) {
	var lines []string
	for _, entry := range entries {
		outcome, err := runHook(entry, workdir)
		if err != nil {
			return lines, err
		}
		lines = append(lines, outcome.LogLines...)
		if outcome.Failed {
			return lines, fmt.Errorf("%s", strings.TrimPrefix(outcome.LogLines[len(outcome.LogLines)-1], ""))
		}
	}
	return lines, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
