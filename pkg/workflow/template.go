package workflow

import (
	"fmt"
	"strings"
)

// renderTemplate resolves `{{ token }}` expressions against the outputs
// already persisted for prior steps and the step's own declared inputs
// (§4.8.4). Rendering is not recursive: substituted values are never
// re-scanned. allowInputs gates `inputs.*` tokens, which are only valid
// while rendering a step body, never inside a hook command.
//
// A hand-rolled scanner (rather than text/template) is used deliberately:
// the spec demands exact failure messages for missing references and a
// non-recursive, single-pass substitution, neither of which text/template
// gives you without fighting its own escaping and missingkey semantics.
func renderTemplate(s string, steps map[string]map[string]string, inputs map[string]string, allowInputs bool) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(s) {
		open := strings.Index(s[i:], "{{")
		if open == -1 {
			out.WriteString(s[i:])
			break
		}
		open += i
		out.WriteString(s[i:open])

		close := strings.Index(s[open:], "}}")
		if close == -1 {
			return "", fmt.Errorf("unclosed template expression starting at %q", truncateForError(s[open:]))
		}
		close += open

		token := strings.TrimSpace(s[open+2 : close])
		if token == "" {
			return "", fmt.Errorf("empty template expression")
		}

		value, err := resolveToken(token, steps, inputs, allowInputs)
		if err != nil {
			return "", err
		}
		out.WriteString(value)
		i = close + 2
	}
	return out.String(), nil
}

func resolveToken(token string, steps map[string]map[string]string, inputs map[string]string, allowInputs bool) (string, error) {
	parts := strings.Split(token, ".")

	switch {
	case len(parts) == 3 && parts[0] == "steps":
		stepID, field := parts[1], parts[2]
		out, ok := steps[stepID]
		if !ok {
			return "", fmt.Errorf("missing template step output: steps.%s.%s", stepID, field)
		}
		value, ok := out[field]
		if !ok {
			return "", fmt.Errorf("missing template step output: steps.%s.%s", stepID, field)
		}
		return value, nil

	case len(parts) == 2 && parts[0] == "inputs":
		if !allowInputs {
			return "", fmt.Errorf("template token %q is only usable within step body rendering", token)
		}
		name := parts[1]
		value, ok := inputs[name]
		if !ok {
			return "", fmt.Errorf("missing template input: inputs.%s", name)
		}
		return value, nil

	default:
		return "", fmt.Errorf("unsupported template token: %s", token)
	}
}

func truncateForError(s string) string {
	const max = 40
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// sanitizeEnvKey implements §4.8.2's FORGE_INPUT_<SANITIZED_KEY> rule:
// upper-case ASCII alphanumerics, all else becomes '_', trimmed of leading
// and trailing '_', empty result normalized to "VALUE".
func sanitizeEnvKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	trimmed := strings.Trim(b.String(), "_")
	if trimmed == "" {
		return "VALUE"
	}
	return trimmed
}
