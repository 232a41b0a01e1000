// Package redact detects sensitive material in strings and JSON-like trees
// and rewrites it to "[REDACTED]". It is infallible: it never returns an
// error and never widens information.
//
// Grounded on the teacher's internal/tracing/redact package, narrowed to the
// exact marker/key sets spec.md §4.1 calls out instead of the teacher's
// broader pattern library (PII patterns like email/SSN/credit-card are out
// of scope here — the core only needs to keep credentials out of the
// ledger).
package redact

import (
	"encoding/json"
	"strings"
)

// Redacted is the literal replacement value for anything that matches.
const Redacted = "[REDACTED]"

// valueMarkers are case-insensitive substrings that, if present anywhere in
// a string, cause the whole string to be replaced.
var valueMarkers = []string{
	"bearer ",
	"token=",
	"token:",
	"secret=",
	"password=",
	"api_key=",
	"apikey=",
	"authorization:",
	"authorization=",
	"xoxb-",
	"xoxp-",
	"ghp_",
	"gho_",
	"ghu_",
	"sk-",
	"-----begin",
}

// sensitiveKeys are case-insensitive object-key matches (exact match of the
// lower-cased key, not substring) that cause the value to be redacted
// regardless of its type.
var sensitiveKeys = map[string]bool{
	"token":         true,
	"secret":        true,
	"password":      true,
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"cookie":        true,
	"session":       true,
	"private_key":   true,
}

// Text redacts s if any value marker occurs (case-insensitively); otherwise
// returns s unchanged.
func Text(s string) string {
	lower := strings.ToLower(s)
	for _, marker := range valueMarkers {
		if strings.Contains(lower, marker) {
			return Redacted
		}
	}
	return s
}

// Tree walks a JSON-like value (produced by encoding/json.Unmarshal into
// interface{}) and redacts sensitive object values and marker-bearing
// strings. Tree is idempotent: Tree(Tree(v)) == Tree(v).
func Tree(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if sensitiveKeys[strings.ToLower(k)] {
				out[k] = Redacted
				continue
			}
			out[k] = Tree(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = Tree(val)
		}
		return out
	case string:
		return Text(t)
	default:
		return v
	}
}

// Detail redacts a raw detail string. If raw parses as JSON it is walked
// structurally with Tree and re-serialized; otherwise it is passed through
// Text. Used by the event ledger (C5) before persisting AgentEvent.detail.
func Detail(raw string) string {
	if raw == "" {
		return raw
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Text(raw)
	}
	redacted := Tree(parsed)
	out, err := json.Marshal(redacted)
	if err != nil {
		return Text(raw)
	}
	return string(out)
}
