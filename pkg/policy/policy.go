// Package policy implements C13, the risky-action policy: resolving the
// effective approval policy for a control action and classifying
// send/interrupt payloads as risky, grounded on the teacher's
// internal/approval package's layered-override resolution (request flag,
// then persisted label, then env var, then default).
package policy

import (
	"os"
	"strings"
)

// EnvApprovalPolicy is the environment variable fallback (§4.7).
const EnvApprovalPolicy = "FORGE_APPROVAL_POLICY"

// DefaultPolicy is used when no explicit, labeled, or env-provided policy
// is available.
const DefaultPolicy = "strict"

var riskySendSubstrings = []string{
	"rm -rf",
	"rm -fr",
	"git push --force",
	"git reset --hard",
	"git clean -fd",
	"drop table",
	"truncate table",
	"mkfs",
	"dd if=",
}

var riskyKeys = map[string]bool{
	"C-c": true,
	"C-z": true,
	"C-d": true,
}

var riskyInterruptStates = map[string]bool{
	"waiting_approval": true,
	"paused":           true,
}

var protectivePolicies = map[string]bool{
	"":        true,
	"strict":  true,
	"default": true,
	"plan":    true,
}

// Resolve computes the effective policy per §4.7's resolution order:
// explicit request flag → persisted record label → FORGE_APPROVAL_POLICY
// → default "strict".
func Resolve(requestPolicy, labelPolicy string) string {
	if requestPolicy != "" {
		return requestPolicy
	}
	if labelPolicy != "" {
		return labelPolicy
	}
	if env := os.Getenv(EnvApprovalPolicy); env != "" {
		return env
	}
	return DefaultPolicy
}

// IsProtective reports whether policy (case-insensitive) enforces risk
// checks rather than allowing all actions through.
func IsProtective(policy string) bool {
	return protectivePolicies[strings.ToLower(policy)]
}

// ClassifySend returns a non-empty reason if text/keys constitute a risky
// send payload (§4.7), or "" if the payload is not risky.
func ClassifySend(text string, keys []string) string {
	lower := strings.ToLower(text)
	for _, marker := range riskySendSubstrings {
		if strings.Contains(lower, marker) {
			return "matched risky pattern: " + marker
		}
	}
	if strings.Contains(lower, "curl ") && (strings.Contains(lower, "| sh") || strings.Contains(lower, "| bash")) {
		return "matched risky pattern: curl piped to a shell"
	}
	for _, k := range keys {
		if riskyKeys[k] {
			return "matched risky key: " + k
		}
	}
	return ""
}

// ClassifyInterrupt returns a non-empty reason if currentState makes an
// interrupt risky (§4.7), or "" otherwise.
func ClassifyInterrupt(currentState string) string {
	if riskyInterruptStates[currentState] {
		return "agent is in " + currentState + "; interrupting may discard pending state"
	}
	return ""
}

// Decision is the outcome of enforcing a policy against a classified
// action.
type Decision struct {
	Blocked     bool
	Reason      string
	Remediation string
}

// Enforce applies §4.7's enforcement rule: if policy is protective and
// allowRisky is false and reason is non-empty, the action is blocked.
func Enforce(policy string, allowRisky bool, reason string) Decision {
	if reason == "" {
		return Decision{}
	}
	if allowRisky {
		return Decision{}
	}
	if !IsProtective(policy) {
		return Decision{}
	}
	return Decision{
		Blocked:     true,
		Reason:      reason,
		Remediation: "retry with --allow-risky, or use a less-restrictive --approval-policy",
	}
}
