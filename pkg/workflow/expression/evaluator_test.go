package expression_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tombee/forge/pkg/workflow/expression"
)

func TestEvaluateEmptyExpressionDefaultsTrue(t *testing.T) {
	e := expression.New()
	ok, err := e.Evaluate("", nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateStepsAndInputsNamespaces(t *testing.T) {
	e := expression.New()
	ctx := map[string]interface{}{
		"steps":  map[string]interface{}{"fetch": map[string]interface{}{"exit_code": "0"}},
		"inputs": map[string]interface{}{"personas": []string{"security", "perf"}},
	}
	ok, err := e.Evaluate(`steps.fetch.exit_code == "0" && has(inputs.personas, "security")`, ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateNonBooleanResultErrors(t *testing.T) {
	e := expression.New()
	_, err := e.Evaluate(`1 + 1`, map[string]interface{}{})
	require.Error(t, err)
}

func TestEvaluateCachesCompiledProgram(t *testing.T) {
	e := expression.New()
	_, err := e.Evaluate(`length(inputs.items) > 0`, map[string]interface{}{"inputs": map[string]interface{}{"items": []string{"a"}}})
	require.NoError(t, err)
	ok, err := e.Evaluate(`length(inputs.items) > 0`, map[string]interface{}{"inputs": map[string]interface{}{"items": []string{}}})
	require.NoError(t, err)
	require.False(t, ok)
}
