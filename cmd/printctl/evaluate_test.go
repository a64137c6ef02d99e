package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func runEvaluate(t *testing.T, args ...string) (evaluateResult, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(append([]string{"evaluate"}, args...))
	if err := root.Execute(); err != nil {
		return evaluateResult{}, err
	}
	var res evaluateResult
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &res))
	return res, nil
}

func TestEvaluateAllowsWithinLimits(t *testing.T) {
	res, err := runEvaluate(t, "--copies", "2", "--attempts-today", "1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Empty(t, res.Reason)
}

func TestEvaluateBlocksCopiesOverLimit(t *testing.T) {
	res, err := runEvaluate(t, "--copies", "4", "--max-copies", "3")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "copies_limit", res.Reason)
	assert.True(t, res.EscalationEligible)
	assert.Equal(t, map[string]int{"requested": 4, "max": 3}, res.Details)
}

func TestEvaluateRepeatPrintWarnsOnly(t *testing.T) {
	res, err := runEvaluate(t, "--copies", "3", "--copies-today", "3", "--max-copies", "5", "--attempts-today", "1", "--similarity", "100")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	require.NotNil(t, res.Warning)
	assert.Equal(t, 3, res.Warning.CopiesToday)
}

func TestEvaluateColourOnlyBlockedWhenDisabled(t *testing.T) {
	res, err := runEvaluate(t, "--color")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "colour is allowed unless the policy disables it")

	res, err = runEvaluate(t, "--color", "--allow-color=false")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "color_disabled", res.Reason)
}

func TestEvaluateRejectsUnknownClassification(t *testing.T) {
	_, err := runEvaluate(t, "--classification", "secret")
	assert.Error(t, err)
}
