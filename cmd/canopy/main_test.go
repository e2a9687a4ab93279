package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "canopy version")
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", "../../testdata/greet.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid: 1 trees")

	_, err = run(t, "validate", "../../testdata/missing.yaml")
	assert.Error(t, err)
}

func TestSession(t *testing.T) {
	out, err := run(t, "session", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "No stored sessions")

	_, err = run(t, "session", "inspect", "1:1")
	assert.ErrorContains(t, err, "session not found")

	_, err = run(t, "session", "rm", "not-an-id")
	assert.Error(t, err)
}

func TestGraph(t *testing.T) {
	out, err := run(t, "graph", "--trees", "../../testdata/greet.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, `greet(("greet"))`)
	assert.Contains(t, out, `greet -- "yes" --> greet__yes`)
}
