package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elastic-load/internal/loaderrors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "elastic-load version dev\n", out)
}

func TestPresetsCommand(t *testing.T) {
	out, err := execute(t, "presets")
	require.NoError(t, err)
	for _, name := range []string{"demo", "even", "history", "quick", "skewed"} {
		assert.Contains(t, out, name)
	}
}

func TestConfigCommand(t *testing.T) {
	out, err := execute(t, "config", "--preset", "quick", "--records", "123", "--workers", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "name: quick")
	assert.Contains(t, out, "total_records: 123")
	assert.Contains(t, out, "workers: 4")
}

func TestRunCommandInvalidConfig(t *testing.T) {
	_, err := execute(t, "run", "--backend", "mongo")
	require.Error(t, err)
	assert.Equal(t, 2, loaderrors.ExitCode(err))
}

func TestRunCommandMemoryStore(t *testing.T) {
	out, err := execute(t, "run",
		"--preset", "quick",
		"--records", "100",
		"--workers", "4",
		"--rate=false",
		"--delay", "0s",
		"--log-level", "error",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Scenario: quick")
	assert.Contains(t, out, "Records: 100, Workers: 4")
	assert.Contains(t, out, "SCENARIO REPORT")
}
