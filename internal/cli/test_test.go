package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

func TestTestCommandMissingArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentDir(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/scenarios"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_PassesAgainstGoldens(t *testing.T) {
	env, code := runJSON[TestResult](t, tempDB(t), "test", harnessScenarios)

	require.Equal(t, ExitSuccess, code, "%+v", env)
	assert.Equal(t, 2, env.Data.Total)
	assert.Equal(t, 2, env.Data.Passed)
	for _, s := range env.Data.Scenarios {
		assert.True(t, s.Pass, "%s: %v", s.Name, s.Errors)
	}
}

func TestTestCommand_Filter(t *testing.T) {
	r := run(t, tempDB(t), "test", harnessScenarios, "--filter", "host_*")

	require.Equal(t, ExitSuccess, r.code, r.stdout)
	assert.Contains(t, r.stdout, "✓ host_accepts")
	assert.NotContains(t, r.stdout, "decline_and_expiry")
	assert.Contains(t, r.stdout, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_NoScenarios(t *testing.T) {
	r := run(t, tempDB(t), "test", t.TempDir())

	require.Equal(t, ExitSuccess, r.code)
	assert.Contains(t, r.stdout, "No scenarios found.")
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	golden := t.TempDir()

	r := run(t, tempDB(t), "test", harnessScenarios, "--golden", golden, "--update")
	require.Equal(t, ExitSuccess, r.code, r.stdout)

	written, err := os.ReadFile(filepath.Join(golden, "host_accepts.golden"))
	require.NoError(t, err)
	checkedIn, err := os.ReadFile("../harness/testdata/golden/host_accepts.golden")
	require.NoError(t, err)
	assert.Equal(t, string(checkedIn), string(written))

	// A stale golden fails the run.
	require.NoError(t, os.WriteFile(filepath.Join(golden, "host_accepts.golden"), []byte("{}\n"), 0o644))
	env, code := runJSON[TestResult](t, tempDB(t), "test", harnessScenarios, "--golden", golden)
	assert.Equal(t, ExitFailure, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeScenario, env.Error.Code)
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	scenario := `name: wrong_expectation
description: expects more proposals than guests
hosts:
  - id: h1
guests:
  - id: g1
flow:
  - op: generate
    expect:
      created: 2
assertions:
  - type: capacity_consistent
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(scenario), 0o644))

	r := run(t, tempDB(t), "test", dir)
	assert.Equal(t, ExitFailure, r.code)
	assert.Contains(t, r.stdout, "Error [E005]")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("name: x\n"), 0o644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	files, err = findScenarioFiles(dir, "a*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml")}, files)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}
