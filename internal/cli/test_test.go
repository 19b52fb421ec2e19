package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: claim_flow
description: create, publish and claim
steps:
  - activity: create
    as: main
    actor: alice
    payload:
      title: Widget
      reward: {currency: USD, amount: 5, scale: 0}
  - activity: publish
    bounty: main
    actor: alice
  - activity: claim
    bounty: main
    actor: bob
    origin: external
assertions:
  - bounty: main
    status: in_progress
`

const failingScenario = `
name: wrong_status
description: asserts a status the bounty never reaches
steps:
  - activity: create
    as: main
    actor: alice
    payload:
      title: Widget
      reward: {currency: USD, amount: 5, scale: 0}
assertions:
  - bounty: main
    status: complete
`

func writeScenario(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestTestCommandMissingArgs(t *testing.T) {
	h := newHarnessCLI(t)
	_, err := h.run("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	h := newHarnessCLI(t)
	_, err := h.run("test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	h := newHarnessCLI(t)
	out, err := h.run("test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	h := newHarnessCLI(t)
	out, err := h.run("test", t.TempDir(), "--format", "json")
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandRunsScenarios(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "claim_flow.yaml", passingScenario)
	writeScenario(t, dir, "wrong_status.yaml", failingScenario)

	h := newHarnessCLI(t)
	out, err := h.run("test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ claim_flow")
	assert.Contains(t, out, "✗ wrong_status")
	assert.Contains(t, out, "status: expected complete, got draft")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")

	out, err = h.run("test", dir, "--filter", "claim_*")
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "claim_flow.yaml", passingScenario)
	h := newHarnessCLI(t)

	_, err := h.run("test", dir, "--update")
	require.NoError(t, err)
	goldenPath := filepath.Join(dir, "golden", "claim_flow.golden")
	require.FileExists(t, goldenPath)

	_, err = h.run("test", dir)
	require.NoError(t, err, "trace matches the golden file just written")

	require.NoError(t, os.WriteFile(goldenPath, []byte("{}\n"), 0644))
	out, err := h.run("test", dir, "--format", "json")
	require.Error(t, err)

	var response struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "error", response.Status)
	require.Len(t, response.Data.Scenarios, 1)
	assert.Contains(t, response.Data.Scenarios[0].Errors[0], "does not match golden file")
}

func TestTestCommandRepositoryScenarios(t *testing.T) {
	h := newHarnessCLI(t)
	out, err := h.run("test", "../../testdata/scenarios", "--golden-dir", "../harness/testdata/golden")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandBrokenScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\n")

	h := newHarnessCLI(t)
	out, err := h.run("test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test1.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test2.yml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "golden"), 0755))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"evergreen-limit.yaml", "evergreen-repair.yaml", "informal.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, name), []byte(""), 0644))
	}

	files, err := findScenarioFiles(tmpDir, "evergreen-*")
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		assert.Contains(t, filepath.Base(f), "evergreen-")
	}

	_, err = findScenarioFiles(tmpDir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}
