package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetroute/internal/opt"
)

const exampleInstance = `{
  "distance_matrix": [[0,10,15,20],[10,0,35,25],[15,35,0,30],[20,25,30,0]],
  "depot": 0,
  "num_vehicles": 1,
  "vehicle_capacities": [15],
  "demands": [0,5,5,5]
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSolve_PrintsMapping(t *testing.T) {
	path := writeFile(t, "instance.json", exampleInstance)
	out, err := execute(t, "", "solve", "-f", path)
	require.NoError(t, err)

	var got map[string][]int
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string][]int{"driver1": {0, 2, 3, 1, 0}}, got)
}

func TestSolve_Stdin(t *testing.T) {
	out, err := execute(t, exampleInstance, "solve", "-f", "-", "--max-moves", "100")
	require.NoError(t, err)
	assert.Contains(t, out, `"driver1"`)
}

func TestSolve_Verbose(t *testing.T) {
	path := writeFile(t, "instance.json", exampleInstance)
	out, err := execute(t, "", "solve", "-f", path, "--verbose")
	require.NoError(t, err)

	var got solveOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.InDelta(t, 80.0, got.TotalDistance, 1e-9)
	assert.InDelta(t, 15.0, got.RouteLoads["driver1"], 1e-9)
	assert.InDelta(t, 80.0, got.RouteDistances["driver1"], 1e-9)
	assert.NotEmpty(t, got.Metrics.StopReason)
}

func TestSolve_OpenRoutesFlag(t *testing.T) {
	path := writeFile(t, "instance.json", exampleInstance)
	out, err := execute(t, "", "solve", "-f", path, "--return-to-depot=false")
	require.NoError(t, err)

	var got map[string][]int
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	route := got["driver1"]
	require.Len(t, route, 4)
	assert.Equal(t, 0, route[0])
	assert.NotEqual(t, 0, route[len(route)-1])
}

func TestSolve_Infeasible(t *testing.T) {
	path := writeFile(t, "infeasible.json", `{
  "distance_matrix": [[0,1],[1,0]],
  "depot": 0,
  "num_vehicles": 1,
  "vehicle_capacities": [10],
  "demands": [0,50]
}`)
	out, err := execute(t, "", "solve", "-f", path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, opt.ErrInfeasible))
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 2, ee.code)

	var got infeasibleOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "No solution found", got.Error)
	assert.Equal(t, opt.ReasonDemandExceedsCapacity, got.Reason)
	assert.Equal(t, []int{1}, got.Nodes)
}

func TestSolve_InvalidInstance(t *testing.T) {
	path := writeFile(t, "bad.json", `{
  "distance_matrix": [[0,1],[1,0]],
  "depot": 5,
  "num_vehicles": 1,
  "vehicle_capacities": [10],
  "demands": [0,1]
}`)
	_, err := execute(t, "", "solve", "-f", path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, opt.ErrInvalidInstance))
}

func TestSolve_RequiresFile(t *testing.T) {
	_, err := execute(t, "", "solve")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := writeFile(t, "instance.json", exampleInstance)
	out, err := execute(t, "", "validate", "-f", path)
	require.NoError(t, err)
	assert.Equal(t, "ok: 4 nodes, 1 vehicles, demand 15 of capacity 15\n", out)
}

func TestValidate_ConfigMaxNodes(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "optimizer:\n  maxNodes: 3\n")
	path := writeFile(t, "instance.json", exampleInstance)
	_, err := execute(t, "", "--config", cfgPath, "validate", "-f", path)
	require.Error(t, err)
	var ie *opt.InvalidInstanceError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "distance_matrix", ie.Field)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "fleetroute "), out)
}
