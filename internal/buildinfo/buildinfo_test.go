package buildinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoAndString(t *testing.T) {
	oldV, oldC, oldB := Version, Commit, BuiltAt
	t.Cleanup(func() { Version, Commit, BuiltAt = oldV, oldC, oldB })

	Version, Commit, BuiltAt = "v1.0.0", "abc123", "2026-01-02"
	info := Info()
	assert.Equal(t, "v1.0.0", info["version"])
	assert.Equal(t, "abc123", info["commit"])
	assert.Equal(t, runtime.Version(), info["goVersion"])
	assert.Equal(t, "fleetroute v1.0.0 (abc123) built 2026-01-02 "+runtime.Version(), String())

	Commit, BuiltAt = "", ""
	assert.Equal(t, "fleetroute v1.0.0 "+runtime.Version(), String())
}
