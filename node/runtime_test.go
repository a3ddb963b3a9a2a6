package node

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/distcompute/treebcast/registry"
)

func TestResolveWorkDirPrefersExplicitConfig(t *testing.T) {
	r := New(Config{WorkDir: "/explicit"}, nil)
	assert.Equal(t, "/explicit", r.ResolveWorkDir())
}

func TestResolveWorkDirFallsBackToRegistry(t *testing.T) {
	reg := registry.NewMemRegistry()
	reg.Set(registry.KeyWorkDir, "/from-registry")
	r := New(Config{}, reg)
	assert.Equal(t, "/from-registry", r.ResolveWorkDir())
}

func TestResolveTrackerAddrFallsBackToRegistry(t *testing.T) {
	reg := registry.NewMemRegistry()
	reg.Set(registry.KeyTreeBroadcastTracker, "tracker:9000")
	r := New(Config{}, reg)

	addr, err := r.ResolveTrackerAddr()
	assert.NoError(t, err)
	assert.Equal(t, "tracker:9000", addr)
}

func TestResolveTrackerAddrFailsWhenUnconfigured(t *testing.T) {
	r := New(Config{}, nil)
	_, err := r.ResolveTrackerAddr()
	assert.Error(t, err)
}
