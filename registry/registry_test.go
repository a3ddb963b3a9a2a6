package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemRegistrySetGet(t *testing.T) {
	r := NewMemRegistry()
	_, ok := r.Get(KeyTreeBroadcastTracker)
	assert.False(t, ok)

	r.Set(KeyTreeBroadcastTracker, "127.0.0.1:9000")
	v, ok := r.Get(KeyTreeBroadcastTracker)
	assert.True(t, ok)
	assert.Equal(t, "127.0.0.1:9000", v)
}
