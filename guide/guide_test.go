package guide

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distcompute/treebcast/block"
)

func startTestGuide(t *testing.T, maxDegree int, onTerminate func()) *Guide {
	g := New("bid-1", "producer:1000", block.VariableInfo{N: 1, B: 10, S: 10}, maxDegree, nil, "", onTerminate)
	require.NoError(t, g.Listen(""))
	go g.Serve()
	return g
}

func TestJoinReturnsProducerWhenNoOtherSources(t *testing.T) {
	g := startTestGuide(t, DefaultMaxDegree, nil)

	reply, err := Join(g.Addr(), "consumer:1")
	require.NoError(t, err)
	assert.Equal(t, "producer:1000", reply.Addr)
	assert.Equal(t, 1, reply.N)
}

func TestJoinNeverExceedsMaxDegree(t *testing.T) {
	g := startTestGuide(t, 2, nil)

	// Fill the producer to its cap with two leechers.
	_, err := Join(g.Addr(), "consumer:1")
	require.NoError(t, err)
	_, err = Join(g.Addr(), "consumer:2")
	require.NoError(t, err)

	// A third request must not be handed the producer again.
	reply, err := Join(g.Addr(), "consumer:3")
	require.NoError(t, err)
	assert.NotEqual(t, "producer:1000", reply.Addr)

	sources, _ := g.Snapshot()
	assert.True(t, sources["producer:1000"].Leechers <= 2)
}

func TestCompletionTerminatesAfterAllButProducerDone(t *testing.T) {
	terminated := make(chan struct{})
	g := startTestGuide(t, DefaultMaxDegree, func() { close(terminated) })

	_, err := Join(g.Addr(), "consumer:1")
	require.NoError(t, err)
	_, err = Join(g.Addr(), "consumer:2")
	require.NoError(t, err)

	require.NoError(t, Complete(g.Addr(), "consumer:1"))
	assert.False(t, g.Stopped())

	require.NoError(t, Complete(g.Addr(), "consumer:2"))

	select {
	case <-terminated:
	case <-time.After(time.Second):
		t.Fatal("guide never terminated")
	}
	assert.True(t, g.Stopped())
}
