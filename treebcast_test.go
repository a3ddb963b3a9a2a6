package treebcast

import (
	"encoding/gob"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distcompute/treebcast/errs"
	"github.com/distcompute/treebcast/node"
	"github.com/distcompute/treebcast/registry"
	"github.com/distcompute/treebcast/tracker"
)

type payload struct {
	Msg string
	N   int
}

// payload crosses the wire decoded into an interface{} (Value's out param,
// and the block codec's intermediate value before caching), which gob can
// only do for a type it has been told about.
func init() {
	gob.Register(payload{})
}

// sharedCluster wires one tracker plus one producer Runtime and one
// consumer Runtime against it, the minimal topology every scenario below
// needs. Both Runtimes share a registry so the tracker address resolves
// without being passed explicitly, matching how two processes would
// discover it via the environment registry in production.
type sharedCluster struct {
	tr       *tracker.Tracker
	producer *node.Runtime
	consumer *node.Runtime
}

func newSharedCluster(t *testing.T) *sharedCluster {
	tr := tracker.New()
	require.NoError(t, tr.Listen(""))
	go tr.Serve()
	t.Cleanup(tr.Stop)

	reg := registry.NewMemRegistry()
	reg.Set(registry.KeyTreeBroadcastTracker, tr.Addr())

	producer := node.New(node.Config{WorkDir: "/work", CacheMaxBytes: 1024}, reg)
	producer.SetFs(afero.NewMemMapFs())
	consumer := node.New(node.Config{WorkDir: "/work", CacheMaxBytes: 1024}, reg)
	consumer.SetFs(afero.NewMemMapFs())

	return &sharedCluster{tr: tr, producer: producer, consumer: consumer}
}

func TestLocalBroadcastSkipsNetworking(t *testing.T) {
	c := newSharedCluster(t)

	h, err := NewBroadcast(c.producer, payload{Msg: "hi", N: 7}, true)
	require.NoError(t, err)

	var got interface{}
	require.NoError(t, h.Value(c.producer, &got))
	assert.Equal(t, payload{Msg: "hi", N: 7}, got)
}

func TestLocalBroadcastTooLargeForCacheFails(t *testing.T) {
	c := newSharedCluster(t)
	big := make([]byte, 4096)

	_, err := NewBroadcast(c.producer, big, true)
	assert.Error(t, err)
}

func TestConsumerPullsThroughPeerPath(t *testing.T) {
	c := newSharedCluster(t)

	h, err := NewBroadcast(c.producer, payload{Msg: "peer-path", N: 3}, false)
	require.NoError(t, err)

	var got interface{}
	require.NoError(t, h.Value(c.consumer, &got))
	assert.Equal(t, payload{Msg: "peer-path", N: 3}, got)
}

func TestConsumerFallsBackWhenTrackerHasNoEntry(t *testing.T) {
	c := newSharedCluster(t)

	h := Handle{ID: "no-such-broadcast"}
	require.NoError(t, c.consumer.Fallback().Write(h.ID, payload{Msg: "from-disk"}))

	var got interface{}
	require.NoError(t, h.Value(c.consumer, &got))
	assert.Equal(t, payload{Msg: "from-disk"}, got)
}

func TestConsumerSurfacesBroadcastUnavailableWhenBothPathsFail(t *testing.T) {
	c := newSharedCluster(t)

	h := Handle{ID: "nowhere-to-be-found"}
	var got interface{}
	err := h.Value(c.consumer, &got)
	assert.True(t, errors.Is(err, errs.ErrBroadcastUnavailable))
}
