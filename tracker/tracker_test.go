package tracker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distcompute/treebcast/errs"
)

func startTestTracker(t *testing.T) *Tracker {
	tr := New()
	require.NoError(t, tr.Listen(""))
	go tr.Serve()
	t.Cleanup(tr.Stop)
	return tr
}

func TestRegisterThenLookupReturnsGuideAddr(t *testing.T) {
	tr := startTestTracker(t)

	require.NoError(t, Register(tr.Addr(), "bid-1", "guide:1000"))

	addr, err := Lookup(tr.Addr(), "bid-1")
	require.NoError(t, err)
	assert.Equal(t, "guide:1000", addr)
}

func TestLookupUnknownIDFails(t *testing.T) {
	tr := startTestTracker(t)

	_, err := Lookup(tr.Addr(), "no-such-broadcast")
	assert.True(t, errors.Is(err, errs.ErrUnknownBroadcast))
}

func TestRegisterReplacesPreviousGuide(t *testing.T) {
	tr := startTestTracker(t)

	require.NoError(t, Register(tr.Addr(), "bid-1", "guide:1000"))
	require.NoError(t, Register(tr.Addr(), "bid-1", "guide:2000"))

	addr, err := Lookup(tr.Addr(), "bid-1")
	require.NoError(t, err)
	assert.Equal(t, "guide:2000", addr)
}

func TestUnregisterRemovesBroadcast(t *testing.T) {
	tr := startTestTracker(t)

	require.NoError(t, Register(tr.Addr(), "bid-1", "guide:1000"))
	require.NoError(t, Unregister(tr.Addr(), "bid-1"))

	_, err := Lookup(tr.Addr(), "bid-1")
	assert.True(t, errors.Is(err, errs.ErrUnknownBroadcast))
}

func TestDirectAPIMatchesWireAPI(t *testing.T) {
	tr := New()
	tr.Register("bid-direct", "guide:3000")

	addr, err := tr.Lookup("bid-direct")
	require.NoError(t, err)
	assert.Equal(t, "guide:3000", addr)

	tr.Unregister("bid-direct")
	_, err = tr.Lookup("bid-direct")
	assert.True(t, errors.Is(err, errs.ErrUnknownBroadcast))
}
