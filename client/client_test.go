package client

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distcompute/treebcast/block"
	"github.com/distcompute/treebcast/errs"
	"github.com/distcompute/treebcast/server"
)

func TestPullReceivesAllBlocksInOrder(t *testing.T) {
	blocks := []block.Block{
		{Index: 0, Bytes: []byte("a")},
		{Index: 1, Bytes: []byte("b")},
		{Index: 2, Bytes: []byte("c")},
	}
	s := server.NewForBlocks(blocks, false)
	require.NoError(t, s.Listen(""))
	go s.Serve()
	defer s.Stop()

	got, err := Pull(s.Addr(), len(blocks))
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, b := range got {
		assert.Equal(t, i, b.Index)
	}
}

func TestPullFailsOnUnreachableAddr(t *testing.T) {
	_, err := Pull("127.0.0.1:1", 1)
	assert.True(t, errors.Is(err, errs.ErrTransferFailed))
}

func TestPullFailsWhenBlockNeverArrives(t *testing.T) {
	old := RequestTimeout
	RequestTimeout = 100 * time.Millisecond
	defer func() { RequestTimeout = old }()

	s := server.New(false)
	require.NoError(t, s.Listen(""))
	go s.Serve()
	defer s.Stop()

	_, err := Pull(s.Addr(), 1)
	assert.Error(t, err)
}
