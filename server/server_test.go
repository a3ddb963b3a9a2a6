package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distcompute/treebcast/block"
)

func startTestServer(t *testing.T, blocks []block.Block) *Server {
	s := NewForBlocks(blocks, false)
	require.NoError(t, s.Listen(""))
	go s.Serve()
	return s
}

func TestServeAnswersBlockInOrder(t *testing.T) {
	blocks := []block.Block{
		{Index: 0, Bytes: []byte("aaa")},
		{Index: 1, Bytes: []byte("bbb")},
	}
	s := startTestServer(t, blocks)
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer conn.Close()

	b0, err := RequestBlock(conn, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, b0.Index)
	assert.Equal(t, []byte("aaa"), b0.Bytes)

	b1, err := RequestBlock(conn, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, b1.Index)
	assert.Equal(t, []byte("bbb"), b1.Bytes)
}

func TestServeBlocksUntilBlockAvailable(t *testing.T) {
	s := New(false)
	require.NoError(t, s.Listen(""))
	go s.Serve()
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer conn.Close()

	done := make(chan block.Block, 1)
	go func() {
		b, err := RequestBlock(conn, 0)
		if err == nil {
			done <- b
		}
	}()

	select {
	case <-done:
		t.Fatal("request resolved before the block was added")
	case <-time.After(50 * time.Millisecond):
	}

	s.AddBlock(block.Block{Index: 0, Bytes: []byte("late")})

	select {
	case b := <-done:
		assert.Equal(t, []byte("late"), b.Bytes)
	case <-time.After(time.Second):
		t.Fatal("request never resolved after block arrived")
	}
}

func TestSendStopShutsDownServer(t *testing.T) {
	blocks := []block.Block{{Index: 0, Bytes: []byte("x")}}
	s := startTestServer(t, blocks)

	require.NoError(t, SendStop(s.Addr()))

	time.Sleep(50 * time.Millisecond)
	_, err := net.DialTimeout("tcp", s.Addr(), 100*time.Millisecond)
	assert.Error(t, err)
}
