package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

type frameTestPayload struct {
	Index int
	Bytes []byte
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := frameTestPayload{Index: 7, Bytes: []byte("hello")}

	assert.NoError(t, WriteFrame(&buf, want))

	var got frameTestPayload
	assert.NoError(t, ReadFrame(&buf, &got))
	assert.Equal(t, want, got)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	// announce a frame far beyond maxFrameBytes without supplying the bytes
	lenBuf[0] = 0xff
	lenBuf[1] = 0xff
	lenBuf[2] = 0xff
	lenBuf[3] = 0xff
	buf.Write(lenBuf[:])

	var got frameTestPayload
	err := ReadFrame(&buf, &got)
	assert.Equal(t, MaxFrameBytesExceeded, err)
}

func TestSentinelsAreDistinct(t *testing.T) {
	assert.NotEqual(t, TxNotStartedRetry, TxOverGoToHDFS)
	assert.NotEqual(t, TxOverGoToHDFS, StopBroadcast)
	assert.NotEqual(t, TxNotStartedRetry, StopBroadcast)
}
