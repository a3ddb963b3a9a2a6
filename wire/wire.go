// Package wire implements the length-prefixed request/reply framing shared
// by the tracker, guide, and block server endpoints, plus the sentinel
// values multiplexed onto their reply channels.
//
// Framing is deliberately simple: a 4-byte big-endian length prefix followed
// by a gob-encoded payload. None of the pack's third-party codecs (RLP,
// protobuf, msgpack) were available to ground a replacement here, and the
// payload shapes are plain Go structs with no cross-language requirement, so
// encoding/gob is used directly rather than inventing a bespoke binary
// layout.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// Sentinel values for the block-index and guide-reply channels. Only
// StopBroadcast is sent by any endpoint in this module (guide to block
// server); the guide always replies with a seeder and the tracker reports a
// miss through its reply's Found flag, so TxNotStartedRetry and
// TxOverGoToHDFS are defined but never sent. TxOverGoToHDFS collides with
// the valid block index 0, so it must not appear on the block channel.
const (
	TxNotStartedRetry = -1 // guide/tracker: not yet known, caller should retry or fall back
	TxOverGoToHDFS    = 0  // guide lookup reply: no peer source, fall back
	StopBroadcast     = -2 // guide->server: broadcast finished, server should exit
)

const maxFrameBytes = 64 << 20 // 64MiB; generous upper bound on one block/control frame

// MaxFrameBytesExceeded is returned by ReadFrame when a peer announces a
// frame length beyond the sanity bound.
var MaxFrameBytesExceeded = fmt.Errorf("wire: frame exceeds %d bytes", maxFrameBytes)

// WriteFrame gob-encodes v and writes it to w as a length-prefixed frame.
func WriteFrame(w io.Writer, v interface{}) error {
	buf, err := encode(v)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame from r and gob-decodes it into
// v, which must be a pointer.
func ReadFrame(r io.Reader, v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return MaxFrameBytesExceeded
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	return decode(buf, v)
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(buf []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(buf)).Decode(v)
}
