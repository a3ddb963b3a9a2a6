// Package block splits an encoded value into fixed-size blocks for
// peer-to-peer transfer, and reassembles blocks back into a value.
package block

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"

	"github.com/distcompute/treebcast/errs"
	"github.com/golang/snappy"
	"golang.org/x/crypto/blake2b"
)

// DefaultBlockSize is the recommended block size: 4 MiB. Producer and
// consumer need not agree on this ahead of time; consumers discover the
// broadcast's actual (N, B, S) from the guide.
const DefaultBlockSize = 4 * 1024 * 1024

// Block is one fixed-size slice of an encoded value. The final block of a
// broadcast may be shorter than the configured block size.
type Block struct {
	Index int
	Bytes []byte
}

// VariableInfo is the per-broadcast metadata a consumer needs to pull and
// reassemble blocks: total block count, total encoded byte length, and the
// block size used to cut them.
type VariableInfo struct {
	N int   // total_blocks
	B int64 // total_bytes
	S int   // block_size
}

// Codec abstracts the value serialization the outer framework supplies.
// treebcast treats it as external: any type implementing Encode/Decode can
// be broadcast.
type Codec interface {
	Encode(value interface{}) ([]byte, error)
	Decode(data []byte, out interface{}) error
}

// GobCodec is the default Codec, used when the caller does not supply one
// of its own. Values must be gob-registerable (exported fields, concrete
// types, or registered interface implementations).
type GobCodec struct{}

// envelope carries a value through an interface-typed field so gob always
// writes the dynamic type's name alongside its bytes. Encoding value
// directly (gob.Encode(value) where value is a bare interface{} parameter)
// writes only the concrete type's bytes with no interface header, which a
// later Decode into a *interface{} sink then rejects outright ("local
// interface type can only be decoded from remote interface type"). Routing
// through this field's interface type makes every encode produce the header
// Decode's interface{} sink needs.
type envelope struct {
	V interface{}
}

func (GobCodec) Encode(value interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envelope{V: value}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec) Decode(data []byte, out interface{}) error {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return err
	}
	if p, ok := out.(*interface{}); ok {
		*p = env.V
		return nil
	}

	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("block: decode out must be a non-nil pointer, got %T", out)
	}
	if env.V == nil {
		return nil
	}
	val := reflect.ValueOf(env.V)
	elem := rv.Elem()
	if !val.Type().AssignableTo(elem.Type()) {
		return fmt.Errorf("block: decoded %s not assignable to %s", val.Type(), elem.Type())
	}
	elem.Set(val)
	return nil
}

// Fingerprint returns a content-address for data: a blake2b-128 digest.
// Blocks do not carry it, Join does not verify it, and the local cache is
// keyed by broadcast id only, so no lookup by fingerprint is done.
func Fingerprint(data []byte) [16]byte {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// Only time New fails is an invalid size/key combination, which
		// is a constant here; a failure would be a program bug.
		panic(err)
	}
	h.Write(data)
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Split encodes value with codec and partitions the result into
// blockSize-sized blocks. index = position / blockSize, as required by the
// block layout: a consumer can map any index directly to its byte range
// without consulting other blocks.
func Split(codec Codec, value interface{}, blockSize int) ([]Block, VariableInfo, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	data, err := codec.Encode(value)
	if err != nil {
		return nil, VariableInfo{}, fmt.Errorf("%w: %v", errs.ErrDecodeError, err)
	}

	n := (len(data) + blockSize - 1) / blockSize
	if n == 0 {
		n = 1 // an empty value still produces one (empty) block
	}
	blocks := make([]Block, n)
	for i := 0; i < n; i++ {
		start := i * blockSize
		end := start + blockSize
		if end > len(data) {
			end = len(data)
		}
		blocks[i] = Block{Index: i, Bytes: data[start:end]}
	}

	info := VariableInfo{N: n, B: int64(len(data)), S: blockSize}
	return blocks, info, nil
}

// Join verifies blocks cover every index in [0, info.N) and decodes the
// concatenation with codec. Missing blocks or a codec failure return
// errs.ErrDecodeError.
func Join(codec Codec, blocks []Block, info VariableInfo, out interface{}) error {
	byIndex := make(map[int][]byte, len(blocks))
	for _, b := range blocks {
		byIndex[b.Index] = b.Bytes
	}

	var buf bytes.Buffer
	buf.Grow(int(info.B))
	for i := 0; i < info.N; i++ {
		b, ok := byIndex[i]
		if !ok {
			return fmt.Errorf("%w: missing block %d of %d", errs.ErrDecodeError, i, info.N)
		}
		buf.Write(b)
	}

	if err := codec.Decode(buf.Bytes(), out); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrDecodeError, err)
	}
	return nil
}

// Compress applies snappy block compression to a block's bytes for transfer
// over the wire. Peers only need to agree on whether compression is in use;
// the compressed form is never the form blocks are cached or assembled in.
func Compress(b []byte) []byte {
	return snappy.Encode(nil, b)
}

// Decompress reverses Compress.
func Decompress(b []byte) ([]byte, error) {
	return snappy.Decode(nil, b)
}
