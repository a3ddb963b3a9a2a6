package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitJoinRoundTrip(t *testing.T) {
	codec := GobCodec{}
	value := make([]int, 1000)
	for i := range value {
		value[i] = i
	}

	blocks, info, err := Split(codec, value, 64)
	assert.NoError(t, err)
	assert.True(t, info.N > 1)
	assert.Equal(t, info.N, len(blocks))

	var got []int
	assert.NoError(t, Join(codec, blocks, info, &got))
	assert.Equal(t, value, got)
}

func TestSplitSingleBlockWhenUnderSize(t *testing.T) {
	codec := GobCodec{}
	blocks, info, err := Split(codec, []byte("hello"), DefaultBlockSize)
	assert.NoError(t, err)
	assert.Equal(t, 1, info.N)
	assert.Equal(t, 1, len(blocks))
	assert.Equal(t, 0, blocks[0].Index)
}

func TestJoinFailsOnMissingBlock(t *testing.T) {
	codec := GobCodec{}
	blocks, info, err := Split(codec, make([]byte, 200), 64)
	assert.NoError(t, err)
	assert.True(t, len(blocks) > 1)

	missing := blocks[1:]
	var out []byte
	err = Join(codec, missing, info, &out)
	assert.Error(t, err)
}

func TestFingerprintStableAndSensitive(t *testing.T) {
	a := Fingerprint([]byte("hello"))
	b := Fingerprint([]byte("hello"))
	c := Fingerprint([]byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeatedly, repeatedly")
	compressed := Compress(data)
	out, err := Decompress(compressed)
	assert.NoError(t, err)
	assert.Equal(t, data, out)
}
