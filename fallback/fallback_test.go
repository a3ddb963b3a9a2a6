package fallback

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/distcompute/treebcast/block"
	"github.com/distcompute/treebcast/errs"
)

func TestWriteReadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := New(fs, "/work", block.GobCodec{})

	assert.NoError(t, f.Write("bid-1", []int{1, 2, 3}))

	var out []int
	assert.NoError(t, f.Read("bid-1", &out))
	assert.Equal(t, []int{1, 2, 3}, out)
}

func TestReadMissingFileIsUnavailable(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := New(fs, "/work", block.GobCodec{})

	var out []int
	err := f.Read("nope", &out)
	assert.True(t, errors.Is(err, errs.ErrFallbackUnavailable))
}

func TestUnconfiguredDirIsUnavailable(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := New(fs, "", block.GobCodec{})

	assert.True(t, errors.Is(f.Write("x", 1), errs.ErrFallbackUnavailable))

	var out int
	assert.True(t, errors.Is(f.Read("x", &out), errs.ErrFallbackUnavailable))
}

func TestExists(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := New(fs, "/work", block.GobCodec{})

	assert.False(t, f.Exists("bid-1"))
	assert.NoError(t, f.Write("bid-1", 42))
	assert.True(t, f.Exists("bid-1"))
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := New(fs, "/work", block.GobCodec{})
	assert.NoError(t, f.Write("bid-1", 42))

	exists, err := afero.Exists(fs, "/work/bid-1.tmp")
	assert.NoError(t, err)
	assert.False(t, exists)
}
