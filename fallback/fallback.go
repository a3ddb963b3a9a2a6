// Package fallback implements the shared-filesystem path consumers fall
// back to when peer-to-peer dissemination of a broadcast value fails.
package fallback

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/rjeczalik/notify"
	"github.com/spf13/afero"

	"github.com/distcompute/treebcast/block"
	"github.com/distcompute/treebcast/errs"
	"github.com/distcompute/treebcast/logger"
	"github.com/distcompute/treebcast/logger/glog"
	"github.com/distcompute/treebcast/metrics"
)

// Fallback reads and writes broadcast values under <workDir>/<id>. fs is an
// afero.Fs so tests can swap in an in-memory filesystem; production callers
// pass afero.NewOsFs().
type Fallback struct {
	fs      afero.Fs
	workDir string
	codec   block.Codec
}

// New constructs a Fallback rooted at workDir. An empty workDir is valid: it
// means "no fallback directory configured," and every Read/Write call fails
// with errs.ErrFallbackUnavailable, matching the spec's "directory not
// configured" disposition.
func New(fs afero.Fs, workDir string, codec block.Codec) *Fallback {
	if codec == nil {
		codec = block.GobCodec{}
	}
	return &Fallback{fs: fs, workDir: workDir, codec: codec}
}

// Write serializes value with the configured codec and writes it to
// <workDir>/<id> atomically: encode to a temp file in the same directory,
// then rename over the final path, so a reader never observes a partial
// file.
func (f *Fallback) Write(id string, value interface{}) error {
	if f.workDir == "" {
		return errs.ErrFallbackUnavailable
	}
	if err := f.fs.MkdirAll(f.workDir, 0755); err != nil {
		metrics.FallbackErrors.Mark(1)
		return fmt.Errorf("%w: mkdir %s: %v", errs.ErrFallbackUnavailable, f.workDir, err)
	}

	data, err := f.codec.Encode(value)
	if err != nil {
		metrics.FallbackErrors.Mark(1)
		return fmt.Errorf("%w: encode: %v", errs.ErrDecodeError, err)
	}

	final := filepath.Join(f.workDir, id)
	tmp := final + ".tmp"

	fh, err := f.fs.Create(tmp)
	if err != nil {
		metrics.FallbackErrors.Mark(1)
		return fmt.Errorf("%w: create %s: %v", errs.ErrFallbackUnavailable, tmp, err)
	}
	if _, err := fh.Write(data); err != nil {
		fh.Close()
		f.fs.Remove(tmp)
		metrics.FallbackErrors.Mark(1)
		return fmt.Errorf("%w: write %s: %v", errs.ErrFallbackUnavailable, tmp, err)
	}
	if err := fh.Close(); err != nil {
		metrics.FallbackErrors.Mark(1)
		return fmt.Errorf("%w: close %s: %v", errs.ErrFallbackUnavailable, tmp, err)
	}

	if err := f.fs.Rename(tmp, final); err != nil {
		metrics.FallbackErrors.Mark(1)
		return fmt.Errorf("%w: rename %s: %v", errs.ErrFallbackUnavailable, final, err)
	}

	metrics.FallbackWrites.Mark(1)
	if logger.MlogEnabled() {
		glog.V(logger.Detail).Infof("fallback: wrote %s (%d bytes)", id, len(data))
	}
	return nil
}

// Read decodes <workDir>/<id> into out. It fails with
// errs.ErrFallbackUnavailable if no directory is configured or the file
// does not exist.
func (f *Fallback) Read(id string, out interface{}) error {
	if f.workDir == "" {
		return errs.ErrFallbackUnavailable
	}

	final := filepath.Join(f.workDir, id)
	fh, err := f.fs.Open(final)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.ErrFallbackUnavailable
		}
		metrics.FallbackErrors.Mark(1)
		return fmt.Errorf("%w: open %s: %v", errs.ErrFallbackUnavailable, final, err)
	}
	defer fh.Close()

	data, err := ioutil.ReadAll(fh)
	if err != nil {
		metrics.FallbackErrors.Mark(1)
		return fmt.Errorf("%w: read %s: %v", errs.ErrFallbackUnavailable, final, err)
	}

	if err := f.codec.Decode(data, out); err != nil {
		metrics.FallbackErrors.Mark(1)
		return fmt.Errorf("%w: decode %s: %v", errs.ErrDecodeError, final, err)
	}

	metrics.FallbackReads.Mark(1)
	metrics.FallbackReadBytes.Mark(int64(len(data)))
	return nil
}

// Exists reports whether a fallback file for id is already present, without
// reading or decoding it.
func (f *Fallback) Exists(id string) bool {
	if f.workDir == "" {
		return false
	}
	_, err := f.fs.Stat(filepath.Join(f.workDir, id))
	return err == nil
}

// Watch reports broadcast ids as their fallback files appear in workDir from
// outside this process (e.g. another producer's eager write). It only
// operates on the real OS filesystem: notify watches OS paths directly and
// has no afero abstraction, so Watch returns an error if workDir is unset.
// The returned channel is closed when stop is closed.
func (f *Fallback) Watch(stop <-chan struct{}) (<-chan string, error) {
	if f.workDir == "" {
		return nil, errs.ErrFallbackUnavailable
	}

	events := make(chan notify.EventInfo, 32)
	if err := notify.Watch(f.workDir, events, notify.Create); err != nil {
		return nil, fmt.Errorf("%w: watch %s: %v", errs.ErrFallbackUnavailable, f.workDir, err)
	}

	ids := make(chan string, 32)
	go func() {
		defer notify.Stop(events)
		defer close(ids)
		for {
			select {
			case <-stop:
				return
			case ev := <-events:
				name := filepath.Base(ev.Path())
				if filepath.Ext(name) == ".tmp" {
					continue
				}
				select {
				case ids <- name:
				case <-stop:
					return
				}
			}
		}
	}()
	return ids, nil
}
