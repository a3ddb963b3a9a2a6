// Package treebcast publishes values for peer-assisted tree-broadcast
// dissemination: one producer encodes a value once, and every consumer that
// dereferences the resulting Handle pulls it from the peer the broadcast's
// guide (package guide) selects (the source with the most leechers still
// under the fan-out cap, or the producer when none qualifies), falling back to a shared filesystem (package fallback) if the peer path
// fails outright.
package treebcast

import (
	"fmt"
	"time"

	"github.com/distcompute/treebcast/block"
	"github.com/distcompute/treebcast/client"
	"github.com/distcompute/treebcast/errs"
	"github.com/distcompute/treebcast/guide"
	"github.com/distcompute/treebcast/logger"
	"github.com/distcompute/treebcast/logger/glog"
	"github.com/distcompute/treebcast/metrics"
	"github.com/distcompute/treebcast/node"
	"github.com/distcompute/treebcast/server"
	"github.com/distcompute/treebcast/session"
	"github.com/distcompute/treebcast/tracker"
)

// Handle is the object an application holds and ships to workers. Its only
// transportable state is ID: everything else a consumer needs (cache,
// fallback, tracker address) is resolved through the Runtime it is
// dereferenced against, which every process in the broadcast's cluster
// must have initialized with a matching tracker endpoint and work
// directory before calling Value.
type Handle struct {
	ID string
}

// localState is the per-process bookkeeping a Handle's Runtime keeps keyed
// by ID: on a producer, the live guide and block server; on a consumer that
// has resolved the value, its own seeding server.
type localState struct {
	codec block.Codec
	guide *guide.Guide
	srv   *server.Server
}

// NewBroadcast publishes value for dissemination and returns a Handle.
//
// If isLocal is true, networking is skipped entirely: value is published
// only into rt's local cache, for the case where every consuming worker
// lives in this same process. A value too large for the cache surfaces
// errs.ErrTooLargeForCache immediately, since there is no peer path to fall
// back to.
//
// Otherwise value is split into blocks, a block server and guide are
// started, and (id -> guide address) is registered with rt's tracker, so
// remote consumers can find it.
func NewBroadcast(rt *node.Runtime, value interface{}, isLocal bool) (Handle, error) {
	return NewBroadcastWithCodec(rt, value, isLocal, nil)
}

// NewBroadcastWithCodec is NewBroadcast with an explicit value Codec,
// instead of the default GobCodec.
func NewBroadcastWithCodec(rt *node.Runtime, value interface{}, isLocal bool, codec block.Codec) (Handle, error) {
	start := time.Now()
	defer metrics.BroadcastTimer.UpdateSince(start)
	metrics.BroadcastsStarted.Mark(1)

	if codec == nil {
		codec = block.GobCodec{}
	}
	id := session.NewBroadcastID()

	if isLocal {
		data, err := codec.Encode(value)
		if err != nil {
			return Handle{}, fmt.Errorf("%w: %v", errs.ErrDecodeError, err)
		}
		if !rt.Cache().Put(id, value, int64(len(data))) {
			metrics.BroadcastFailures.Mark(1)
			return Handle{}, errs.ErrTooLargeForCache
		}
		return Handle{ID: id}, nil
	}

	blocks, info, err := block.Split(codec, value, block.DefaultBlockSize)
	if err != nil {
		metrics.BroadcastFailures.Mark(1)
		return Handle{}, err
	}

	srv := server.NewForBlocks(blocks, false)
	if err := srv.Listen(""); err != nil {
		metrics.BroadcastFailures.Mark(1)
		return Handle{}, fmt.Errorf("treebcast: start block server: %w", err)
	}
	go srv.Serve()

	trackerAddr, err := rt.ResolveTrackerAddr()
	if err != nil {
		srv.Stop()
		metrics.BroadcastFailures.Mark(1)
		return Handle{}, err
	}

	gd := guide.New(id, srv.Addr(), info, guide.DefaultMaxDegree, nil, trackerAddr, func() {
		srv.Stop()
		rt.ForgetBroadcastState(id)
	})
	if err := gd.Listen(""); err != nil {
		srv.Stop()
		metrics.BroadcastFailures.Mark(1)
		return Handle{}, fmt.Errorf("treebcast: start guide: %w", err)
	}
	go gd.Serve()

	if err := tracker.Register(trackerAddr, id, gd.Addr()); err != nil {
		srv.Stop()
		metrics.BroadcastFailures.Mark(1)
		return Handle{}, fmt.Errorf("treebcast: register with tracker: %w", err)
	}

	rt.BroadcastState(id, func() interface{} {
		return &localState{codec: codec, guide: gd, srv: srv}
	})

	glog.V(logger.Info).Infof("treebcast: %s published (%d blocks, %d bytes)", id, info.N, info.B)
	return Handle{ID: id}, nil
}

// Value resolves the handle's value against rt: a local cache hit, then the
// tree-broadcast peer path, then the filesystem fallback. It is the method
// a consumer calls on first dereference after receiving a Handle whose only
// field that survived transport is ID.
func (h Handle) Value(rt *node.Runtime, out interface{}) error {
	start := time.Now()
	defer metrics.BroadcastTimer.UpdateSince(start)

	if v, ok := rt.Cache().Get(h.ID); ok {
		return assign(v, out)
	}

	value, size, err := h.pullFromPeer(rt)
	if err == nil {
		rt.Cache().Put(h.ID, value, size)
		metrics.BroadcastsResolved.Mark(1)
		return assign(value, out)
	}
	glog.V(logger.Debug).Infof("treebcast: %s peer path failed: %v; falling back", h.ID, err)

	fb := rt.Fallback()
	if ferr := fb.Read(h.ID, out); ferr != nil {
		metrics.BroadcastFailures.Mark(1)
		return fmt.Errorf("%w: peer path: %v; fallback: %v", errs.ErrBroadcastUnavailable, err, ferr)
	}
	metrics.BroadcastsResolved.Mark(1)
	return nil
}

// pullFromPeer runs the consumer path of spec 4.8 steps 2-6: tracker
// lookup, guide join, block pull, decode. The value returned is left as a
// Go value rather than decoded straight into out, so it can also be cached
// and so the eventual fallback-persisted copy (future work: eager
// reseeding) would see the same representation. The second return is the
// value's encoded byte length, for the caller's cache accounting.
func (h Handle) pullFromPeer(rt *node.Runtime) (interface{}, int64, error) {
	trackerAddr, err := rt.ResolveTrackerAddr()
	if err != nil {
		return nil, 0, err
	}

	guideAddr, err := tracker.Lookup(trackerAddr, h.ID)
	if err != nil {
		return nil, 0, err
	}

	selfSrv := server.New(false)
	if err := selfSrv.Listen(""); err != nil {
		return nil, 0, fmt.Errorf("treebcast: start local seeding server: %w", err)
	}

	source, err := guide.Join(guideAddr, selfSrv.Addr())
	if err != nil {
		selfSrv.Stop()
		return nil, 0, fmt.Errorf("treebcast: join guide %s: %w", guideAddr, err)
	}

	blocks, err := client.Pull(source.Addr, source.N)
	if err != nil {
		selfSrv.Stop()
		return nil, 0, err
	}

	// If rt is the producer's own Runtime, reuse its codec; any other
	// Runtime (a separate process, or a second Runtime in this process) has
	// no such state for h.ID and falls back to the default GobCodec, which is what producer and consumer must
	// already agree on out of band in that case.
	codec := block.Codec(block.GobCodec{})
	state := rt.BroadcastState(h.ID, func() interface{} {
		return &localState{codec: codec}
	}).(*localState)
	if state.codec != nil {
		codec = state.codec
	}

	var value interface{}
	info := block.VariableInfo{N: source.N, B: source.B, S: source.S}
	if err := block.Join(codec, blocks, info, &value); err != nil {
		selfSrv.Stop()
		return nil, 0, err
	}

	selfSrv.SetTotal(len(blocks))
	for _, b := range blocks {
		selfSrv.AddBlock(b)
	}
	go selfSrv.Serve()
	state.srv = selfSrv

	if err := guide.Complete(guideAddr, selfSrv.Addr()); err != nil {
		glog.V(logger.Debug).Infof("treebcast: %s completion ping to %s failed: %v", h.ID, guideAddr, err)
	}

	return value, info.B, nil
}

// assign copies src into out via the gob round trip GobCodec already uses,
// letting Value accept any out pointer type without requiring every Codec
// to support assignment directly.
func assign(src interface{}, out interface{}) error {
	if p, ok := out.(*interface{}); ok {
		*p = src
		return nil
	}
	data, err := block.GobCodec{}.Encode(src)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrDecodeError, err)
	}
	return block.GobCodec{}.Decode(data, out)
}
