// Package client implements the block client (C5): pulls all N blocks of a
// broadcast from one chosen seeder, strictly in index order, over a single
// connection.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/distcompute/treebcast/block"
	"github.com/distcompute/treebcast/errs"
	"github.com/distcompute/treebcast/logger"
	"github.com/distcompute/treebcast/logger/glog"
	"github.com/distcompute/treebcast/metrics"
	"github.com/distcompute/treebcast/server"
)

// DialTimeout bounds how long connecting to a seeder may take before the
// pull is abandoned in favor of the fallback path.
var DialTimeout = 5 * time.Second

// RequestTimeout bounds how long a single block request may take. The spec
// does not require this, but recommends it as hardening; a miss routes to
// fallback rather than re-polling the guide.
var RequestTimeout = 30 * time.Second

// Pull connects to addr and requests blocks 0..n-1 in order, returning them
// in a slice indexed by position. Any index mismatch in a reply fails with
// errs.ErrBadBlock; any socket or protocol failure fails with
// errs.ErrTransferFailed. Both are the caller's cue to mark the source
// failed and fall back.
func Pull(addr string, n int) ([]block.Block, error) {
	start := time.Now()
	defer metrics.ClientPullTimer.UpdateSince(start)

	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		metrics.ClientBlockErrors.Mark(1)
		return nil, fmt.Errorf("%w: dial %s: %v", errs.ErrTransferFailed, addr, err)
	}
	defer conn.Close()

	blocks := make([]block.Block, 0, n)
	for i := 0; i < n; i++ {
		conn.SetDeadline(time.Now().Add(RequestTimeout))

		b, err := server.RequestBlock(conn, i)
		if err != nil {
			metrics.ClientBlockErrors.Mark(1)
			return nil, fmt.Errorf("%w: block %d from %s: %v", errs.ErrTransferFailed, i, addr, err)
		}
		if b.Index != i {
			metrics.ClientBlockErrors.Mark(1)
			return nil, fmt.Errorf("%w: requested %d, got %d from %s", errs.ErrBadBlock, i, b.Index, addr)
		}

		blocks = append(blocks, b)
		metrics.ClientBlockPulls.Mark(1)
	}

	if logger.MlogEnabled() {
		glog.V(logger.Detail).Infof("client: pulled %d blocks from %s", n, addr)
	}
	return blocks, nil
}
