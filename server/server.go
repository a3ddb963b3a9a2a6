// Package server implements the per-broadcast block server (C4): a TCP
// endpoint that answers block-index requests with the corresponding block
// bytes, waiting for not-yet-produced blocks rather than replying with an
// error.
package server

import (
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/distcompute/treebcast/block"
	"github.com/distcompute/treebcast/logger"
	"github.com/distcompute/treebcast/logger/glog"
	"github.com/distcompute/treebcast/metrics"
	"github.com/distcompute/treebcast/wire"
)

// MaxConnections caps how many clients a single block server answers at
// once. netutil.LimitListener blocks new Accepts past this cap rather than
// refusing them, so a burst of leechers queues instead of erroring.
const MaxConnections = 64

// blockRequest is the wire payload a client sends to ask for one block, or
// (with Index == wire.StopBroadcast) to tell the server to shut down.
type blockRequest struct {
	Index int
}

// blockReply carries a requested block's bytes, optionally snappy
// compressed.
type blockReply struct {
	Index      int
	Bytes      []byte
	Compressed bool
}

// Server serves the blocks of a single broadcast. Blocks may arrive after
// Listen/Serve have started (the producer is still encoding); requests for
// an index beyond what has arrived block until AddBlock supplies it, using
// a condition variable rather than polling.
type Server struct {
	mu       sync.Mutex
	cond     *sync.Cond
	blocks   []block.Block
	total    int // -1 until known
	compress bool

	ln      net.Listener
	addr    string
	closing bool
}

// New constructs a Server for a broadcast whose total block count is not
// yet known (a producer still encoding). Call SetTotal once it is.
func New(compress bool) *Server {
	s := &Server{total: -1, compress: compress}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// NewForBlocks constructs a Server that already has every block, the common
// case: the producer (or a consumer re-seeding) has the whole value encoded
// before it starts serving.
func NewForBlocks(blocks []block.Block, compress bool) *Server {
	s := New(compress)
	s.blocks = blocks
	s.total = len(blocks)
	return s
}

// SetTotal records the broadcast's total block count once known.
func (s *Server) SetTotal(n int) {
	s.mu.Lock()
	s.total = n
	s.cond.Broadcast()
	s.mu.Unlock()
}

// AddBlock makes one more block available to waiting and future requests.
// Blocks must be added in index order.
func (s *Server) AddBlock(b block.Block) {
	s.mu.Lock()
	s.blocks = append(s.blocks, b)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Listen binds an ephemeral TCP port (or addr, if non-empty) and records the
// resulting address. It does not start serving; call Serve to accept
// connections. Splitting the two lets a caller publish Addr() to a guide
// before traffic can arrive, the startup barrier the broadcast handle
// depends on.
func (s *Server) Listen(addr string) error {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = netutil.LimitListener(ln, MaxConnections)
	s.addr = ln.Addr().String()
	tryMapPort(ln.Addr())
	return nil
}

// Addr returns the bound "host:port" this server answers requests on. Valid
// only after Listen returns successfully.
func (s *Server) Addr() string {
	return s.addr
}

// Serve accepts connections until Stop is called, answering each
// concurrently so one slow or stalled client cannot hold up another.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			return err
		}
		metrics.ServerConnections.Update(metrics.ServerConnections.Value() + 1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	defer metrics.ServerConnections.Update(metrics.ServerConnections.Value() - 1)

	for {
		var req blockRequest
		if err := wire.ReadFrame(conn, &req); err != nil {
			if err != io.EOF && logger.MlogEnabled() {
				glog.V(logger.Detail).Infof("server: read request: %v", err)
			}
			return
		}

		if req.Index == wire.StopBroadcast {
			glog.V(logger.Debug).Infof("server: received stop sentinel, shutting down")
			s.Stop()
			return
		}

		metrics.ServerBlockRequests.Mark(1)
		start := time.Now()

		b, ok := s.waitForBlock(req.Index)
		if !ok {
			// Server stopped while we were waiting.
			return
		}

		reply := blockReply{Index: b.Index, Bytes: b.Bytes}
		if s.compress {
			reply.Bytes = block.Compress(b.Bytes)
			reply.Compressed = true
		}
		if err := wire.WriteFrame(conn, reply); err != nil {
			return
		}

		metrics.ServerRequestTimer.UpdateSince(start)
		metrics.ServerBlockSent.Mark(1)
		metrics.ServerBlockBytes.Mark(int64(len(b.Bytes)))
	}
}

// waitForBlock blocks until index is available or the server stops.
func (s *Server) waitForBlock(index int) (block.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for index >= len(s.blocks) {
		if s.closing {
			return block.Block{}, false
		}
		s.cond.Wait()
	}
	return s.blocks[index], true
}

// Stop closes the listener and wakes any requests waiting on a future
// block, so in-flight handlers exit promptly.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.ln != nil {
		s.ln.Close()
	}
}

// SendStop tells the block server at addr to shut down, used by the guide
// once a broadcast's termination predicate is met.
func SendStop(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	return wire.WriteFrame(conn, blockRequest{Index: wire.StopBroadcast})
}

// RequestBlock pulls a single block at index from the server on the other
// end of conn, an already-open connection. Exported for the block client (C5),
// which keeps one connection open across all N requests.
func RequestBlock(conn net.Conn, index int) (block.Block, error) {
	if err := wire.WriteFrame(conn, blockRequest{Index: index}); err != nil {
		return block.Block{}, err
	}
	var reply blockReply
	if err := wire.ReadFrame(conn, &reply); err != nil {
		return block.Block{}, err
	}
	if reply.Compressed {
		data, err := block.Decompress(reply.Bytes)
		if err != nil {
			return block.Block{}, err
		}
		reply.Bytes = data
	}
	return block.Block{Index: reply.Index, Bytes: reply.Bytes}, nil
}
