// Package guide implements the per-broadcast guide (C6): the coordinator
// that introduces new leechers to a suitable seeder, honors the per-seeder
// fan-out cap, and announces termination once every leecher has finished.
package guide

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/distcompute/treebcast/block"
	"github.com/distcompute/treebcast/logger"
	"github.com/distcompute/treebcast/logger/glog"
	"github.com/distcompute/treebcast/metrics"
	"github.com/distcompute/treebcast/netloc"
	"github.com/distcompute/treebcast/server"
	"github.com/distcompute/treebcast/tracker"
	"github.com/distcompute/treebcast/wire"
)

// DefaultMaxDegree is the per-seeder fan-out cap: once a source has this
// many leechers assigned, selection skips it.
const DefaultMaxDegree = 4

// SourceInfo describes one seeder known to the guide.
type SourceInfo struct {
	Addr     string
	N        int
	B        int64
	S        int
	Leechers int
	Failed   bool
}

// request is the guide's wire request. Completed distinguishes a
// completion ping (the explicit-ping resolution to the completion
// accounting open question) from a join.
type request struct {
	Addr      string
	Completed bool
}

// TieBreakFunc picks among sources tied on leecher count for a given
// requester. The default is lexicographic-by-addr with a same-subnet
// preference; see NewOttoTieBreak for a pluggable alternative.
type TieBreakFunc func(requesterAddr string, candidates []SourceInfo) SourceInfo

// DefaultTieBreak prefers a candidate on the same subnet as the requester,
// then falls back to the lexicographically smallest address.
func DefaultTieBreak(requesterAddr string, candidates []SourceInfo) SourceInfo {
	sorted := make([]SourceInfo, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		li := netloc.SameSubnet(requesterAddr, sorted[i].Addr)
		lj := netloc.SameSubnet(requesterAddr, sorted[j].Addr)
		if li != lj {
			return li
		}
		return sorted[i].Addr < sorted[j].Addr
	})
	return sorted[0]
}

// Guide coordinates one broadcast. It binds its own ephemeral port,
// separate from the block server, and serves one request at a time on that
// socket so that read-filter-increment-insert is indivisible without needing
// a separate lock for selection.
type Guide struct {
	id           string
	producerAddr string
	trackerAddr  string
	maxDegree    int
	tieBreak     TieBreakFunc
	onTerminate  func()

	mu        sync.Mutex
	sources   map[string]*SourceInfo
	completed map[string]bool
	stopped   bool

	ln   net.Listener
	addr string
}

// New constructs a Guide for broadcast id, seeded with the producer as the
// first (uncapped) source. trackerAddr may be empty, for tests and for a
// guide whose caller handles tracker registration itself; when set, the
// guide unregisters id from that tracker once it terminates.
func New(id, producerAddr string, info block.VariableInfo, maxDegree int, tieBreak TieBreakFunc, trackerAddr string, onTerminate func()) *Guide {
	if maxDegree <= 0 {
		maxDegree = DefaultMaxDegree
	}
	if tieBreak == nil {
		tieBreak = DefaultTieBreak
	}
	g := &Guide{
		id:           id,
		producerAddr: producerAddr,
		trackerAddr:  trackerAddr,
		maxDegree:    maxDegree,
		tieBreak:     tieBreak,
		onTerminate:  onTerminate,
		sources:      make(map[string]*SourceInfo),
		completed:    make(map[string]bool),
	}
	g.sources[producerAddr] = &SourceInfo{Addr: producerAddr, N: info.N, B: info.B, S: info.S}
	return g
}

// Listen binds the guide's ephemeral port.
func (g *Guide) Listen(addr string) error {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	g.ln = ln
	g.addr = ln.Addr().String()
	return nil
}

// Addr returns the guide's bound address, valid after Listen.
func (g *Guide) Addr() string {
	return g.addr
}

// Serve accepts and fully answers one connection at a time: the whole
// request/select/reply sequence for a connection completes before the next
// Accept, which is what makes seeder selection atomic without an
// additional lock around the read-modify-write.
func (g *Guide) Serve() error {
	for {
		conn, err := g.ln.Accept()
		if err != nil {
			g.mu.Lock()
			stopped := g.stopped
			g.mu.Unlock()
			if stopped {
				return nil
			}
			return err
		}
		g.handleConn(conn)
	}
}

func (g *Guide) handleConn(conn net.Conn) {
	defer conn.Close()

	var req request
	if err := wire.ReadFrame(conn, &req); err != nil {
		return
	}

	if req.Completed {
		g.markCompleted(req.Addr)
		wire.WriteFrame(conn, SourceInfo{})
		return
	}

	selected := g.join(req.Addr)
	wire.WriteFrame(conn, selected)
}

// join registers requesterAddr as a new leecher and returns the seeder it
// should pull from.
func (g *Guide) join(requesterAddr string) SourceInfo {
	g.mu.Lock()
	defer g.mu.Unlock()

	candidates := make([]SourceInfo, 0, len(g.sources))
	for addr, s := range g.sources {
		if addr == requesterAddr {
			continue
		}
		if s.Leechers >= g.maxDegree {
			continue
		}
		candidates = append(candidates, *s)
	}

	var selected SourceInfo
	if len(candidates) == 0 {
		// No source qualifies under the cap; the producer is the root and
		// has no degree cap, so it is always the fallback of last resort.
		selected = *g.sources[g.producerAddr]
	} else {
		maxLeechers := candidates[0].Leechers
		for _, c := range candidates {
			if c.Leechers > maxLeechers {
				maxLeechers = c.Leechers
			}
		}
		tied := candidates[:0:0]
		for _, c := range candidates {
			if c.Leechers == maxLeechers {
				tied = append(tied, c)
			}
		}
		selected = g.tieBreak(requesterAddr, tied)
	}

	g.sources[selected.Addr].Leechers++
	selectedCopy := *g.sources[selected.Addr]

	root := g.sources[g.producerAddr]
	g.sources[requesterAddr] = &SourceInfo{
		Addr: requesterAddr,
		N:    root.N,
		B:    root.B,
		S:    root.S,
	}

	metrics.GuideSelections.Mark(1)
	metrics.GuideLeechersTotal.Update(int64(len(g.sources)))
	if logger.MlogEnabled() {
		glog.V(logger.Detail).Infof("guide %s: %s -> seeder %s (leechers now %d)", g.id, requesterAddr, selectedCopy.Addr, selectedCopy.Leechers)
	}

	return selectedCopy
}

// markCompleted records that addr finished its pull, and checks whether the
// broadcast can now terminate.
func (g *Guide) markCompleted(addr string) {
	g.mu.Lock()
	g.completed[addr] = true
	sources := len(g.sources)
	done := len(g.completed)
	shouldStop := sources > 1 && done == sources-1 && !g.stopped
	if shouldStop {
		g.stopped = true
	}
	allAddrs := make([]string, 0, len(g.sources))
	for a := range g.sources {
		allAddrs = append(allAddrs, a)
	}
	g.mu.Unlock()

	metrics.GuideCompletions.Mark(1)

	if shouldStop {
		go g.terminate(allAddrs)
	}
}

// terminate sends STOP to every registered seeder, unregisters from the
// tracker, and closes the guide's own listener.
func (g *Guide) terminate(addrs []string) {
	var eg errgroup.Group
	for _, addr := range addrs {
		addr := addr
		eg.Go(func() error {
			if err := server.SendStop(addr); err != nil {
				glog.V(logger.Debug).Infof("guide %s: stop %s: %v", g.id, addr, err)
			}
			return nil
		})
	}
	eg.Wait()

	if g.trackerAddr != "" {
		if err := tracker.Unregister(g.trackerAddr, g.id); err != nil {
			glog.V(logger.Debug).Infof("guide %s: unregister from tracker %s: %v", g.id, g.trackerAddr, err)
		}
	}

	if g.onTerminate != nil {
		g.onTerminate()
	}
	if g.ln != nil {
		g.ln.Close()
	}
	glog.V(logger.Info).Infof("guide %s: terminated", g.id)
}

// Stopped reports whether the guide has reached its termination predicate.
func (g *Guide) Stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// Snapshot returns a copy of the guide's current source table, for
// debugging and the admin dashboard.
func (g *Guide) Snapshot() (sources map[string]SourceInfo, completed map[string]bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sources = make(map[string]SourceInfo, len(g.sources))
	for k, v := range g.sources {
		sources[k] = *v
	}
	completed = make(map[string]bool, len(g.completed))
	for k := range g.completed {
		completed[k] = true
	}
	return sources, completed
}

func (g *Guide) String() string {
	sources, completed := g.Snapshot()
	return fmt.Sprintf("guide(%s): %d sources, %d completed", g.id, len(sources), len(completed))
}

// Join dials the guide listening at addr, sends a join request on behalf of
// requesterAddr, and returns the seeder the guide selected for it.
func Join(addr string, requesterAddr string) (SourceInfo, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return SourceInfo{}, err
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, request{Addr: requesterAddr}); err != nil {
		return SourceInfo{}, err
	}
	var reply SourceInfo
	if err := wire.ReadFrame(conn, &reply); err != nil {
		return SourceInfo{}, err
	}
	return reply, nil
}

// Complete sends the completion ping to the guide at addr.
func Complete(addr string, selfAddr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, request{Addr: selfAddr, Completed: true}); err != nil {
		return err
	}
	var reply SourceInfo
	return wire.ReadFrame(conn, &reply)
}
