// Package tracker implements the tracker (C7): the well-known rendezvous
// point that maps a broadcast id to the address of its guide. Producers
// register a broadcast when they start seeding; consumers look it up before
// joining.
package tracker

import (
	"fmt"
	"net"
	"sync"

	"github.com/distcompute/treebcast/errs"
	"github.com/distcompute/treebcast/logger"
	"github.com/distcompute/treebcast/logger/glog"
	"github.com/distcompute/treebcast/metrics"
	"github.com/distcompute/treebcast/wire"
)

// request is the tracker's wire request. A non-empty GuideAddr is a
// registration; an empty one is a lookup. Unregister is set to withdraw a
// broadcast once its guide has terminated.
type request struct {
	ID         string
	GuideAddr  string
	Unregister bool
}

// reply carries a lookup or registration result. Found is false when ID has
// no registered guide, the wire encoding of errs.ErrUnknownBroadcast.
type reply struct {
	GuideAddr string
	Found     bool
}

// Tracker holds the live BroadcastId -> guide-address mapping for every
// broadcast this process knows about. It is safe for concurrent use: unlike
// the guide, a lookup and a registration never need to be indivisible with
// respect to each other, so Tracker answers connections concurrently.
type Tracker struct {
	mu    sync.RWMutex
	state map[string]string

	ln   net.Listener
	addr string

	closing bool
}

// New constructs an empty Tracker.
func New() *Tracker {
	return &Tracker{state: make(map[string]string)}
}

// Register records that broadcast id is served by the guide at guideAddr,
// replacing any previous registration for id.
func (t *Tracker) Register(id, guideAddr string) {
	t.mu.Lock()
	t.state[id] = guideAddr
	n := len(t.state)
	t.mu.Unlock()

	metrics.TrackerRegistrations.Mark(1)
	glog.V(logger.Debug).Infof("tracker: registered %s -> %s (%d broadcasts tracked)", id, guideAddr, n)
}

// Unregister withdraws id, called once its guide has terminated.
func (t *Tracker) Unregister(id string) {
	t.mu.Lock()
	delete(t.state, id)
	t.mu.Unlock()
}

// Lookup returns the guide address registered for id, or
// errs.ErrUnknownBroadcast if none exists.
func (t *Tracker) Lookup(id string) (string, error) {
	t.mu.RLock()
	addr, ok := t.state[id]
	t.mu.RUnlock()

	metrics.TrackerLookups.Mark(1)
	if !ok {
		metrics.TrackerLookupMisses.Mark(1)
		return "", errs.ErrUnknownBroadcast
	}
	return addr, nil
}

// Listen binds the tracker's well-known (or ephemeral, for tests) address.
func (t *Tracker) Listen(addr string) error {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	t.ln = ln
	t.addr = ln.Addr().String()
	return nil
}

// Addr returns the tracker's bound address, valid after Listen.
func (t *Tracker) Addr() string {
	return t.addr
}

// Serve accepts connections until Stop is called, answering each
// concurrently since registrations and lookups commute.
func (t *Tracker) Serve() error {
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			t.mu.RLock()
			closing := t.closing
			t.mu.RUnlock()
			if closing {
				return nil
			}
			return err
		}
		go t.handleConn(conn)
	}
}

func (t *Tracker) handleConn(conn net.Conn) {
	defer conn.Close()

	var req request
	if err := wire.ReadFrame(conn, &req); err != nil {
		return
	}

	switch {
	case req.Unregister:
		t.Unregister(req.ID)
		wire.WriteFrame(conn, reply{})
	case req.GuideAddr != "":
		t.Register(req.ID, req.GuideAddr)
		wire.WriteFrame(conn, reply{GuideAddr: req.GuideAddr, Found: true})
	default:
		addr, err := t.Lookup(req.ID)
		wire.WriteFrame(conn, reply{GuideAddr: addr, Found: err == nil})
	}
}

// Stop closes the tracker's listener.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.closing = true
	t.mu.Unlock()
	if t.ln != nil {
		t.ln.Close()
	}
}

// Register tells the tracker at trackerAddr that id's guide is at
// guideAddr, the remote counterpart of (*Tracker).Register used by a
// producer running in a different process than the tracker.
func Register(trackerAddr, id, guideAddr string) error {
	conn, err := net.Dial("tcp", trackerAddr)
	if err != nil {
		return fmt.Errorf("tracker: dial %s: %w", trackerAddr, err)
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, request{ID: id, GuideAddr: guideAddr}); err != nil {
		return err
	}
	var rep reply
	return wire.ReadFrame(conn, &rep)
}

// Unregister tells the tracker at trackerAddr to withdraw id.
func Unregister(trackerAddr, id string) error {
	conn, err := net.Dial("tcp", trackerAddr)
	if err != nil {
		return fmt.Errorf("tracker: dial %s: %w", trackerAddr, err)
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, request{ID: id, Unregister: true}); err != nil {
		return err
	}
	var rep reply
	return wire.ReadFrame(conn, &rep)
}

// Lookup asks the tracker at trackerAddr for id's guide address.
func Lookup(trackerAddr, id string) (string, error) {
	conn, err := net.Dial("tcp", trackerAddr)
	if err != nil {
		return "", fmt.Errorf("tracker: dial %s: %w", trackerAddr, err)
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, request{ID: id}); err != nil {
		return "", err
	}
	var rep reply
	if err := wire.ReadFrame(conn, &rep); err != nil {
		return "", err
	}
	if !rep.Found {
		return "", errs.ErrUnknownBroadcast
	}
	return rep.GuideAddr, nil
}
