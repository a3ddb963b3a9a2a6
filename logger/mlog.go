// Copyright 2017 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Structured event logging ("mlog"): each package registers the lines it can
// emit with MLogRegisterAvailable, an operator turns a subset on with
// MLogRegisterComponentsFromContext, and registered MLogT values are sent
// with their .Send(component) method.

package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/distcompute/treebcast/session"
)

// LogLevel is a severity value for mlog output. Lower values are more
// severe, mirroring the glog.Level ordering. Sendf does not filter on it:
// every registered system receives every line.
type LogLevel int

// mlogFormat selects how an MLogT line is rendered on the wire.
type mlogFormat int

const (
	mlogFormatPlain mlogFormat = iota
	mlogFormatKV
	mlogFormatJSON
)

func (f mlogFormat) String() string {
	switch f {
	case mlogFormatKV:
		return "kv"
	case mlogFormatJSON:
		return "json"
	default:
		return "plain"
	}
}

var (
	formatMu     sync.RWMutex
	activeFormat = mlogFormatPlain
)

// SetMLogFormatFromString sets the process-wide mlog line format. Valid
// values are "plain", "kv", and "json".
func SetMLogFormatFromString(s string) error {
	formatMu.Lock()
	defer formatMu.Unlock()
	switch s {
	case "plain":
		activeFormat = mlogFormatPlain
	case "kv":
		activeFormat = mlogFormatKV
	case "json":
		activeFormat = mlogFormatJSON
	default:
		return fmt.Errorf("invalid mlog format: %q", s)
	}
	return nil
}

// GetMLogFormat returns the process-wide mlog line format.
func GetMLogFormat() mlogFormat {
	formatMu.RLock()
	defer formatMu.RUnlock()
	return activeFormat
}

// mlogSystem is a single sink that mlog lines are written to, e.g. the
// session mlog file or, in tests, an in-memory buffer.
type mlogSystem struct {
	w     io.Writer
	flag  int
	level LogLevel
	json  bool

	mu sync.Mutex
}

// NewMLogSystem constructs an mlog sink writing to w.
func NewMLogSystem(w io.Writer, flag int, level LogLevel, asJSON bool) *mlogSystem {
	return &mlogSystem{w: w, flag: flag, level: level, json: asJSON}
}

func (s *mlogSystem) write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, line)
}

var (
	systemsMu sync.RWMutex
	systems   []*mlogSystem
)

// AddLogSystem registers a sink that all subsequent Sendf calls are
// delivered to, in addition to any already registered.
func AddLogSystem(s *mlogSystem) {
	systemsMu.Lock()
	defer systemsMu.Unlock()
	systems = append(systems, s)
}

// Reset clears all registered mlog sinks and component registrations. Used
// by tests to start from a clean slate.
func Reset() {
	systemsMu.Lock()
	systems = nil
	systemsMu.Unlock()

	mlogRegLock.Lock()
	MLogRegistryAvailable = make(map[mlogComponent][]*MLogT)
	MLogRegistryActive = make(map[mlogComponent]*Logger)
	mlogRegLock.Unlock()

	formatMu.Lock()
	activeFormat = mlogFormatPlain
	formatMu.Unlock()
}

// Flush blocks until all sinks have observed previously sent lines. Writes
// are synchronous so there is nothing to wait for; the call exists so tests
// can read as if delivery were asynchronous.
func Flush() {}

// Logger is the per-component handle returned by MLogRegisterActive. It is
// the thing an mlogComponent's Send forwards formatted lines through.
type Logger struct {
	name string
}

// NewLogger constructs a Logger for the named component.
func NewLogger(name string) *Logger {
	return &Logger{name: name}
}

// Sendf writes a pre-formatted line to every registered mlog sink.
func (l *Logger) Sendf(calldepth int, line string) {
	systemsMu.RLock()
	defer systemsMu.RUnlock()
	for _, s := range systems {
		s.write(line)
	}
}

// GetMLogRegistryAvailable returns a snapshot of all mlog lines any package
// has registered as available.
func GetMLogRegistryAvailable() map[mlogComponent][]*MLogT {
	mlogRegLock.RLock()
	defer mlogRegLock.RUnlock()
	out := make(map[mlogComponent][]*MLogT, len(MLogRegistryAvailable))
	for k, v := range MLogRegistryAvailable {
		out[k] = v
	}
	return out
}

// GetMLogRegistryActive returns a snapshot of components currently emitting
// mlog lines.
func GetMLogRegistryActive() map[mlogComponent]*Logger {
	mlogRegLock.RLock()
	defer mlogRegLock.RUnlock()
	out := make(map[mlogComponent]*Logger, len(MLogRegistryActive))
	for k, v := range MLogRegistryActive {
		out[k] = v
	}
	return out
}

// MLogRegisterComponentsFromContext activates mlog components from a
// comma-separated list, e.g. "block,guide". A token prefixed with "!"
// inverts the selection: every available component is activated EXCEPT the
// ones named (with or without "!") in the list. This lets an operator say
// "everything except the noisy one" instead of naming every component.
func MLogRegisterComponentsFromContext(s string) error {
	parts := strings.Split(s, ",")
	negated := false
	mentioned := make(map[mlogComponent]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "!") {
			negated = true
			p = p[1:]
		}
		mentioned[mlogComponent(p)] = true
	}

	if negated {
		mlogRegLock.Lock()
		MLogRegistryActive = make(map[mlogComponent]*Logger)
		avail := make([]mlogComponent, 0, len(MLogRegistryAvailable))
		for c := range MLogRegistryAvailable {
			avail = append(avail, c)
		}
		mlogRegLock.Unlock()

		for _, c := range avail {
			if !mentioned[c] {
				MLogRegisterActive(c)
			}
		}
		return nil
	}

	for p := range mentioned {
		mlogRegLock.RLock()
		_, ok := MLogRegistryAvailable[p]
		mlogRegLock.RUnlock()
		if !ok {
			return fmt.Errorf("%v: '%s'", errMLogComponentUnavailable, p)
		}
		MLogRegisterActive(p)
	}
	return nil
}

// AssignDetails sets detail values in the order the MLogT's Details were
// declared. It panics on a length mismatch: that is a programming error at
// the call site, not a runtime condition to recover from.
func (m *MLogT) AssignDetails(vals ...interface{}) *MLogT {
	if len(vals) != len(m.Details) {
		panic(fmt.Sprintf("mlog: wrong number of details set, want: %d got: %d", len(m.Details), len(vals)))
	}
	for i, v := range vals {
		m.Details[i].Value = v
	}
	return m
}

// eventName is the dotted "receiver.verb.subject" identifier used by the kv
// and json formats, e.g. "tester.testing.mlog".
func (m *MLogT) eventName() string {
	return strings.Join([]string{
		strings.ToLower(m.Receiver),
		strings.ToLower(m.Verb),
		strings.ToLower(m.Subject),
	}, ".")
}

// FormatPlain renders the line the same way MLogT.String does, prefixed with
// the session id so concurrent processes' log lines can be told apart.
func (m *MLogT) FormatPlain() string {
	return fmt.Sprintf("[%s] %s", session.SessionID, m.String())
}

// FormatKV renders the line as space-separated key=value pairs.
func (m *MLogT) FormatKV() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session=%s event=%s", session.SessionID, m.eventName())
	for _, d := range m.Details {
		fmt.Fprintf(&b, " %s.%s=%v", strings.ToLower(d.Owner), strings.ToLower(d.Key), d.Value)
	}
	return b.String()
}

// FormatJSON renders the line as a single JSON object keyed by
// "owner.key" for each detail, plus component/session/event metadata.
func (m *MLogT) FormatJSON(c mlogComponent) string {
	obj := map[string]interface{}{
		"component": string(c),
		"session":   session.SessionID,
		"event":     m.eventName(),
	}
	for _, d := range m.Details {
		key := strings.Join([]string{strings.ToLower(d.Owner), strings.ToLower(d.Key)}, ".")
		obj[key] = d.Value
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Send renders m in the process-wide mlog format and delivers it through c,
// if c is registered active.
func (m *MLogT) Send(c mlogComponent) {
	var line string
	switch GetMLogFormat() {
	case mlogFormatJSON:
		line = m.FormatJSON(c)
	case mlogFormatKV:
		line = m.FormatKV()
	default:
		line = m.FormatPlain()
	}
	c.Send(line)
}

// FormatDocumentation renders a human-readable description of m for the
// component it is registered under, suitable for `--help mlog`-style output.
func (m *MLogT) FormatDocumentation(c mlogComponent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %s %s\n", c, m.Receiver, m.Verb, m.Subject)
	if m.Description != "" {
		fmt.Fprintf(&b, "    %s\n", m.Description)
	}
	for _, d := range m.Details {
		fmt.Fprintf(&b, "    $%s:%s (%s)\n", d.Owner, d.Key, d.Value)
	}
	return b.String()
}
