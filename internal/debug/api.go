// Copyright 2016 The go-ethereum Authors
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

// Package debug interfaces Go runtime debugging facilities.
// This package is mostly glue code making these facilities available
// through CLI flags and the node package's debug HTTP listener. If you want to use them from Go code,
// use package runtime instead.
package debug

import (
	"bytes"
	"io"
	"net/http"
	"runtime/pprof"
	"sync"

	"github.com/ianlancetaylor/demangle"
	"github.com/maruel/panicparse/stack"

	"github.com/distcompute/treebcast/logger/glog"
)

// demangledFuncName runs name through the C++ symbol demangler. Pure-Go
// frames pass through unchanged (demangle.Filter returns its input when it
// does not recognize a mangled form); this only does something useful for
// frames through cgo, which nothing in this module uses today, but keeps
// a stack dump readable on a build that links one in.
func demangledFuncName(name string) string {
	return demangle.Filter(name)
}

// Handler is the global debugging handler.
var Handler = new(HandlerT)

// HandlerT implements the debugging API.
// Do not create values of this type, use the one
// in the Handler variable instead.
type HandlerT struct {
	mu        sync.Mutex
	cpuW      io.WriteCloser
	cpuFile   string
	traceW    io.WriteCloser
	traceFile string
}

// Verbosity sets the glog verbosity ceiling.
// The verbosity of individual packages and source files
// can be raised using Vmodule.
func (*HandlerT) Verbosity(level int) {
	glog.SetV(level)
}

// Vmodule sets the glog verbosity pattern. See package
// glog for details on pattern syntax.
func (*HandlerT) Vmodule(pattern string) error {
	return glog.GetVModule().Set(pattern)
}

// BacktraceAt sets the glog backtrace location.
// See package glog for details on pattern syntax.
func (*HandlerT) BacktraceAt(location string) error {
	return glog.GetTraceLocation().Set(location)
}

// Stacks captures every running goroutine's stack and renders it grouped by
// identical call stack (panicparse's "bucketing"), which collapses the
// dozens of near-identical connection-handler goroutines a guide or block
// server accumulates under load down to one entry per distinct stack shape.
func (*HandlerT) Stacks() (string, error) {
	var raw bytes.Buffer
	if err := pprof.Lookup("goroutine").WriteTo(&raw, 2); err != nil {
		return "", err
	}

	ctx, err := stack.ParseDump(bytes.NewReader(raw.Bytes()), io.Discard, true)
	if err != nil {
		// Not every build of the Go runtime's dump is parseable by
		// panicparse; fall back to the raw dump rather than losing it.
		return raw.String(), nil
	}

	var out bytes.Buffer
	for _, bucket := range stack.Aggregate(ctx.Goroutines, stack.AnyValue) {
		out.WriteString(bucket.String())
		out.WriteByte('\n')
		for _, call := range bucket.Signature.Stack.Calls {
			out.WriteString("    ")
			out.WriteString(demangledFuncName(call.Func.Complete()))
			out.WriteByte('\n')
		}
	}
	return out.String(), nil
}

// StacksHandler serves HandlerT.Stacks over HTTP, mounted by a Runtime's
// debug listener at /debug/stacks.
func StacksHandler(w http.ResponseWriter, r *http.Request) {
	dump, err := Handler.Stacks()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, dump)
}
