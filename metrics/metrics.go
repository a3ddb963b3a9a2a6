// Copyright 2015 The go-ethereum Authors
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

// Package metrics centralizes the registration of treebcast's runtime
// counters against a single rcrowley/go-metrics registry.
package metrics

import (
	"bufio"
	"encoding/json"
	"os"
	"runtime"
	"time"

	"github.com/distcompute/treebcast/logger/glog"
	"github.com/rcrowley/go-metrics"
)

// Reg is the metrics destination for every counter below.
var Reg = metrics.NewRegistry()

var (
	// Cache (C2)
	CacheHits      = metrics.NewRegisteredMeter("cache/hit", Reg)
	CacheMisses    = metrics.NewRegisteredMeter("cache/miss", Reg)
	CacheEvictions = metrics.NewRegisteredMeter("cache/eviction", Reg)
	CacheBytes     = metrics.GetOrRegisterGauge("cache/bytes", Reg)

	// Fallback (C3)
	FallbackWrites    = metrics.NewRegisteredMeter("fallback/write", Reg)
	FallbackReads     = metrics.NewRegisteredMeter("fallback/read", Reg)
	FallbackReadBytes = metrics.NewRegisteredMeter("fallback/read/bytes", Reg)
	FallbackErrors    = metrics.NewRegisteredMeter("fallback/error", Reg)

	// Block server (C4)
	ServerBlockRequests = metrics.NewRegisteredMeter("server/block/request", Reg)
	ServerBlockSent     = metrics.NewRegisteredMeter("server/block/sent", Reg)
	ServerBlockBytes    = metrics.NewRegisteredMeter("server/block/bytes", Reg)
	ServerConnections   = metrics.GetOrRegisterGauge("server/connections", Reg)
	ServerRequestTimer  = metrics.NewRegisteredTimer("server/block/request/latency", Reg)

	// Block client (C5)
	ClientBlockPulls  = metrics.NewRegisteredMeter("client/block/pull", Reg)
	ClientBlockErrors = metrics.NewRegisteredMeter("client/block/error", Reg)
	ClientPullTimer   = metrics.NewRegisteredTimer("client/block/pull/latency", Reg)

	// Guide (C6)
	GuideSelections    = metrics.NewRegisteredMeter("guide/selection", Reg)
	GuideSelectTimer   = metrics.NewRegisteredTimer("guide/selection/latency", Reg)
	GuideLeechersTotal = metrics.GetOrRegisterGauge("guide/leechers", Reg)
	GuideCompletions   = metrics.NewRegisteredMeter("guide/completion", Reg)

	// Tracker (C7)
	TrackerRegistrations = metrics.NewRegisteredMeter("tracker/register", Reg)
	TrackerLookups       = metrics.NewRegisteredMeter("tracker/lookup", Reg)
	TrackerLookupMisses  = metrics.NewRegisteredMeter("tracker/lookup/miss", Reg)

	// Broadcast handle (C8)
	BroadcastsStarted  = metrics.NewRegisteredMeter("broadcast/start", Reg)
	BroadcastsResolved = metrics.NewRegisteredMeter("broadcast/resolve", Reg)
	BroadcastFailures  = metrics.NewRegisteredMeter("broadcast/failure", Reg)
	BroadcastTimer     = metrics.NewRegisteredTimer("broadcast/resolve/latency", Reg)
)

var (
	MemAllocs = metrics.GetOrRegisterGauge("memory/allocs", Reg)
	MemFrees  = metrics.GetOrRegisterGauge("memory/frees", Reg)
	MemInuse  = metrics.GetOrRegisterGauge("memory/inuse", Reg)
	MemPauses = metrics.GetOrRegisterGauge("memory/pauses", Reg)

	DiskReads      = metrics.GetOrRegisterGauge("disk/readcount", Reg)
	DiskReadBytes  = metrics.GetOrRegisterGauge("disk/readdata", Reg)
	DiskWrites     = metrics.GetOrRegisterGauge("disk/writecount", Reg)
	DiskWriteBytes = metrics.GetOrRegisterGauge("disk/writedata", Reg)
)

// diskStats is the per process disk I/O statistics.
type diskStats struct {
	ReadCount  int64 // Number of read operations executed
	ReadBytes  int64 // Total number of bytes read
	WriteCount int64 // Number of write operations executed
	WriteBytes int64 // Total number of byte written
}

// Collect periodically appends a JSON snapshot of the registry, along with
// process memory and disk stats, to file. Meant to run in its own goroutine
// for the lifetime of a daemon process.
func Collect(file string) {
	f, err := os.OpenFile(file, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
	if err != nil {
		glog.Fatal(err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	encoder := json.NewEncoder(w)

	for range time.Tick(3 * time.Second) {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		MemAllocs.Update(int64(mem.Mallocs))
		MemFrees.Update(int64(mem.Frees))
		MemInuse.Update(int64(mem.Alloc))
		MemPauses.Update(int64(mem.PauseTotalNs))

		var disk diskStats
		readDiskStats(&disk)
		DiskReads.Update(disk.ReadCount)
		DiskReadBytes.Update(disk.ReadBytes)
		DiskWrites.Update(disk.WriteCount)
		DiskWriteBytes.Update(disk.WriteBytes)

		if err := encoder.Encode(Reg); err != nil {
			glog.Errorf("metrics: log to %q: %s", file, err)
		}
		if err := w.Flush(); err != nil {
			glog.Errorf("metrics: log to %q: %s", file, err)
		}
	}
}
