// Package node provides the per-process Runtime context object: the single
// place a treebcastd process keeps its work directory, tracker address, and
// optional debug HTTP listener, threaded explicitly through every component
// that needs it rather than held in package-level globals. Tests construct
// as many Runtimes as they like in one process.
package node

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/rs/cors"
	"github.com/spf13/afero"

	"github.com/distcompute/treebcast/cache"
	"github.com/distcompute/treebcast/fallback"
	"github.com/distcompute/treebcast/internal/debug"
	"github.com/distcompute/treebcast/logger"
	"github.com/distcompute/treebcast/logger/glog"
	"github.com/distcompute/treebcast/registry"
)

// fs wraps afero.Fs so a Config can take its address and has a usable zero
// value (nil means "not yet initialized", resolved to the real OS
// filesystem lazily).
type fs struct {
	afero.Fs
}

// Config configures a Runtime. Unlike the teacher's node.Config, this
// carries no devp2p peer identity (no PrivateKey, no bootstrap node list) —
// this subsystem has no peer authentication layer per the broadcast spec's
// Non-goals — and instead carries exactly what a tree-broadcast process
// needs: a work directory for the filesystem fallback, the tracker's
// address, and an optional debug endpoint.
type Config struct {
	// WorkDir is the filesystem folder the fallback path reads and writes
	// under. If empty, it is resolved from the environment Registry at
	// KeyWorkDir; if that is unset too, the fallback is disabled and every
	// fallback read fails with errs.ErrFallbackUnavailable.
	WorkDir string

	// TrackerAddr is the tracker this process registers broadcasts with and
	// looks up guides through. If empty, it is resolved from the
	// environment Registry at KeyTreeBroadcastTracker when first needed.
	TrackerAddr string

	// DebugHTTPAddr, if set, starts a CORS-wrapped debug HTTP listener
	// exposing verbosity controls and a goroutine stack dump.
	DebugHTTPAddr string

	// CacheMaxBytes overrides the local value cache's byte budget. Zero
	// falls back to cache.DefaultMaxBytes.
	CacheMaxBytes int64

	// fs is the abstracted filesystem; nil resolves to the real OS
	// filesystem. Tests swap in afero.NewMemMapFs() via SetFs.
	fs *fs
}

// Runtime is a Config bound to a live environment Registry and (once
// StartDebugHTTP is called) a debug HTTP server. It is the "Runtime context object
// created once per process" called for by the broadcast design notes.
type Runtime struct {
	Config
	registry registry.Registry

	debugLn net.Listener

	broadcastsMu sync.Mutex
	broadcasts   map[string]interface{}

	cacheOnce sync.Once
	cache     *cache.Cache
}

// New constructs a Runtime. reg may be nil, in which case an in-memory
// registry.MemRegistry is used — sufficient for a single-process
// deployment or a test harness.
func New(cfg Config, reg registry.Registry) *Runtime {
	if reg == nil {
		reg = registry.NewMemRegistry()
	}
	r := &Runtime{Config: cfg, registry: reg}
	if cfg.WorkDir != "" {
		r.registry.Set(registry.KeyWorkDir, cfg.WorkDir)
	}
	if cfg.TrackerAddr != "" {
		r.registry.Set(registry.KeyTreeBroadcastTracker, cfg.TrackerAddr)
	}
	return r
}

// SetFs overrides the runtime's filesystem, used by tests to avoid real
// disk I/O.
func (r *Runtime) SetFs(afs afero.Fs) {
	r.fs = &fs{afs}
}

// Fs returns the runtime's filesystem, defaulting to the OS filesystem.
func (r *Runtime) Fs() afero.Fs {
	if r.fs == nil {
		r.fs = &fs{afero.NewOsFs()}
	}
	return r.fs
}

// ResolveWorkDir returns the configured work directory, falling back to the
// environment registry's KeyWorkDir entry. It returns "" when neither is
// set, which leaves the fallback unconfigured.
func (r *Runtime) ResolveWorkDir() string {
	if r.WorkDir != "" {
		return r.WorkDir
	}
	if v, ok := r.registry.Get(registry.KeyWorkDir); ok && v != "" {
		return v
	}
	return ""
}

// ResolveTrackerAddr returns the configured tracker address, falling back
// to the environment registry's KeyTreeBroadcastTracker entry.
func (r *Runtime) ResolveTrackerAddr() (string, error) {
	if r.TrackerAddr != "" {
		return r.TrackerAddr, nil
	}
	if v, ok := r.registry.Get(registry.KeyTreeBroadcastTracker); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("node: no tracker address configured or registered at %q", registry.KeyTreeBroadcastTracker)
}

// Registry returns the runtime's environment registry.
func (r *Runtime) Registry() registry.Registry {
	return r.registry
}

// StartDebugHTTP binds DebugHTTPAddr (if set) and begins serving a
// verbosity control (/debug/verbosity?level=N) and a goroutine stack dump
// (/debug/stacks); vmodule and backtrace are not exposed here. Both are wrapped
// in a permissive CORS policy the way the teacher wraps its RPC HTTP
// endpoint.
func (r *Runtime) StartDebugHTTP() error {
	if r.DebugHTTPAddr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", r.DebugHTTPAddr)
	if err != nil {
		return fmt.Errorf("node: debug http listen: %w", err)
	}
	r.debugLn = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/stacks", debug.StacksHandler)
	mux.HandleFunc("/debug/verbosity", func(w http.ResponseWriter, req *http.Request) {
		level := req.URL.Query().Get("level")
		if level == "" {
			http.Error(w, "missing level", http.StatusBadRequest)
			return
		}
		var v int
		if _, err := fmt.Sscanf(level, "%d", &v); err != nil {
			http.Error(w, "invalid level", http.StatusBadRequest)
			return
		}
		debug.Handler.Verbosity(v)
		w.WriteHeader(http.StatusNoContent)
	})

	handler := cors.AllowAll().Handler(mux)
	go func() {
		if err := http.Serve(ln, handler); err != nil {
			glog.V(logger.Debug).Infof("node: debug http server stopped: %v", err)
		}
	}()
	return nil
}

// StopDebugHTTP closes the debug listener, if one was started.
func (r *Runtime) StopDebugHTTP() {
	if r.debugLn != nil {
		r.debugLn.Close()
	}
}

// BroadcastState returns the per-broadcast local state registered under id,
// constructing it via create on first access. This is the "Runtime registry
// keyed by id" that holds everything a Handle needs beyond its id — a
// producer's live guide and block server, a consumer's seeding server once
// started — kept deliberately opaque to Runtime itself (package treebcast
// owns the concrete type) so this package stays free of a dependency on the
// domain packages.
func (r *Runtime) BroadcastState(id string, create func() interface{}) interface{} {
	r.broadcastsMu.Lock()
	defer r.broadcastsMu.Unlock()
	if r.broadcasts == nil {
		r.broadcasts = make(map[string]interface{})
	}
	if v, ok := r.broadcasts[id]; ok {
		return v
	}
	v := create()
	r.broadcasts[id] = v
	return v
}

// ForgetBroadcastState discards the local state registered under id, once a
// broadcast has terminated.
func (r *Runtime) ForgetBroadcastState(id string) {
	r.broadcastsMu.Lock()
	defer r.broadcastsMu.Unlock()
	delete(r.broadcasts, id)
}

// Cache returns this Runtime's process-local value cache, constructing it
// with CacheMaxBytes (cache.DefaultMaxBytes when zero) on first use.
func (r *Runtime) Cache() *cache.Cache {
	r.cacheOnce.Do(func() {
		r.cache = cache.New(r.CacheMaxBytes)
	})
	return r.cache
}

// Fallback returns a Fallback rooted at this Runtime's resolved work
// directory, bound to its filesystem.
func (r *Runtime) Fallback() *fallback.Fallback {
	return fallback.New(r.Fs(), r.ResolveWorkDir(), nil)
}
