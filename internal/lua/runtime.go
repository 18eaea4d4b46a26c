// Package lua hosts the configuration script. The script declares the
// home: it constructs devices, wires remote callbacks and defines
// schedules through the preloaded modules.
package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/homed/internal/lua/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = errors.New("lua runtime closed")

// Work is a unit of execution on the Lua VM. All Lua execution after
// script load MUST go through the work queue to ensure thread safety.
type Work = func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L    *lua.LState
	deps modules.Deps

	// Work queue for thread-safe Lua execution
	workQueue chan Work

	// Shutdown signaling - closing this channel signals senders to stop
	// Using a channel in select is race-free (unlike mutex + bool)
	closing   chan struct{}
	closeOnce sync.Once
	vmOnce    sync.Once
	started   atomic.Bool
	done      chan struct{}
}

// NewRuntime creates a new Lua runtime
func NewRuntime(deps modules.Deps) *Runtime {
	r := &Runtime{
		L:         lua.NewState(),
		deps:      deps,
		workQueue: make(chan Work, 100),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}

	r.registerModules()

	return r
}

// registerModules registers all Lua modules
func (r *Runtime) registerModules() {
	r.L.PreloadModule("log", modules.NewLogModule().Loader)
	r.L.PreloadModule("devices", modules.NewDevicesModule(r.deps, r).Loader)
	r.L.PreloadModule("mqtt", modules.NewMqttModule(r.deps.Mqtt).Loader)
	r.L.PreloadModule("ntfy", modules.NewNtfyModule(r.deps.Bus).Loader)
	r.L.PreloadModule("sched", modules.NewSchedModule(r.deps.Scheduler, r).Loader)
}

// LoadScript loads and executes the configuration script. It runs on
// the caller's goroutine and must complete before Start.
func (r *Runtime) LoadScript(path string) error {
	log.Info().Str("path", path).Msg("Loading configuration script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute configuration script: %w", err)
	}

	log.Info().Msg("Configuration script loaded")
	return nil
}

// Do queues work to be executed on the Lua VM (thread-safe, non-blocking).
// Returns false if the runtime is closing, the queue is full, or the
// context is cancelled.
func (r *Runtime) Do(ctx context.Context, work Work) bool {
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSync queues work and blocks until there is space (thread-safe, blocking).
// Returns an error if the runtime is closing or the context is cancelled.
func (r *Runtime) DoSync(ctx context.Context, work Work) error {
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- work:
		return nil
	}
}

// Start launches the worker goroutine - the ONLY goroutine that touches
// the VM once the script has been loaded.
func (r *Runtime) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.run(ctx)
}

func (r *Runtime) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			r.drainQueue(ctx)
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

// drainQueue processes any remaining work in the queue before exiting
func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

// executeWork runs a single work item with panic recovery
func (r *Runtime) executeWork(ctx context.Context, work Work) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	// Set context on LState so modules can access it via L.Context()
	r.L.SetContext(ctx)
	work(ctx)
}

// Close signals the runtime to stop accepting work, waits for the
// worker to drain and tears down the VM. Safe to call concurrently with
// Do/DoSync - they will see the closing signal.
func (r *Runtime) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		close(r.closing)
	})

	if !r.started.Load() {
		r.vmOnce.Do(r.L.Close)
		return nil
	}

	select {
	case <-r.done:
		r.vmOnce.Do(r.L.Close)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
