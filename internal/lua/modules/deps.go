package modules

import (
	"context"

	"github.com/dokzlo13/homed/internal/astro"
	"github.com/dokzlo13/homed/internal/device"
	"github.com/dokzlo13/homed/internal/eventbus"
	"github.com/dokzlo13/homed/internal/hue"
	"github.com/dokzlo13/homed/internal/ledger"
	"github.com/dokzlo13/homed/internal/mqtt"
	"github.com/dokzlo13/homed/internal/ntfy"
	"github.com/dokzlo13/homed/internal/scheduler"
)

// Doer queues work onto the Lua worker goroutine. Callbacks handed out
// to Go code must go through it, only the worker may touch the VM.
type Doer interface {
	Do(ctx context.Context, work func(ctx context.Context)) bool
}

// Deps groups all dependencies the Lua modules can reach.
// This reduces constructor parameter count and makes dependencies explicit.
type Deps struct {
	Registry  *device.Registry
	Bus       *eventbus.Bus
	Mqtt      *mqtt.Client
	Ntfy      *ntfy.Client
	Hue       *hue.Bridge       // nil when no bridge is configured
	Astro     *astro.Calculator // nil when no coordinates are configured
	Scheduler *scheduler.Scheduler
	Ledger    *ledger.Ledger
}
