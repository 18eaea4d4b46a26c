package modules

import (
	"context"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/homed/internal/scheduler"
)

// SchedModule provides sched.cron() and sched.remove() to Lua.
//
// Setup failures raise a Lua error and abort the script; runtime
// callback failures are logged and swallowed so one broken automation
// cannot take out the scheduler.
type SchedModule struct {
	scheduler *scheduler.Scheduler
	doer      Doer
}

// NewSchedModule creates a new sched module
func NewSchedModule(sched *scheduler.Scheduler, doer Doer) *SchedModule {
	return &SchedModule{scheduler: sched, doer: doer}
}

// Loader is the module loader for Lua
func (m *SchedModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "cron", L.NewFunction(m.cron))
	L.SetField(mod, "remove", L.NewFunction(m.remove))

	L.Push(mod)
	return 1
}

// cron(id, expr, fn) - Register a cron job running a Lua callback,
// e.g. sched.cron("morning", "30 6 * * 1-5", function() ... end)
func (m *SchedModule) cron(L *lua.LState) int {
	id := L.CheckString(1)
	expr := L.CheckString(2)
	fn := L.CheckFunction(3)

	job := func(ctx context.Context) {
		queued := m.doer.Do(ctx, func(ctx context.Context) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				log.Error().Err(err).Str("schedule_id", id).Msg("Schedule callback failed")
			}
		})
		if !queued {
			log.Warn().Str("schedule_id", id).Msg("Dropped schedule callback, lua worker unavailable")
		}
	}

	if err := m.scheduler.Add(id, expr, job); err != nil {
		L.RaiseError("failed to define schedule: %s", err.Error())
	}
	return 0
}

// remove(id) - Drop a schedule
func (m *SchedModule) remove(L *lua.LState) int {
	m.scheduler.Remove(L.CheckString(1))
	return 0
}
