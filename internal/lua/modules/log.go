package modules

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

// LogModule provides logging functions to Lua
type LogModule struct{}

// NewLogModule creates a new log module
func NewLogModule() *LogModule {
	return &LogModule{}
}

// Loader is the module loader for Lua
func (m *LogModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "debug", m.emitter(L, log.Debug))
	L.SetField(mod, "info", m.emitter(L, log.Info))
	L.SetField(mod, "warn", m.emitter(L, log.Warn))
	L.SetField(mod, "error", m.emitter(L, log.Error))

	L.Push(mod)
	return 1
}

// emitter builds a log function taking a message and an optional table
// of structured fields, e.g. log.info("lamp on", { room = "bedroom" }).
func (m *LogModule) emitter(L *lua.LState, level func() *zerolog.Event) *lua.LFunction {
	return L.NewFunction(func(L *lua.LState) int {
		msg := L.CheckString(1)

		event := level().Str("source", "lua")
		if tbl, ok := L.Get(2).(*lua.LTable); ok {
			tbl.ForEach(func(k, v lua.LValue) {
				event = event.Interface(lua.LVAsString(k), LuaToGo(v))
			})
		}
		event.Msg(msg)

		return 0
	})
}
