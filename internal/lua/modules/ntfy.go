package modules

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/homed/internal/event"
	"github.com/dokzlo13/homed/internal/eventbus"
	"github.com/dokzlo13/homed/internal/ntfy"
)

// NtfyModule provides ntfy.notify() to Lua. Notifications go through
// the event bus, so the relay device delivers them and other listeners
// can observe them.
type NtfyModule struct {
	bus *eventbus.Bus
}

// NewNtfyModule creates a new ntfy module
func NewNtfyModule(bus *eventbus.Bus) *NtfyModule {
	return &NtfyModule{bus: bus}
}

// Loader is the module loader for Lua
func (m *NtfyModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "notify", L.NewFunction(m.notify))

	L.Push(mod)
	return 1
}

// notify{ title, message, tags, priority } -> (ok, err)
func (m *NtfyModule) notify(L *lua.LState) int {
	tbl := L.CheckTable(1)

	n := ntfy.Notification{
		Title:    tableString(tbl, "title", ""),
		Message:  requireString(L, tbl, "message"),
		Tags:     tableStrings(tbl, "tags"),
		Priority: ntfy.Priority(tableInt(tbl, "priority", 0)),
	}

	if !m.bus.Publish(event.Notification{Notification: n}) {
		L.Push(lua.LBool(false))
		L.Push(lua.LString("event bus unavailable"))
		return 2
	}

	L.Push(lua.LBool(true))
	L.Push(lua.LNil)
	return 2
}
