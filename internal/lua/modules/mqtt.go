package modules

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/homed/internal/mqtt"
)

// MqttModule provides mqtt.publish() to Lua for automations that talk
// to the broker directly, without going through a device.
type MqttModule struct {
	client *mqtt.Client
}

// NewMqttModule creates a new mqtt module
func NewMqttModule(client *mqtt.Client) *MqttModule {
	return &MqttModule{client: client}
}

// Loader is the module loader for Lua
func (m *MqttModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "publish", L.NewFunction(m.publish))

	L.Push(mod)
	return 1
}

// publish(topic, payload [, retained]) -> (ok, err)
func (m *MqttModule) publish(L *lua.LState) int {
	topic := L.CheckString(1)
	payload := L.CheckString(2)
	retained := L.OptBool(3, false)

	if err := m.client.Publish(topic, []byte(payload), retained); err != nil {
		L.Push(lua.LBool(false))
		L.Push(lua.LString(err.Error()))
		return 2
	}

	L.Push(lua.LBool(true))
	L.Push(lua.LNil)
	return 2
}
