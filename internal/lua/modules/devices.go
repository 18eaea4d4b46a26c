package modules

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/homed/internal/device"
	"github.com/dokzlo13/homed/internal/devices"
	"github.com/dokzlo13/homed/internal/event"
	"github.com/dokzlo13/homed/internal/ledger"
)

// DevicesModule provides the device constructors to Lua. The
// configuration script declares the home by calling them; each call
// builds the driver, registers it and subscribes its topics.
type DevicesModule struct {
	deps Deps
	doer Doer
}

// NewDevicesModule creates a new devices module
func NewDevicesModule(deps Deps, doer Doer) *DevicesModule {
	return &DevicesModule{deps: deps, doer: doer}
}

// Loader is the module loader for Lua
func (m *DevicesModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "ikea_outlet", L.NewFunction(m.ikeaOutlet))
	L.SetField(mod, "contact_sensor", L.NewFunction(m.contactSensor))
	L.SetField(mod, "air_filter", L.NewFunction(m.airFilter))
	L.SetField(mod, "wake_on_lan", L.NewFunction(m.wakeOnLAN))
	L.SetField(mod, "hue_group", L.NewFunction(m.hueGroup))
	L.SetField(mod, "hue_bridge", L.NewFunction(m.hueBridge))
	L.SetField(mod, "light_sensor", L.NewFunction(m.lightSensor))
	L.SetField(mod, "presence", L.NewFunction(m.presence))
	L.SetField(mod, "washer", L.NewFunction(m.washer))
	L.SetField(mod, "ikea_remote", L.NewFunction(m.ikeaRemote))
	L.SetField(mod, "debug_bridge", L.NewFunction(m.debugBridge))
	L.SetField(mod, "ntfy_relay", L.NewFunction(m.ntfyRelay))
	L.SetField(mod, "daylight", L.NewFunction(m.daylight))

	L.Push(mod)
	return 1
}

// register adds the device to the registry, subscribes its topics and
// records the registration. Failures abort the script: a home with a
// half-declared device list is worse than one that refuses to start.
func (m *DevicesModule) register(L *lua.LState, dev device.Device) {
	if err := m.deps.Registry.Register(dev); err != nil {
		L.RaiseError("failed to register device: %s", err.Error())
		return
	}

	if listener, ok := device.As[event.OnMqtt](dev); ok && m.deps.Mqtt != nil {
		for _, topic := range listener.MqttTopics() {
			if err := m.deps.Mqtt.Subscribe(topic); err != nil {
				L.RaiseError("failed to subscribe %q: %s", topic, err.Error())
				return
			}
		}
	}

	if err := m.deps.Ledger.Append(ledger.EventDeviceRegistered, "", map[string]any{"device": dev.ID()}); err != nil {
		log.Warn().Err(err).Str("device", dev.ID()).Msg("Failed to record device registration")
	}

	log.Info().Str("device", dev.ID()).Msg("Device registered")
}

// ikea_outlet{ id, topic, name, room, kind } - zigbee outlet, kind is
// "outlet" (default), "kettle" or "charger"
func (m *DevicesModule) ikeaOutlet(L *lua.LState) int {
	tbl := L.CheckTable(1)

	cfg := devices.IkeaOutletConfig{
		ID:    requireString(L, tbl, "id"),
		Name:  tableString(tbl, "name", ""),
		Room:  tableString(tbl, "room", ""),
		Topic: requireString(L, tbl, "topic"),
		Kind:  devices.OutletKind(tableString(tbl, "kind", "")),
	}

	m.register(L, devices.NewIkeaOutlet(cfg, m.deps.Mqtt))
	return 0
}

// contact_sensor{ id, topic, name, room, kind } - kind is "door"
// (default), "window" or "drawer"
func (m *DevicesModule) contactSensor(L *lua.LState) int {
	tbl := L.CheckTable(1)

	cfg := devices.ContactSensorConfig{
		ID:    requireString(L, tbl, "id"),
		Name:  tableString(tbl, "name", ""),
		Room:  tableString(tbl, "room", ""),
		Topic: requireString(L, tbl, "topic"),
		Kind:  devices.ContactKind(tableString(tbl, "kind", "")),
	}

	m.register(L, devices.NewContactSensor(cfg))
	return 0
}

// air_filter{ id, url, name, room, timeout_sec }
func (m *DevicesModule) airFilter(L *lua.LState) int {
	tbl := L.CheckTable(1)

	cfg := devices.AirFilterConfig{
		ID:      requireString(L, tbl, "id"),
		Name:    tableString(tbl, "name", ""),
		Room:    tableString(tbl, "room", ""),
		URL:     requireString(L, tbl, "url"),
		Timeout: time.Duration(tableFloat(tbl, "timeout_sec", 0) * float64(time.Second)),
	}

	m.register(L, devices.NewAirFilter(cfg))
	return 0
}

// wake_on_lan{ id, mac, name, room, broadcast, topic }
func (m *DevicesModule) wakeOnLAN(L *lua.LState) int {
	tbl := L.CheckTable(1)

	cfg := devices.WakeOnLANConfig{
		ID:        requireString(L, tbl, "id"),
		Name:      tableString(tbl, "name", ""),
		Room:      tableString(tbl, "room", ""),
		MAC:       requireString(L, tbl, "mac"),
		Broadcast: tableString(tbl, "broadcast", ""),
		Topic:     tableString(tbl, "topic", ""),
	}

	m.register(L, devices.NewWakeOnLAN(cfg))
	return 0
}

// hue_group{ id, group, name, room, scene, min_kelvin, max_kelvin }
func (m *DevicesModule) hueGroup(L *lua.LState) int {
	tbl := L.CheckTable(1)
	if m.deps.Hue == nil {
		L.RaiseError("hue_group requires a hue bridge in the config")
		return 0
	}

	cfg := devices.HueGroupConfig{
		ID:      requireString(L, tbl, "id"),
		Name:    tableString(tbl, "name", ""),
		Room:    tableString(tbl, "room", ""),
		GroupID: tableInt(tbl, "group", 0),
		SceneID: tableString(tbl, "scene", ""),
		MinK:    tableInt(tbl, "min_kelvin", 0),
		MaxK:    tableInt(tbl, "max_kelvin", 0),
	}
	if cfg.GroupID == 0 {
		L.RaiseError("missing required field %q", "group")
		return 0
	}

	m.register(L, devices.NewHueGroup(cfg, m.deps.Hue))
	return 0
}

// hue_bridge{ id, presence_sensor, darkness_sensor } - sensor ids of
// CLIP flag sensors on the bridge, 0 disables the mirror
func (m *DevicesModule) hueBridge(L *lua.LState) int {
	tbl := L.CheckTable(1)
	if m.deps.Hue == nil {
		L.RaiseError("hue_bridge requires a hue bridge in the config")
		return 0
	}

	cfg := devices.HueBridgeConfig{
		ID:               requireString(L, tbl, "id"),
		PresenceSensorID: tableInt(tbl, "presence_sensor", 0),
		DarknessSensorID: tableInt(tbl, "darkness_sensor", 0),
	}

	m.register(L, devices.NewHueBridge(cfg, m.deps.Hue))
	return 0
}

// light_sensor{ id, topic, min, max } - illuminance below min is dark,
// above max is light
func (m *DevicesModule) lightSensor(L *lua.LState) int {
	tbl := L.CheckTable(1)

	cfg := devices.LightSensorConfig{
		ID:    requireString(L, tbl, "id"),
		Topic: requireString(L, tbl, "topic"),
		Min:   tableInt(tbl, "min", 0),
		Max:   tableInt(tbl, "max", 0),
	}

	m.register(L, devices.NewLightSensor(cfg, m.deps.Bus))
	return 0
}

// presence{ id, topic } - topic is a wildcard filter, each matching
// topic is one presence source
func (m *DevicesModule) presence(L *lua.LState) int {
	tbl := L.CheckTable(1)

	cfg := devices.PresenceSensorConfig{
		ID:    requireString(L, tbl, "id"),
		Topic: requireString(L, tbl, "topic"),
	}

	m.register(L, devices.NewPresenceSensor(cfg, m.deps.Bus))
	return 0
}

// washer{ id, topic, threshold_watts }
func (m *DevicesModule) washer(L *lua.LState) int {
	tbl := L.CheckTable(1)

	cfg := devices.WasherConfig{
		ID:        requireString(L, tbl, "id"),
		Topic:     requireString(L, tbl, "topic"),
		Threshold: tableFloat(tbl, "threshold_watts", 0),
	}

	m.register(L, devices.NewWasher(cfg, m.deps.Bus))
	return 0
}

// ikea_remote{ id, topic, single_button, on_action = function(on),
// on_battery = function(level) }
func (m *DevicesModule) ikeaRemote(L *lua.LState) int {
	tbl := L.CheckTable(1)

	cfg := devices.IkeaRemoteConfig{
		ID:           requireString(L, tbl, "id"),
		Topic:        requireString(L, tbl, "topic"),
		SingleButton: tableBool(tbl, "single_button", false),
	}

	var onAction devices.RemoteCallback
	if fn := tableFunc(tbl, "on_action"); fn != nil {
		onAction = func(ctx context.Context, on bool) {
			m.call(ctx, L, cfg.ID, fn, lua.LBool(on))
		}
	}
	var onBattery devices.BatteryCallback
	if fn := tableFunc(tbl, "on_battery"); fn != nil {
		onBattery = func(ctx context.Context, level float64) {
			m.call(ctx, L, cfg.ID, fn, lua.LNumber(level))
		}
	}

	m.register(L, devices.NewIkeaRemote(cfg, onAction, onBattery))
	return 0
}

// debug_bridge{ id, topic } - republishes the derived signals under
// topic/presence and topic/darkness
func (m *DevicesModule) debugBridge(L *lua.LState) int {
	tbl := L.CheckTable(1)

	cfg := devices.DebugBridgeConfig{
		ID:    requireString(L, tbl, "id"),
		Topic: requireString(L, tbl, "topic"),
	}

	m.register(L, devices.NewDebugBridge(cfg, m.deps.Mqtt))
	return 0
}

// ntfy_relay{ id }
func (m *DevicesModule) ntfyRelay(L *lua.LState) int {
	tbl := L.CheckTable(1)
	if m.deps.Ntfy == nil {
		L.RaiseError("ntfy_relay requires a ntfy topic in the config")
		return 0
	}

	cfg := devices.NtfyRelayConfig{
		ID: requireString(L, tbl, "id"),
	}

	m.register(L, devices.NewNtfyRelay(cfg, m.deps.Ntfy))
	return 0
}

// daylight{ id } - solar darkness signal, refreshed every minute
func (m *DevicesModule) daylight(L *lua.LState) int {
	tbl := L.CheckTable(1)
	if m.deps.Astro == nil {
		L.RaiseError("daylight requires geo coordinates in the config")
		return 0
	}

	cfg := devices.DaylightConfig{
		ID: requireString(L, tbl, "id"),
	}

	d := devices.NewDaylight(cfg, m.deps.Astro, m.deps.Bus)
	m.register(L, d)

	err := m.deps.Scheduler.Add("daylight/"+cfg.ID, "* * * * *", func(ctx context.Context) {
		d.Refresh(ctx)
	})
	if err != nil {
		L.RaiseError("failed to schedule daylight refresh: %s", err.Error())
	}
	return 0
}

// call queues a script callback onto the Lua worker. The caller runs on
// a dispatch goroutine and must never touch the VM itself.
//
// The LState captured at declaration time stays valid because there is
// exactly one VM and it lives as long as the process.
func (m *DevicesModule) call(ctx context.Context, L *lua.LState, id string, fn *lua.LFunction, args ...lua.LValue) {
	queued := m.doer.Do(ctx, func(ctx context.Context) {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...); err != nil {
			log.Error().Err(err).Str("device", id).Msg("Device callback failed")
		}
	})
	if !queued {
		log.Warn().Str("device", id).Msg("Dropped device callback, lua worker unavailable")
	}
}
