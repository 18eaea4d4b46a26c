package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/dokzlo13/homed/internal/device"
)

// outlet implements OnOff and nothing else.
type outlet struct {
	id     string
	online bool

	mu    sync.Mutex
	on    bool
	onErr error
	setOn error
	sets  []bool
}

func newOutlet(id string) *outlet { return &outlet{id: id, online: true} }

func (o *outlet) ID() string { return o.id }
func (o *outlet) Name() Name { return Name{Name: "Outlet"} }
func (o *outlet) Type() DeviceType { return TypeOutlet }
func (o *outlet) Online(ctx context.Context) bool { return o.online }

func (o *outlet) On(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.onErr != nil {
		return false, o.onErr
	}
	return o.on, nil
}

func (o *outlet) SetOn(ctx context.Context, on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.setOn != nil {
		return o.setOn
	}
	o.on = on
	o.sets = append(o.sets, on)
	return nil
}

func (o *outlet) setCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sets)
}

// lamp implements OnOff and Brightness plus the optional descriptor
// capabilities.
type lamp struct {
	outlet
	room string
	info Info

	brightness   int
	brightErr    error
	brightSetErr error
	brightSet    []int
}

func newLamp(id string) *lamp {
	return &lamp{outlet: outlet{id: id, online: true}, room: "Bedroom"}
}

func (l *lamp) Type() DeviceType { return TypeLight }
func (l *lamp) RoomHint() string { return l.room }
func (l *lamp) DeviceInfo() Info { return l.info }

func (l *lamp) Brightness(ctx context.Context) (int, error) {
	if l.brightErr != nil {
		return 0, l.brightErr
	}
	return l.brightness, nil
}

func (l *lamp) SetBrightness(ctx context.Context, percent int) error {
	if l.brightSetErr != nil {
		return l.brightSetErr
	}
	l.brightSet = append(l.brightSet, percent)
	l.brightness = percent
	return nil
}

// sceneDevice implements Scene only.
type sceneDevice struct {
	id         string
	reversible bool
	activated  []bool
	setErr     error
}

func (s *sceneDevice) ID() string { return s.id }
func (s *sceneDevice) Name() Name { return Name{Name: "Scene"} }
func (s *sceneDevice) Type() DeviceType { return TypeScene }
func (s *sceneDevice) Online(ctx context.Context) bool { return true }

func (s *sceneDevice) SetActive(ctx context.Context, deactivate bool) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.activated = append(s.activated, deactivate)
	return nil
}

func (s *sceneDevice) SceneAttributes() SceneAttributes {
	return SceneAttributes{SceneReversible: s.reversible}
}

// fan implements FanSpeed with the fixed speed list.
type fan struct {
	id    string
	speed string
}

func (f *fan) ID() string { return f.id }
func (f *fan) Name() Name { return Name{Name: "Filter"} }
func (f *fan) Type() DeviceType { return TypeAirPurifier }
func (f *fan) Online(ctx context.Context) bool { return true }

func (f *fan) AvailableFanSpeeds() AvailableFanSpeeds {
	return SpeedList("off", "low", "medium", "high")
}

func (f *fan) CurrentFanSpeed(ctx context.Context) (string, error) { return f.speed, nil }

func (f *fan) SetFanSpeed(ctx context.Context, speed string) error {
	f.speed = speed
	return nil
}

// mute is an event-only device with no assistant-facing capability.
type mute struct {
	id string
}

func (m *mute) ID() string { return m.id }

func newEngine(t *testing.T, devs ...device.Device) *Engine {
	t.Helper()
	registry := device.NewRegistry()
	for _, d := range devs {
		if err := registry.Register(d); err != nil {
			t.Fatalf("register %s: %v", d.ID(), err)
		}
	}
	return NewEngine(registry)
}

func jsonEqual(t *testing.T, got []byte, want string) {
	t.Helper()
	var g, w any
	if err := json.Unmarshal(got, &g); err != nil {
		t.Fatalf("got is not valid json: %v\n%s", err, got)
	}
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("want is not valid json: %v", err)
	}
	if !reflect.DeepEqual(g, w) {
		t.Errorf("json mismatch\ngot:  %s\nwant: %s", got, want)
	}
}

func handle(t *testing.T, e *Engine, intent string, payload string) *Response {
	t.Helper()
	req := &Request{RequestID: "req-1", Inputs: []Input{{Intent: intent, Payload: json.RawMessage(payload)}}}
	resp, err := e.Handle(context.Background(), "user", req)
	if err != nil {
		t.Fatalf("handle %s: %v", intent, err)
	}
	return resp
}

func TestSyncCountsOnlyDiscoverableDevices(t *testing.T) {
	e := newEngine(t, newOutlet("a"), &mute{id: "b"}, newLamp("c"))

	resp := handle(t, e, IntentSync, "")
	payload := resp.Payload.(SyncPayload)

	if payload.AgentUserID != "user" {
		t.Errorf("agentUserId = %q, want %q", payload.AgentUserID, "user")
	}
	if len(payload.Devices) != 2 {
		t.Fatalf("got %d descriptors, want 2", len(payload.Devices))
	}
	for _, d := range payload.Devices {
		if d.ID == "b" {
			t.Error("event-only device leaked into sync")
		}
	}
}

func TestSyncDescriptor(t *testing.T) {
	l := newLamp("bedroom/nightstand")
	l.info = Info{Manufacturer: "Company", Model: "Light II"}
	e := newEngine(t, l)

	resp := handle(t, e, IntentSync, "")
	payload := resp.Payload.(SyncPayload)
	if len(payload.Devices) != 1 {
		t.Fatalf("got %d descriptors, want 1", len(payload.Devices))
	}

	got, err := json.Marshal(payload.Devices[0])
	if err != nil {
		t.Fatal(err)
	}
	jsonEqual(t, got, `{
		"id": "bedroom/nightstand",
		"type": "action.devices.types.LIGHT",
		"traits": ["action.devices.traits.OnOff", "action.devices.traits.Brightness"],
		"name": {"name": "Outlet"},
		"willReportState": false,
		"roomHint": "Bedroom",
		"deviceInfo": {"manufacturer": "Company", "model": "Light II"}
	}`)
}

func TestSyncFanSpeedAttributes(t *testing.T) {
	e := newEngine(t, &fan{id: "filter", speed: "low"})

	resp := handle(t, e, IntentSync, "")
	payload := resp.Payload.(SyncPayload)

	got, err := json.Marshal(payload.Devices[0].Attributes)
	if err != nil {
		t.Fatal(err)
	}
	jsonEqual(t, got, `{
		"availableFanSpeeds": {
			"speeds": [
				{"speed_name": "off", "speed_values": [{"speed_synonym": ["Off"], "lang": "en"}]},
				{"speed_name": "low", "speed_values": [{"speed_synonym": ["Low"], "lang": "en"}]},
				{"speed_name": "medium", "speed_values": [{"speed_synonym": ["Medium"], "lang": "en"}]},
				{"speed_name": "high", "speed_values": [{"speed_synonym": ["High"], "lang": "en"}]}
			],
			"ordered": true
		}
	}`)
}

func TestQueryUnknownDevice(t *testing.T) {
	e := newEngine(t, newOutlet("123"))

	resp := handle(t, e, IntentQuery, `{"devices":[{"id":"456"}]}`)
	payload := resp.Payload.(QueryPayload)

	got, err := json.Marshal(payload.Devices["456"])
	if err != nil {
		t.Fatal(err)
	}
	jsonEqual(t, got, `{"online": false, "status": "OFFLINE", "errorCode": "deviceNotFound"}`)
}

func TestQueryMergesTraitState(t *testing.T) {
	l := newLamp("lamp")
	l.on = true
	l.brightness = 85
	e := newEngine(t, l)

	resp := handle(t, e, IntentQuery, `{"devices":[{"id":"lamp"}]}`)
	payload := resp.Payload.(QueryPayload)

	got, err := json.Marshal(payload.Devices["lamp"])
	if err != nil {
		t.Fatal(err)
	}
	jsonEqual(t, got, `{"online": true, "status": "SUCCESS", "on": true, "brightness": 85}`)
}

func TestQueryOfflineDeviceReportsKnownState(t *testing.T) {
	o := newOutlet("kettle")
	o.online = false
	o.on = true
	e := newEngine(t, o)

	resp := handle(t, e, IntentQuery, `{"devices":[{"id":"kettle"}]}`)
	payload := resp.Payload.(QueryPayload)

	got, err := json.Marshal(payload.Devices["kettle"])
	if err != nil {
		t.Fatal(err)
	}
	jsonEqual(t, got, `{"online": false, "status": "OFFLINE", "on": true}`)
}

func TestQueryPartialStateOnTraitFailure(t *testing.T) {
	l := newLamp("lamp")
	l.on = true
	l.brightErr = errors.New("sensor hiccup")
	e := newEngine(t, l)

	resp := handle(t, e, IntentQuery, `{"devices":[{"id":"lamp"}]}`)
	entry := resp.Payload.(QueryPayload).Devices["lamp"]

	if entry.Status != StatusSuccess || !entry.Online {
		t.Errorf("got status=%s online=%t, want SUCCESS online", entry.Status, entry.Online)
	}
	if _, ok := entry.State["on"]; !ok {
		t.Error("working trait missing from state")
	}
	if _, ok := entry.State["brightness"]; ok {
		t.Error("failing trait leaked into state")
	}
}

func TestExecuteSuccessAndNotFound(t *testing.T) {
	o := newOutlet("123")
	e := newEngine(t, o)

	resp := handle(t, e, IntentExecute, `{
		"commands": [{
			"devices": [{"id": "123"}, {"id": "456"}],
			"execution": [{"command": "action.devices.commands.OnOff", "params": {"on": true}}]
		}]
	}`)

	got, err := json.Marshal(resp.Payload)
	if err != nil {
		t.Fatal(err)
	}
	jsonEqual(t, got, `{
		"commands": [
			{"ids": ["123"], "status": "SUCCESS", "states": {"on": true, "online": true}},
			{"ids": ["456"], "status": "ERROR", "errorCode": "deviceNotFound"}
		]
	}`)

	if !o.on {
		t.Error("command did not reach the device")
	}
}

func TestExecuteShortCircuitsAfterError(t *testing.T) {
	l := newLamp("lamp")
	l.brightSetErr = ErrTransientError
	e := newEngine(t, l)

	resp := handle(t, e, IntentExecute, `{
		"commands": [{
			"devices": [{"id": "lamp"}],
			"execution": [
				{"command": "action.devices.commands.BrightnessAbsolute", "params": {"brightness": 50}},
				{"command": "action.devices.commands.OnOff", "params": {"on": true}}
			]
		}]
	}`)

	if l.setCount() != 0 {
		t.Error("second command ran after the first failed")
	}

	payload := resp.Payload.(ExecutePayload)
	if len(payload.Commands) != 1 {
		t.Fatalf("got %d entries, want 1", len(payload.Commands))
	}
	entry := payload.Commands[0]
	if entry.Status != StatusError || entry.ErrorCode != "transientError" {
		t.Errorf("got status=%s code=%s, want ERROR transientError", entry.Status, entry.ErrorCode)
	}
}

func TestExecuteOfflineRunsNothing(t *testing.T) {
	o := newOutlet("kettle")
	o.online = false
	e := newEngine(t, o)

	resp := handle(t, e, IntentExecute, `{
		"commands": [{
			"devices": [{"id": "kettle"}],
			"execution": [{"command": "action.devices.commands.OnOff", "params": {"on": true}}]
		}]
	}`)

	if o.setCount() != 0 {
		t.Error("command ran on an offline device")
	}

	got, err := json.Marshal(resp.Payload)
	if err != nil {
		t.Fatal(err)
	}
	jsonEqual(t, got, `{
		"commands": [
			{"ids": ["kettle"], "status": "OFFLINE", "states": {"online": false}}
		]
	}`)
}

func TestExecuteCommandWithoutCapability(t *testing.T) {
	s := &sceneDevice{id: "wake"}
	e := newEngine(t, s)

	resp := handle(t, e, IntentExecute, `{
		"commands": [{
			"devices": [{"id": "wake"}],
			"execution": [{"command": "action.devices.commands.OnOff", "params": {"on": true}}]
		}]
	}`)

	entry := resp.Payload.(ExecutePayload).Commands[0]
	if entry.Status != StatusError || entry.ErrorCode != "actionNotAvailable" {
		t.Errorf("got status=%s code=%s, want ERROR actionNotAvailable", entry.Status, entry.ErrorCode)
	}
}

func TestExecuteGroupsErrorsByCode(t *testing.T) {
	o := newOutlet("ok")
	e := newEngine(t, o)

	resp := handle(t, e, IntentExecute, `{
		"commands": [{
			"devices": [{"id": "ok"}, {"id": "gone-1"}, {"id": "gone-2"}],
			"execution": [{"command": "action.devices.commands.OnOff", "params": {"on": true}}]
		}]
	}`)

	payload := resp.Payload.(ExecutePayload)
	if len(payload.Commands) != 2 {
		t.Fatalf("got %d entries, want 2", len(payload.Commands))
	}
	if payload.Commands[0].Status != StatusSuccess {
		t.Errorf("first entry status = %s, want SUCCESS", payload.Commands[0].Status)
	}
	errEntry := payload.Commands[1]
	if errEntry.ErrorCode != "deviceNotFound" {
		t.Errorf("error code = %s, want deviceNotFound", errEntry.ErrorCode)
	}
	if !reflect.DeepEqual(errEntry.IDs, []string{"gone-1", "gone-2"}) {
		t.Errorf("error ids = %v, want [gone-1 gone-2]", errEntry.IDs)
	}
}

func TestExecuteExceptionStatus(t *testing.T) {
	o := newOutlet("sock")
	o.setOn = DeviceException("lowBattery")
	e := newEngine(t, o)

	resp := handle(t, e, IntentExecute, `{
		"commands": [{
			"devices": [{"id": "sock"}],
			"execution": [{"command": "action.devices.commands.OnOff", "params": {"on": true}}]
		}]
	}`)

	entry := resp.Payload.(ExecutePayload).Commands[0]
	if entry.Status != StatusExceptions || entry.ErrorCode != "lowBattery" {
		t.Errorf("got status=%s code=%s, want EXCEPTIONS lowBattery", entry.Status, entry.ErrorCode)
	}
}

func TestExecuteUnexpectedErrorBecomesTransient(t *testing.T) {
	o := newOutlet("sock")
	o.setOn = errors.New("wire fell out")
	e := newEngine(t, o)

	resp := handle(t, e, IntentExecute, `{
		"commands": [{
			"devices": [{"id": "sock"}],
			"execution": [{"command": "action.devices.commands.OnOff", "params": {"on": true}}]
		}]
	}`)

	entry := resp.Payload.(ExecutePayload).Commands[0]
	if entry.Status != StatusError || entry.ErrorCode != "transientError" {
		t.Errorf("got status=%s code=%s, want ERROR transientError", entry.Status, entry.ErrorCode)
	}
}

func TestExecuteMergesStatesAcrossDevices(t *testing.T) {
	a := newOutlet("a")
	l := newLamp("b")
	e := newEngine(t, a, l)

	resp := handle(t, e, IntentExecute, `{
		"commands": [{
			"devices": [{"id": "a"}, {"id": "b"}],
			"execution": [{"command": "action.devices.commands.OnOff", "params": {"on": true}}]
		}]
	}`)

	payload := resp.Payload.(ExecutePayload)
	if len(payload.Commands) != 1 {
		t.Fatalf("got %d entries, want 1", len(payload.Commands))
	}
	entry := payload.Commands[0]
	if !reflect.DeepEqual(entry.IDs, []string{"a", "b"}) {
		t.Errorf("ids = %v, want [a b]", entry.IDs)
	}
	if entry.States == nil || !entry.States.Online {
		t.Fatal("success entry missing online states")
	}
	if on, _ := entry.States.State["on"].(bool); !on {
		t.Error("merged states missing on=true")
	}
	if _, ok := entry.States.State["brightness"]; !ok {
		t.Error("merged states missing brightness")
	}
}

func TestExecuteScene(t *testing.T) {
	s := &sceneDevice{id: "movie-night", reversible: true}
	e := newEngine(t, s)

	handle(t, e, IntentExecute, `{
		"commands": [{
			"devices": [{"id": "movie-night"}],
			"execution": [{"command": "action.devices.commands.ActivateScene", "params": {"deactivate": false}}]
		}]
	}`)

	if len(s.activated) != 1 || s.activated[0] != false {
		t.Errorf("scene activations = %v, want [false]", s.activated)
	}
}

func TestHandleRequestEnvelope(t *testing.T) {
	e := newEngine(t, newOutlet("123"))

	raw := `{
		"requestId": "ff36a3cc-ec34-11e6-b1a0-64510650abcf",
		"inputs": [{
			"intent": "action.devices.EXECUTE",
			"payload": {
				"commands": [{
					"devices": [{"id": "123"}],
					"execution": [{"command": "action.devices.commands.OnOff", "params": {"on": true}}]
				}]
			}
		}]
	}`
	var req Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}

	resp, err := e.Handle(context.Background(), "user", &req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.RequestID != "ff36a3cc-ec34-11e6-b1a0-64510650abcf" {
		t.Errorf("requestId not echoed, got %q", resp.RequestID)
	}
}

func TestHandleRejectsEmptyInputs(t *testing.T) {
	e := newEngine(t)

	_, err := e.Handle(context.Background(), "user", &Request{RequestID: "r"})
	if !errors.Is(err, ErrNoIntent) {
		t.Fatalf("got %v, want ErrNoIntent", err)
	}
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	e := newEngine(t)

	req := &Request{RequestID: "r", Inputs: []Input{{Intent: IntentQuery, Payload: json.RawMessage(`42`)}}}
	if _, err := e.Handle(context.Background(), "user", req); err == nil {
		t.Fatal("malformed payload accepted")
	}
}

func TestHandleRejectsUnknownCommand(t *testing.T) {
	e := newEngine(t, newOutlet("a"))

	req := &Request{RequestID: "r", Inputs: []Input{{
		Intent: IntentExecute,
		Payload: json.RawMessage(`{
			"commands": [{
				"devices": [{"id": "a"}],
				"execution": [{"command": "action.devices.commands.SelfDestruct"}]
			}]
		}`),
	}}}
	if _, err := e.Handle(context.Background(), "user", req); err == nil {
		t.Fatal("unknown command accepted")
	}
}

func TestHandleRejectsUnknownIntent(t *testing.T) {
	e := newEngine(t)

	req := &Request{RequestID: "r", Inputs: []Input{{Intent: "action.devices.DISCONNECT"}}}
	if _, err := e.Handle(context.Background(), "user", req); err == nil {
		t.Fatal("unknown intent accepted")
	}
}
