package messages

import (
	"encoding/json"
	"testing"
)

func TestParseOnOff(t *testing.T) {
	m, err := ParseOnOff([]byte(`{"state":"ON"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !m.On() {
		t.Error("expected ON to report on")
	}

	m, err = ParseOnOff([]byte(`{"state":"OFF","linkquality":87}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.On() {
		t.Error("expected OFF to report off")
	}
}

func TestParseOnOffRejectsUnknownState(t *testing.T) {
	if _, err := ParseOnOff([]byte(`{"state":"TOGGLE"}`)); err == nil {
		t.Error("unknown state accepted")
	}
	if _, err := ParseOnOff([]byte(`not json`)); err == nil {
		t.Error("malformed payload accepted")
	}
}

func TestNewOnOffRoundTrip(t *testing.T) {
	b, err := json.Marshal(NewOnOff(true))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"state":"ON"}` {
		t.Errorf("got %s, want {\"state\":\"ON\"}", b)
	}
}

func TestParseRemote(t *testing.T) {
	m, err := ParseRemote([]byte(`{"action":"brightness_move_up","battery":87}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Action != RemoteBrightnessMoveUp {
		t.Errorf("action = %q", m.Action)
	}
	if m.Battery == nil || *m.Battery != 87 {
		t.Errorf("battery = %v, want 87", m.Battery)
	}

	m, err = ParseRemote([]byte(`{"battery":12}`))
	if err != nil {
		t.Fatalf("battery-only report rejected: %v", err)
	}
	if m.Action != "" {
		t.Errorf("action = %q, want empty", m.Action)
	}
	if m.Battery == nil || *m.Battery != 12 {
		t.Errorf("battery = %v, want 12", m.Battery)
	}
}

func TestParseContact(t *testing.T) {
	m, err := ParseContact([]byte(`{"contact":false,"battery":100}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Contact {
		t.Error("expected contact=false")
	}
}

func TestParseIlluminance(t *testing.T) {
	m, err := ParseIlluminance([]byte(`{"illuminance":23420}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Illuminance != 23420 {
		t.Errorf("illuminance = %d", m.Illuminance)
	}
}

func TestParsePower(t *testing.T) {
	m, err := ParsePower([]byte(`{"power":412.5,"voltage":231}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Power != 412.5 {
		t.Errorf("power = %v", m.Power)
	}
}
