// Package messages holds the wire payloads exchanged with zigbee2mqtt
// style devices over MQTT.
package messages

import (
	"encoding/json"
	"fmt"
	"time"
)

func decode(payload []byte, v any, what string) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", what, err)
	}
	return nil
}

// OnOff mirrors the binary switch payload.
type OnOff struct {
	State string `json:"state"`
}

const (
	stateOn  = "ON"
	stateOff = "OFF"
)

func NewOnOff(on bool) OnOff {
	if on {
		return OnOff{State: stateOn}
	}
	return OnOff{State: stateOff}
}

func (m OnOff) On() bool { return m.State == stateOn }

func ParseOnOff(payload []byte) (OnOff, error) {
	var m OnOff
	if err := decode(payload, &m, "on/off"); err != nil {
		return OnOff{}, err
	}
	if m.State != stateOn && m.State != stateOff {
		return OnOff{}, fmt.Errorf("invalid on/off state %q", m.State)
	}
	return m, nil
}

// Activate triggers activatable devices.
type Activate struct {
	Activate bool `json:"activate"`
}

func ParseActivate(payload []byte) (Activate, error) {
	var m Activate
	if err := decode(payload, &m, "activate"); err != nil {
		return Activate{}, err
	}
	return m, nil
}

// Presence is one presence source's report. Updated is the report time
// in unix milliseconds, zero when the source does not carry one.
type Presence struct {
	State   bool  `json:"state"`
	Updated int64 `json:"updated,omitempty"`
}

func NewPresence(state bool) Presence {
	return Presence{State: state, Updated: time.Now().UnixMilli()}
}

func ParsePresence(payload []byte) (Presence, error) {
	var m Presence
	if err := decode(payload, &m, "presence"); err != nil {
		return Presence{}, err
	}
	return m, nil
}

// Darkness reports the ambient light state.
type Darkness struct {
	State   bool  `json:"state"`
	Updated int64 `json:"updated,omitempty"`
}

func NewDarkness(dark bool) Darkness {
	return Darkness{State: dark, Updated: time.Now().UnixMilli()}
}

// Illuminance is a light sensor report.
type Illuminance struct {
	Illuminance int `json:"illuminance"`
}

func ParseIlluminance(payload []byte) (Illuminance, error) {
	var m Illuminance
	if err := decode(payload, &m, "illuminance"); err != nil {
		return Illuminance{}, err
	}
	return m, nil
}

// Contact is a door or window sensor report. Contact true means closed.
type Contact struct {
	Contact bool `json:"contact"`
}

func ParseContact(payload []byte) (Contact, error) {
	var m Contact
	if err := decode(payload, &m, "contact"); err != nil {
		return Contact{}, err
	}
	return m, nil
}

// Power is a power metering report in watts.
type Power struct {
	Power float64 `json:"power"`
}

func ParsePower(payload []byte) (Power, error) {
	var m Power
	if err := decode(payload, &m, "power"); err != nil {
		return Power{}, err
	}
	return m, nil
}

// Remote actions reported by an IKEA style remote.
const (
	RemoteOn                 = "on"
	RemoteOff                = "off"
	RemoteBrightnessMoveUp   = "brightness_move_up"
	RemoteBrightnessMoveDown = "brightness_move_down"
	RemoteBrightnessStop     = "brightness_stop"
)

// Remote is a button press report. Remotes also publish periodic
// battery-only reports, so both fields may be absent.
type Remote struct {
	Action  string   `json:"action"`
	Battery *float64 `json:"battery,omitempty"`
}

func ParseRemote(payload []byte) (Remote, error) {
	var m Remote
	if err := decode(payload, &m, "remote"); err != nil {
		return Remote{}, err
	}
	return m, nil
}
