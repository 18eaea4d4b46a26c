package devices

import (
	"context"
	"testing"

	"github.com/dokzlo13/homed/internal/event"
)

func TestRemoteTwoButtonMapping(t *testing.T) {
	var actions []bool
	r := NewIkeaRemote(
		IkeaRemoteConfig{ID: "r", Topic: "zigbee2mqtt/remote"},
		func(ctx context.Context, on bool) { actions = append(actions, on) },
		nil,
	)
	ctx := context.Background()

	press := func(action string) {
		r.OnMqtt(ctx, event.MqttMessage{
			Topic:   "zigbee2mqtt/remote",
			Payload: []byte(`{"action":"` + action + `"}`),
		})
	}

	press("on")
	press("off")
	press("brightness_move_up") // not mapped in two button mode
	press("arrow_left_click")   // unknown action

	if len(actions) != 2 || actions[0] != true || actions[1] != false {
		t.Errorf("actions = %v, want [true false]", actions)
	}
}

func TestRemoteSingleButtonMapping(t *testing.T) {
	var actions []bool
	r := NewIkeaRemote(
		IkeaRemoteConfig{ID: "r", Topic: "zigbee2mqtt/remote", SingleButton: true},
		func(ctx context.Context, on bool) { actions = append(actions, on) },
		nil,
	)
	ctx := context.Background()

	press := func(action string) {
		r.OnMqtt(ctx, event.MqttMessage{
			Topic:   "zigbee2mqtt/remote",
			Payload: []byte(`{"action":"` + action + `"}`),
		})
	}

	press("on")
	press("brightness_move_up")
	press("off") // not mapped in single button mode

	if len(actions) != 2 || actions[0] != true || actions[1] != false {
		t.Errorf("actions = %v, want [true false]", actions)
	}
}

func TestRemoteBatteryCallback(t *testing.T) {
	var levels []float64
	r := NewIkeaRemote(
		IkeaRemoteConfig{ID: "r", Topic: "zigbee2mqtt/remote"},
		nil,
		func(ctx context.Context, level float64) { levels = append(levels, level) },
	)

	r.OnMqtt(context.Background(), event.MqttMessage{
		Topic:   "zigbee2mqtt/remote",
		Payload: []byte(`{"action":"on","battery":74}`),
	})

	if len(levels) != 1 || levels[0] != 74 {
		t.Errorf("levels = %v, want [74]", levels)
	}
}

func TestRemoteBatteryOnlyReport(t *testing.T) {
	var actions []bool
	var levels []float64
	r := NewIkeaRemote(
		IkeaRemoteConfig{ID: "r", Topic: "zigbee2mqtt/remote"},
		func(ctx context.Context, on bool) { actions = append(actions, on) },
		func(ctx context.Context, level float64) { levels = append(levels, level) },
	)

	// Remotes report battery state periodically without a button press.
	r.OnMqtt(context.Background(), event.MqttMessage{
		Topic:   "zigbee2mqtt/remote",
		Payload: []byte(`{"battery":38,"linkquality":102}`),
	})

	if len(actions) != 0 {
		t.Errorf("actions = %v, want none", actions)
	}
	if len(levels) != 1 || levels[0] != 38 {
		t.Errorf("levels = %v, want [38]", levels)
	}
}
