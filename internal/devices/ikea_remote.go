package devices

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/event"
	"github.com/dokzlo13/homed/internal/messages"
	"github.com/dokzlo13/homed/internal/mqtt"
)

// RemoteCallback receives the on/off intent derived from a button press.
type RemoteCallback func(ctx context.Context, on bool)

// BatteryCallback receives battery level reports, in percent.
type BatteryCallback func(ctx context.Context, level float64)

type IkeaRemoteConfig struct {
	ID    string
	Topic string
	// SingleButton treats the dimmer pair as a toggle: the on button
	// turns on, holding it turns off.
	SingleButton bool
}

// IkeaRemote translates remote presses into script callbacks. The
// remote drives automations, not a fixed device, which is why the
// targets live in the configuration script.
type IkeaRemote struct {
	cfg       IkeaRemoteConfig
	onAction  RemoteCallback
	onBattery BatteryCallback
}

func NewIkeaRemote(cfg IkeaRemoteConfig, onAction RemoteCallback, onBattery BatteryCallback) *IkeaRemote {
	return &IkeaRemote{cfg: cfg, onAction: onAction, onBattery: onBattery}
}

func (r *IkeaRemote) ID() string { return r.cfg.ID }

func (r *IkeaRemote) MqttTopics() []string { return []string{r.cfg.Topic} }

func (r *IkeaRemote) OnMqtt(ctx context.Context, msg event.MqttMessage) {
	if !mqtt.TopicMatches(r.cfg.Topic, msg.Topic) {
		return
	}

	m, err := messages.ParseRemote(msg.Payload)
	if err != nil {
		log.Error().Err(err).Str("device", r.cfg.ID).Msg("Failed to parse remote report")
		return
	}

	if m.Battery != nil && r.onBattery != nil {
		r.onBattery(ctx, *m.Battery)
	}
	if m.Action == "" {
		return
	}

	on, ok := r.mapAction(m.Action)
	if !ok {
		log.Debug().Str("device", r.cfg.ID).Str("action", m.Action).Msg("Ignoring remote action")
		return
	}
	if r.onAction == nil {
		return
	}
	log.Debug().Str("device", r.cfg.ID).Str("action", m.Action).Bool("on", on).Msg("Remote pressed")
	r.onAction(ctx, on)
}

func (r *IkeaRemote) mapAction(action string) (on bool, ok bool) {
	if r.cfg.SingleButton {
		switch action {
		case messages.RemoteOn:
			return true, true
		case messages.RemoteBrightnessMoveUp:
			return false, true
		default:
			return false, false
		}
	}
	switch action {
	case messages.RemoteOn:
		return true, true
	case messages.RemoteOff:
		return false, true
	default:
		return false, false
	}
}
