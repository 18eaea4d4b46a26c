package devices

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/messages"
)

type DebugBridgeConfig struct {
	ID    string
	Topic string
}

// DebugBridge republishes the derived presence and darkness signals to
// MQTT, retained, so they can be inspected with any broker client.
type DebugBridge struct {
	cfg  DebugBridgeConfig
	mqtt Publisher
}

func NewDebugBridge(cfg DebugBridgeConfig, pub Publisher) *DebugBridge {
	return &DebugBridge{cfg: cfg, mqtt: pub}
}

func (d *DebugBridge) ID() string { return d.cfg.ID }

func (d *DebugBridge) OnPresence(ctx context.Context, present bool) {
	if err := d.mqtt.PublishJSON(d.cfg.Topic+"/presence", messages.NewPresence(present), true); err != nil {
		log.Error().Err(err).Str("device", d.cfg.ID).Msg("Failed to republish presence")
	}
}

func (d *DebugBridge) OnDarkness(ctx context.Context, dark bool) {
	if err := d.mqtt.PublishJSON(d.cfg.Topic+"/darkness", messages.NewDarkness(dark), true); err != nil {
		log.Error().Err(err).Str("device", d.cfg.ID).Msg("Failed to republish darkness")
	}
}
