package devices

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/hue"
)

type HueBridgeConfig struct {
	ID               string
	PresenceSensorID int
	DarknessSensorID int
}

// HueBridge mirrors hub-level presence and darkness into CLIP flag
// sensors on the bridge, so Hue-native rules and motion zones can react
// to them without round-tripping through the hub.
type HueBridge struct {
	cfg    HueBridgeConfig
	bridge *hue.Bridge
}

func NewHueBridge(cfg HueBridgeConfig, bridge *hue.Bridge) *HueBridge {
	return &HueBridge{cfg: cfg, bridge: bridge}
}

func (h *HueBridge) ID() string { return h.cfg.ID }

func (h *HueBridge) OnPresence(ctx context.Context, present bool) {
	if h.cfg.PresenceSensorID == 0 {
		return
	}
	if err := h.bridge.SetSensorFlag(ctx, h.cfg.PresenceSensorID, present); err != nil {
		log.Error().Err(err).Str("device", h.cfg.ID).Msg("Failed to mirror presence to bridge")
	}
}

func (h *HueBridge) OnDarkness(ctx context.Context, dark bool) {
	if h.cfg.DarknessSensorID == 0 {
		return
	}
	if err := h.bridge.SetSensorFlag(ctx, h.cfg.DarknessSensorID, dark); err != nil {
		log.Error().Err(err).Str("device", h.cfg.ID).Msg("Failed to mirror darkness to bridge")
	}
}
