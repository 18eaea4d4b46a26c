package devices

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/ntfy"
)

type NtfyRelayConfig struct {
	ID string
}

// NtfyRelay forwards notification events to the push service. Keeping
// it a device means anything that can publish an event can notify,
// without holding a client reference.
type NtfyRelay struct {
	cfg    NtfyRelayConfig
	client Notifier
}

func NewNtfyRelay(cfg NtfyRelayConfig, client Notifier) *NtfyRelay {
	return &NtfyRelay{cfg: cfg, client: client}
}

func (n *NtfyRelay) ID() string { return n.cfg.ID }

func (n *NtfyRelay) OnNotification(ctx context.Context, notification ntfy.Notification) {
	if err := n.client.Send(ctx, notification); err != nil {
		log.Error().Err(err).Str("device", n.cfg.ID).Msg("Failed to deliver notification")
	}
}
