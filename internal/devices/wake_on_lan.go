package devices

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/event"
	"github.com/dokzlo13/homed/internal/fulfillment"
	"github.com/dokzlo13/homed/internal/messages"
	"github.com/dokzlo13/homed/internal/mqtt"
)

type WakeOnLANConfig struct {
	ID        string
	Name      string
	Room      string
	MAC       string
	Broadcast string
	Topic     string
}

// WakeOnLAN exposes waking a machine as an activatable scene. The scene
// is one way: there is no standard packet to put a machine back to
// sleep, so deactivation is refused.
type WakeOnLAN struct {
	cfg WakeOnLANConfig
}

func NewWakeOnLAN(cfg WakeOnLANConfig) *WakeOnLAN {
	if cfg.Broadcast == "" {
		cfg.Broadcast = "255.255.255.255:9"
	}
	return &WakeOnLAN{cfg: cfg}
}

func (w *WakeOnLAN) ID() string { return w.cfg.ID }

func (w *WakeOnLAN) Name() fulfillment.Name {
	return fulfillment.Name{Name: w.cfg.Name}
}

func (w *WakeOnLAN) Type() fulfillment.DeviceType { return fulfillment.TypeScene }

func (w *WakeOnLAN) Online(ctx context.Context) bool { return true }

func (w *WakeOnLAN) RoomHint() string { return w.cfg.Room }

func (w *WakeOnLAN) SceneAttributes() fulfillment.SceneAttributes {
	return fulfillment.SceneAttributes{SceneReversible: false}
}

func (w *WakeOnLAN) SetActive(ctx context.Context, deactivate bool) error {
	if deactivate {
		return fulfillment.ErrActionNotAvailable
	}
	if err := w.wake(); err != nil {
		log.Error().Err(err).Str("device", w.cfg.ID).Msg("Failed to send magic packet")
		return fulfillment.ErrTransientError
	}
	log.Debug().Str("device", w.cfg.ID).Str("mac", w.cfg.MAC).Msg("Magic packet sent")
	return nil
}

// MqttTopics is empty when no activation topic is configured.
func (w *WakeOnLAN) MqttTopics() []string {
	if w.cfg.Topic == "" {
		return nil
	}
	return []string{w.cfg.Topic}
}

// OnMqtt lets automations trigger the wake-up over the broker.
func (w *WakeOnLAN) OnMqtt(ctx context.Context, msg event.MqttMessage) {
	if w.cfg.Topic == "" || !mqtt.TopicMatches(w.cfg.Topic, msg.Topic) {
		return
	}

	m, err := messages.ParseActivate(msg.Payload)
	if err != nil {
		log.Error().Err(err).Str("device", w.cfg.ID).Msg("Failed to parse activate message")
		return
	}
	if !m.Activate {
		return
	}
	if err := w.SetActive(ctx, false); err != nil {
		log.Error().Err(err).Str("device", w.cfg.ID).Msg("Failed to wake machine")
	}
}

// wake broadcasts the magic packet: six 0xFF bytes followed by the MAC
// repeated sixteen times.
func (w *WakeOnLAN) wake() error {
	mac, err := net.ParseMAC(w.cfg.MAC)
	if err != nil {
		return fmt.Errorf("parse mac %q: %w", w.cfg.MAC, err)
	}

	packet := make([]byte, 0, 6+16*len(mac))
	for i := 0; i < 6; i++ {
		packet = append(packet, 0xFF)
	}
	for i := 0; i < 16; i++ {
		packet = append(packet, mac...)
	}

	conn, err := net.Dial("udp", w.cfg.Broadcast)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.cfg.Broadcast, err)
	}
	defer conn.Close()

	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("send magic packet: %w", err)
	}
	return nil
}
