package devices

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/event"
	"github.com/dokzlo13/homed/internal/fulfillment"
	"github.com/dokzlo13/homed/internal/messages"
	"github.com/dokzlo13/homed/internal/mqtt"
)

// ContactKind maps the sensor onto an assistant device category.
type ContactKind string

const (
	ContactDoor   ContactKind = "door"
	ContactWindow ContactKind = "window"
	ContactDrawer ContactKind = "drawer"
)

type ContactSensorConfig struct {
	ID    string
	Name  string
	Room  string
	Topic string
	Kind  ContactKind
}

// ContactSensor is a binary open/close sensor. Toward the assistant it
// is query only: it reports fully open or fully closed and refuses
// movement commands.
type ContactSensor struct {
	cfg  ContactSensorConfig
	mu   sync.Mutex
	open bool
}

func NewContactSensor(cfg ContactSensorConfig) *ContactSensor {
	if cfg.Kind == "" {
		cfg.Kind = ContactDoor
	}
	return &ContactSensor{cfg: cfg}
}

func (c *ContactSensor) ID() string { return c.cfg.ID }

func (c *ContactSensor) Name() fulfillment.Name {
	return fulfillment.Name{Name: c.cfg.Name}
}

func (c *ContactSensor) Type() fulfillment.DeviceType {
	switch c.cfg.Kind {
	case ContactWindow:
		return fulfillment.TypeWindow
	case ContactDrawer:
		return fulfillment.TypeDrawer
	default:
		return fulfillment.TypeDoor
	}
}

func (c *ContactSensor) Online(ctx context.Context) bool { return true }

func (c *ContactSensor) RoomHint() string { return c.cfg.Room }

func (c *ContactSensor) MqttTopics() []string { return []string{c.cfg.Topic} }

// OnMqtt mirrors the sensor report. Contact true means the sensor
// halves touch, so the door is closed.
func (c *ContactSensor) OnMqtt(ctx context.Context, msg event.MqttMessage) {
	if !mqtt.TopicMatches(c.cfg.Topic, msg.Topic) {
		return
	}

	m, err := messages.ParseContact(msg.Payload)
	if err != nil {
		log.Error().Err(err).Str("device", c.cfg.ID).Msg("Failed to parse contact report")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	open := !m.Contact
	if open == c.open {
		return
	}
	c.open = open
	log.Debug().Str("device", c.cfg.ID).Bool("open", open).Msg("Contact state updated")
}

func (c *ContactSensor) OpenPercent(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return 100, nil
	}
	return 0, nil
}

func (c *ContactSensor) SetOpenPercent(ctx context.Context, percent int) error {
	return fulfillment.ErrActionNotAvailable
}

func (c *ContactSensor) OpenCloseAttributes() fulfillment.OpenCloseAttributes {
	return fulfillment.OpenCloseAttributes{
		DiscreteOnlyOpenClose: true,
		QueryOnlyOpenClose:    true,
	}
}
