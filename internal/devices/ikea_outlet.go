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

// OutletKind selects behavior details for an IkeaOutlet.
type OutletKind string

const (
	OutletPlain   OutletKind = "outlet"
	OutletKettle  OutletKind = "kettle"
	OutletCharger OutletKind = "charger"
)

type IkeaOutletConfig struct {
	ID    string
	Name  string
	Room  string
	Topic string
	Kind  OutletKind
}

// IkeaOutlet is a zigbee smart outlet. The local state mirrors the
// device's own reports; SetOn only publishes the command and lets the
// report echo update the mirror, so the hub and the device cannot drift.
type IkeaOutlet struct {
	cfg  IkeaOutletConfig
	mqtt Publisher

	mu sync.Mutex
	on bool
}

func NewIkeaOutlet(cfg IkeaOutletConfig, pub Publisher) *IkeaOutlet {
	if cfg.Kind == "" {
		cfg.Kind = OutletPlain
	}
	return &IkeaOutlet{cfg: cfg, mqtt: pub}
}

func (o *IkeaOutlet) ID() string { return o.cfg.ID }

func (o *IkeaOutlet) Name() fulfillment.Name {
	return fulfillment.Name{Name: o.cfg.Name, DefaultNames: []string{"Outlet"}}
}

func (o *IkeaOutlet) Type() fulfillment.DeviceType {
	if o.cfg.Kind == OutletKettle {
		return fulfillment.TypeKettle
	}
	return fulfillment.TypeOutlet
}

func (o *IkeaOutlet) Online(ctx context.Context) bool { return true }

func (o *IkeaOutlet) RoomHint() string { return o.cfg.Room }

func (o *IkeaOutlet) DeviceInfo() fulfillment.Info {
	return fulfillment.Info{Manufacturer: "IKEA", Model: "TRADFRI control outlet"}
}

func (o *IkeaOutlet) MqttTopics() []string { return []string{o.cfg.Topic} }

// OnMqtt mirrors state reported by the outlet. Unchanged reports are
// dropped so retained messages cause no churn.
func (o *IkeaOutlet) OnMqtt(ctx context.Context, msg event.MqttMessage) {
	if !mqtt.TopicMatches(o.cfg.Topic, msg.Topic) {
		return
	}

	m, err := messages.ParseOnOff(msg.Payload)
	if err != nil {
		log.Error().Err(err).Str("device", o.cfg.ID).Msg("Failed to parse state report")
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if m.On() == o.on {
		return
	}
	o.on = m.On()
	log.Debug().Str("device", o.cfg.ID).Bool("on", o.on).Msg("Outlet state updated")
}

// OnPresence switches the outlet off when the house empties. Chargers
// are left alone so batteries finish charging.
func (o *IkeaOutlet) OnPresence(ctx context.Context, present bool) {
	if present || o.cfg.Kind == OutletCharger {
		return
	}

	log.Debug().Str("device", o.cfg.ID).Msg("Nobody home, turning outlet off")
	if err := o.SetOn(ctx, false); err != nil {
		log.Error().Err(err).Str("device", o.cfg.ID).Msg("Failed to turn outlet off")
	}
}

func (o *IkeaOutlet) On(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.on, nil
}

func (o *IkeaOutlet) SetOn(ctx context.Context, on bool) error {
	if err := o.mqtt.PublishJSON(o.cfg.Topic+"/set", messages.NewOnOff(on), false); err != nil {
		log.Error().Err(err).Str("device", o.cfg.ID).Msg("Failed to publish command")
		return fulfillment.ErrTransientError
	}
	return nil
}
