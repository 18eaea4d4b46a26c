package devices

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/event"
	"github.com/dokzlo13/homed/internal/messages"
	"github.com/dokzlo13/homed/internal/mqtt"
)

type PresenceSensorConfig struct {
	ID string
	// Topic is a wildcard filter; every matching topic is one presence
	// source, e.g. presence/+/+ tracks presence/<person>/<device>.
	Topic string
}

// PresenceSensor aggregates presence sources into the single
// anyone-home signal. A source reports with a boolean payload and is
// removed by publishing an empty retained payload on its topic.
type PresenceSensor struct {
	cfg PresenceSensorConfig
	bus EventSink

	mu      sync.Mutex
	sources map[string]bool
	present bool
}

func NewPresenceSensor(cfg PresenceSensorConfig, bus EventSink) *PresenceSensor {
	return &PresenceSensor{cfg: cfg, bus: bus, sources: make(map[string]bool)}
}

func (p *PresenceSensor) ID() string { return p.cfg.ID }

func (p *PresenceSensor) MqttTopics() []string { return []string{p.cfg.Topic} }

func (p *PresenceSensor) OnMqtt(ctx context.Context, msg event.MqttMessage) {
	if !mqtt.TopicMatches(p.cfg.Topic, msg.Topic) {
		return
	}

	p.mu.Lock()
	if len(msg.Payload) == 0 {
		delete(p.sources, msg.Topic)
	} else {
		m, err := messages.ParsePresence(msg.Payload)
		if err != nil {
			p.mu.Unlock()
			log.Error().Err(err).Str("device", p.cfg.ID).Str("topic", msg.Topic).Msg("Failed to parse presence report")
			return
		}
		p.sources[msg.Topic] = m.State
	}

	present := false
	for _, v := range p.sources {
		if v {
			present = true
			break
		}
	}
	changed := present != p.present
	p.present = present
	sources := len(p.sources)
	p.mu.Unlock()

	if changed {
		log.Debug().
			Str("device", p.cfg.ID).
			Bool("present", present).
			Int("sources", sources).
			Msg("Presence changed")
		p.bus.Publish(event.Presence{Present: present})
	}
}
