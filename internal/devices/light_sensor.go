package devices

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/event"
	"github.com/dokzlo13/homed/internal/messages"
	"github.com/dokzlo13/homed/internal/mqtt"
)

type LightSensorConfig struct {
	ID    string
	Topic string
	// Illuminance below Min flips to dark, above Max flips to light.
	// Readings in between keep the previous state.
	Min int
	Max int
}

// LightSensor derives the global darkness signal from an illuminance
// sensor. The Min/Max band gives hysteresis so clouds do not toggle the
// whole house.
type LightSensor struct {
	cfg LightSensorConfig
	bus EventSink

	mu   sync.Mutex
	dark bool
}

func NewLightSensor(cfg LightSensorConfig, bus EventSink) *LightSensor {
	return &LightSensor{cfg: cfg, bus: bus}
}

func (s *LightSensor) ID() string { return s.cfg.ID }

func (s *LightSensor) MqttTopics() []string { return []string{s.cfg.Topic} }

func (s *LightSensor) OnMqtt(ctx context.Context, msg event.MqttMessage) {
	if !mqtt.TopicMatches(s.cfg.Topic, msg.Topic) {
		return
	}

	m, err := messages.ParseIlluminance(msg.Payload)
	if err != nil {
		log.Error().Err(err).Str("device", s.cfg.ID).Msg("Failed to parse illuminance report")
		return
	}

	s.mu.Lock()
	dark := s.dark
	if m.Illuminance < s.cfg.Min {
		dark = true
	} else if m.Illuminance > s.cfg.Max {
		dark = false
	}
	changed := dark != s.dark
	s.dark = dark
	s.mu.Unlock()

	if changed {
		log.Debug().
			Str("device", s.cfg.ID).
			Bool("dark", dark).
			Int("illuminance", m.Illuminance).
			Msg("Darkness changed")
		s.bus.Publish(event.Darkness{Dark: dark})
	}
}
