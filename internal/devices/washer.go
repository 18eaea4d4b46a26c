package devices

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/event"
	"github.com/dokzlo13/homed/internal/messages"
	"github.com/dokzlo13/homed/internal/mqtt"
	"github.com/dokzlo13/homed/internal/ntfy"
)

// Consecutive above-threshold reports before a cycle counts as running.
// Keeps door-lock and drum-fill blips from announcing a finished wash.
const washerHysteresis = 10

type WasherConfig struct {
	ID        string
	Topic     string
	Threshold float64
}

// Washer watches the power draw of a washing machine through a metering
// plug and raises one notification per finished cycle.
type Washer struct {
	cfg WasherConfig
	bus EventSink

	mu      sync.Mutex
	running int
}

func NewWasher(cfg WasherConfig, bus EventSink) *Washer {
	return &Washer{cfg: cfg, bus: bus}
}

func (w *Washer) ID() string { return w.cfg.ID }

func (w *Washer) MqttTopics() []string { return []string{w.cfg.Topic} }

func (w *Washer) OnMqtt(ctx context.Context, msg event.MqttMessage) {
	if !mqtt.TopicMatches(w.cfg.Topic, msg.Topic) {
		return
	}

	m, err := messages.ParsePower(msg.Payload)
	if err != nil {
		log.Error().Err(err).Str("device", w.cfg.ID).Msg("Failed to parse power report")
		return
	}

	w.mu.Lock()
	finished := false
	if m.Power >= w.cfg.Threshold {
		if w.running < washerHysteresis {
			w.running++
		}
	} else {
		finished = w.running >= washerHysteresis
		w.running = 0
	}
	w.mu.Unlock()

	if finished {
		log.Debug().Str("device", w.cfg.ID).Float64("power", m.Power).Msg("Washer cycle finished")
		w.bus.Publish(event.Notification{Notification: ntfy.Notification{
			Title:    "Laundry",
			Message:  "The washer is done",
			Tags:     []string{"basket"},
			Priority: ntfy.PriorityDefault,
		}})
	}
}
