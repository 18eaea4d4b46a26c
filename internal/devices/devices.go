// Package devices holds the concrete device drivers. Each driver
// implements the base device contract plus whichever listener and
// assistant-facing capabilities fit the hardware; everything else in the
// hub discovers those capabilities by casting.
package devices

import (
	"context"

	"github.com/dokzlo13/homed/internal/event"
	"github.com/dokzlo13/homed/internal/ntfy"
)

// Publisher is the outbound MQTT surface drivers use.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	PublishJSON(topic string, v any, retained bool) error
}

// EventSink accepts events for fan-out to all devices.
type EventSink interface {
	Publish(ev event.Event) bool
}

// Notifier delivers notifications to an external push service.
type Notifier interface {
	Send(ctx context.Context, n ntfy.Notification) error
}
