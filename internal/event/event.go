// Package event defines the events fanned out to devices and the
// listener capabilities devices implement to receive them.
package event

import (
	"context"

	"github.com/dokzlo13/homed/internal/ntfy"
)

// Event is an inbound occurrence delivered to every registered device
// implementing the matching listener capability. Delivery is broadcast:
// the bus never filters by topic or source, devices do.
type Event interface {
	isEvent()
}

// MqttMessage is a raw message received from the broker.
type MqttMessage struct {
	Topic   string
	Payload []byte
}

// Darkness reports a change of ambient light.
type Darkness struct {
	Dark bool
}

// Presence reports whether anyone is home.
type Presence struct {
	Present bool
}

// Notification asks notification devices to deliver a message.
type Notification struct {
	Notification ntfy.Notification
}

func (MqttMessage) isEvent()  {}
func (Darkness) isEvent()     {}
func (Presence) isEvent()     {}
func (Notification) isEvent() {}

// OnMqtt is implemented by devices consuming broker messages. MqttTopics
// lists the filters the transport subscribes to on the device's behalf;
// it plays no part in bus-level delivery, which stays broadcast.
type OnMqtt interface {
	MqttTopics() []string
	OnMqtt(ctx context.Context, msg MqttMessage)
}

// OnDarkness is implemented by devices reacting to light transitions.
type OnDarkness interface {
	OnDarkness(ctx context.Context, dark bool)
}

// OnPresence is implemented by devices reacting to occupancy changes.
type OnPresence interface {
	OnPresence(ctx context.Context, present bool)
}

// OnNotification is implemented by devices that deliver notifications.
type OnNotification interface {
	OnNotification(ctx context.Context, n ntfy.Notification)
}
