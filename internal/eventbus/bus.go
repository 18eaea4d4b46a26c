package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/device"
	"github.com/dokzlo13/homed/internal/event"
)

// DefaultQueueSize bounds the inbound event queue.
const DefaultQueueSize = 100

// Bus fans events out to registered devices. A single dispatcher
// processes the queue: every handler of event N completes before event
// N+1 is taken up, so devices observe events in publication order.
// Handlers of a single event run concurrently, one goroutine per device.
type Bus struct {
	registry *device.Registry
	queue    chan event.Event

	// Closing this channel signals publishers to stop. A channel in a
	// select is race-free, unlike mutex + bool.
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a bus dispatching to the devices in registry.
func New(registry *device.Registry, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		registry: registry,
		queue:    make(chan event.Event, queueSize),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Publish queues an event for dispatch and reports whether it was
// accepted. Non-blocking: when the queue is full or the bus is shutting
// down the event is dropped with a warning.
func (b *Bus) Publish(ev event.Event) bool {
	select {
	case <-b.closing:
		log.Warn().Str("event", eventName(ev)).Msg("Event bus closing, dropping event")
		return false
	case b.queue <- ev:
		return true
	default:
		log.Warn().Str("event", eventName(ev)).Msg("Event bus queue full, dropping event")
		return false
	}
}

// Start launches the dispatcher.
func (b *Bus) Start(ctx context.Context) {
	go b.run(ctx)
	log.Debug().Int("queue_size", cap(b.queue)).Msg("Event bus started")
}

func (b *Bus) run(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closing:
			b.drainQueue(ctx)
			return
		case ev := <-b.queue:
			b.dispatch(ctx, ev)
		}
	}
}

// drainQueue dispatches events still queued at shutdown.
func (b *Bus) drainQueue(ctx context.Context) {
	for {
		select {
		case ev := <-b.queue:
			b.dispatch(ctx, ev)
		default:
			return
		}
	}
}

// dispatch runs every matching handler concurrently and joins them all
// before returning.
func (b *Bus) dispatch(ctx context.Context, ev event.Event) {
	var wg sync.WaitGroup
	for _, d := range b.registry.Devices() {
		handler := handlerFor(d, ev)
		if handler == nil {
			continue
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("device", id).
						Str("event", eventName(ev)).
						Msg("Event handler panicked")
				}
			}()
			handler(ctx)
		}(d.ID())
	}
	wg.Wait()
}

// handlerFor narrows d to the listener capability matching ev. A nil
// return means the device does not care about this event.
func handlerFor(d device.Device, ev event.Event) func(context.Context) {
	switch e := ev.(type) {
	case event.MqttMessage:
		if l, ok := device.As[event.OnMqtt](d); ok {
			return func(ctx context.Context) { l.OnMqtt(ctx, e) }
		}
	case event.Darkness:
		if l, ok := device.As[event.OnDarkness](d); ok {
			return func(ctx context.Context) { l.OnDarkness(ctx, e.Dark) }
		}
	case event.Presence:
		if l, ok := device.As[event.OnPresence](d); ok {
			return func(ctx context.Context) { l.OnPresence(ctx, e.Present) }
		}
	case event.Notification:
		if l, ok := device.As[event.OnNotification](d); ok {
			return func(ctx context.Context) { l.OnNotification(ctx, e.Notification) }
		}
	}
	return nil
}

func eventName(ev event.Event) string {
	switch ev.(type) {
	case event.MqttMessage:
		return "mqtt_message"
	case event.Darkness:
		return "darkness"
	case event.Presence:
		return "presence"
	case event.Notification:
		return "notification"
	default:
		return "unknown"
	}
}

// Close stops the dispatcher after draining the queue, bounded by ctx.
func (b *Bus) Close(ctx context.Context) {
	b.closeOnce.Do(func() {
		close(b.closing)
	})

	select {
	case <-b.done:
		log.Debug().Msg("Event bus stopped")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}
