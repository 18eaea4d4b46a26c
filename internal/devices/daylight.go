package devices

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/astro"
	"github.com/dokzlo13/homed/internal/event"
)

type DaylightConfig struct {
	ID string
}

// Daylight derives the darkness signal from the solar calendar instead
// of a physical sensor. Refresh is driven by the scheduler; the device
// publishes only on transitions.
type Daylight struct {
	cfg  DaylightConfig
	calc *astro.Calculator
	bus  EventSink

	mu    sync.Mutex
	known bool
	dark  bool
}

func NewDaylight(cfg DaylightConfig, calc *astro.Calculator, bus EventSink) *Daylight {
	return &Daylight{cfg: cfg, calc: calc, bus: bus}
}

func (d *Daylight) ID() string { return d.cfg.ID }

// Refresh recomputes the darkness state for the current wall clock time
// and publishes the transition if it changed. The first call always
// publishes so late-registered listeners start from a known state.
func (d *Daylight) Refresh(ctx context.Context) {
	now := time.Now().In(d.calc.Location())
	dark := d.calc.DarkAt(now)

	d.mu.Lock()
	changed := !d.known || dark != d.dark
	d.known = true
	d.dark = dark
	d.mu.Unlock()

	if changed {
		log.Debug().Str("device", d.cfg.ID).Bool("dark", dark).Msg("Daylight state changed")
		d.bus.Publish(event.Darkness{Dark: dark})
	}
}
