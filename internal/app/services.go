package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/api"
	"github.com/dokzlo13/homed/internal/astro"
	"github.com/dokzlo13/homed/internal/config"
	"github.com/dokzlo13/homed/internal/db"
	"github.com/dokzlo13/homed/internal/device"
	"github.com/dokzlo13/homed/internal/event"
	"github.com/dokzlo13/homed/internal/eventbus"
	"github.com/dokzlo13/homed/internal/fulfillment"
	"github.com/dokzlo13/homed/internal/hue"
	"github.com/dokzlo13/homed/internal/ledger"
	"github.com/dokzlo13/homed/internal/lua"
	"github.com/dokzlo13/homed/internal/lua/modules"
	"github.com/dokzlo13/homed/internal/mqtt"
	"github.com/dokzlo13/homed/internal/ntfy"
	"github.com/dokzlo13/homed/internal/scheduler"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger

	// Device layer
	Registry *device.Registry
	Bus      *eventbus.Bus

	// Integrations
	Mqtt  *mqtt.Client
	Ntfy  *ntfy.Client
	Hue   *hue.Bridge       // nil when no bridge is configured
	Astro *astro.Calculator // nil without coordinates

	// High-level services
	Scheduler *scheduler.Scheduler
	Engine    *fulfillment.Engine
	Lua       *lua.Runtime
	API       *api.Server
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize ledger
	s.Ledger = ledger.New(database.DB)

	// Device registry and event bus
	s.Registry = device.NewRegistry()
	s.Bus = eventbus.New(s.Registry, cfg.EventBus.GetQueueSize())

	// Broker messages enter the system through the bus; devices filter
	// by topic themselves.
	s.Mqtt = mqtt.New(mqtt.Config{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		KeepAlive:      cfg.MQTT.KeepAlive.Duration(),
		ConnectTimeout: cfg.MQTT.ConnectTimeout.Duration(),
	}, func(topic string, payload []byte) {
		s.Bus.Publish(event.MqttMessage{Topic: topic, Payload: payload})
	})

	s.Ntfy = ntfy.NewClient(cfg.Ntfy.Server, cfg.Ntfy.Topic, cfg.Ntfy.Timeout.Duration())

	if cfg.Hue.Bridge != "" {
		s.Hue = hue.NewBridge(cfg.Hue.Bridge, cfg.Hue.Token, cfg.Hue.Timeout.Duration(), cfg.Hue.RateLimitRPS)
	}

	tz, err := time.LoadLocation(cfg.Geo.Timezone)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Geo.Timezone, err)
	}

	if cfg.Geo.Lat != 0 || cfg.Geo.Lon != 0 {
		s.Astro = astro.NewCalculator(cfg.Geo.Lat, cfg.Geo.Lon, tz)
	} else {
		log.Warn().Msg("No lat/lon configured, daylight devices are unavailable")
	}

	s.Scheduler = scheduler.New(s.Ledger, tz)
	s.Engine = fulfillment.NewEngine(s.Registry)

	s.Lua = lua.NewRuntime(modules.Deps{
		Registry:  s.Registry,
		Bus:       s.Bus,
		Mqtt:      s.Mqtt,
		Ntfy:      s.Ntfy,
		Hue:       s.Hue,
		Astro:     s.Astro,
		Scheduler: s.Scheduler,
		Ledger:    s.Ledger,
	})

	s.API = api.NewServer(cfg.API.Host, cfg.API.Port, api.AuthConfig{
		UserinfoURL: cfg.API.Auth.UserinfoURL,
		Secret:      cfg.API.Auth.Secret,
		Timeout:     cfg.API.Auth.Timeout.Duration(),
	}, s.Engine, s.Ledger)

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a service fails after startup.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	s.Bus.Start(ctx)

	if err := s.Mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("connect to MQTT broker: %w", err)
	}

	// The home declaration registers every device and schedule before
	// any event flows.
	if err := s.Lua.LoadScript(s.cfg.Script); err != nil {
		return err
	}
	s.Lua.Start(ctx)

	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	err := s.Scheduler.Add("ledger/cleanup", "0 4 * * *", func(ctx context.Context) {
		removed, err := s.Ledger.DeleteOlderThan(retention)
		if err != nil {
			log.Error().Err(err).Msg("Ledger cleanup failed")
			return
		}
		log.Info().Int64("removed", removed).Msg("Ledger cleanup finished")
	})
	if err != nil {
		return err
	}

	s.Scheduler.Start(ctx)

	go func() {
		if err := s.API.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			onFatalError(fmt.Errorf("api server: %w", err))
		}
	}()

	return nil
}

// Stop gracefully stops all services. Producers go down before the
// transports they publish through.
func (s *Services) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()

	if s.Scheduler != nil {
		if err := s.Scheduler.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("Scheduler shutdown timed out")
		}
	}
	if s.Bus != nil {
		s.Bus.Close(ctx)
	}
	if s.Lua != nil {
		if err := s.Lua.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Lua runtime shutdown timed out")
		}
	}
	if s.Mqtt != nil {
		s.Mqtt.Disconnect()
	}
	s.Close()
	return nil
}

// Close releases held resources. Safe to call on a partially
// constructed container.
func (s *Services) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
}
