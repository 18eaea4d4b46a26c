package devices

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/fulfillment"
)

// Fan speeds the filter firmware understands.
const (
	SpeedOff    = "off"
	SpeedLow    = "low"
	SpeedMedium = "medium"
	SpeedHigh   = "high"
)

type AirFilterConfig struct {
	ID      string
	Name    string
	Room    string
	URL     string
	Timeout time.Duration
}

// AirFilter drives a DIY air purifier over its REST interface. The
// firmware exposes the fan state and an SHT31 sensor; both are read on
// demand, nothing is cached.
type AirFilter struct {
	cfg  AirFilterConfig
	http *http.Client
}

func NewAirFilter(cfg AirFilterConfig) *AirFilter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AirFilter{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

type fanState struct {
	Speed string `json:"speed"`
}

type sensorData struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

func (a *AirFilter) getFanState(ctx context.Context) (fanState, error) {
	var state fanState
	if err := a.getJSON(ctx, "/state/fan", &state); err != nil {
		return fanState{}, err
	}
	return state, nil
}

func (a *AirFilter) getSensorData(ctx context.Context) (sensorData, error) {
	var data sensorData
	if err := a.getJSON(ctx, "/state/sensor", &data); err != nil {
		return sensorData{}, err
	}
	return data, nil
}

func (a *AirFilter) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.URL+path, nil)
	if err != nil {
		return err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: filter returned %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (a *AirFilter) putFanState(ctx context.Context, speed string) error {
	body, err := json.Marshal(fanState{Speed: speed})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.cfg.URL+"/state/fan", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("put fan state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("put fan state: filter returned %s", resp.Status)
	}
	return nil
}

func (a *AirFilter) ID() string { return a.cfg.ID }

func (a *AirFilter) Name() fulfillment.Name {
	return fulfillment.Name{Name: a.cfg.Name, DefaultNames: []string{"Air Filter"}}
}

func (a *AirFilter) Type() fulfillment.DeviceType { return fulfillment.TypeAirPurifier }

// Online probes the sensor endpoint; an unreachable filter is offline.
func (a *AirFilter) Online(ctx context.Context) bool {
	_, err := a.getSensorData(ctx)
	return err == nil
}

func (a *AirFilter) RoomHint() string { return a.cfg.Room }

func (a *AirFilter) On(ctx context.Context) (bool, error) {
	state, err := a.getFanState(ctx)
	if err != nil {
		return false, fulfillment.ErrDeviceOffline
	}
	return state.Speed != SpeedOff, nil
}

// SetOn maps the binary command onto the fan: on means full speed.
func (a *AirFilter) SetOn(ctx context.Context, on bool) error {
	speed := SpeedOff
	if on {
		speed = SpeedHigh
	}
	return a.SetFanSpeed(ctx, speed)
}

func (a *AirFilter) AvailableFanSpeeds() fulfillment.AvailableFanSpeeds {
	return fulfillment.SpeedList(SpeedOff, SpeedLow, SpeedMedium, SpeedHigh)
}

func (a *AirFilter) CurrentFanSpeed(ctx context.Context) (string, error) {
	state, err := a.getFanState(ctx)
	if err != nil {
		return "", fulfillment.ErrDeviceOffline
	}
	return state.Speed, nil
}

func (a *AirFilter) SetFanSpeed(ctx context.Context, speed string) error {
	switch speed {
	case SpeedOff, SpeedLow, SpeedMedium, SpeedHigh:
	default:
		log.Warn().Str("device", a.cfg.ID).Str("speed", speed).Msg("Unknown fan speed requested")
		return fulfillment.ErrTransientError
	}

	if err := a.putFanState(ctx, speed); err != nil {
		log.Error().Err(err).Str("device", a.cfg.ID).Msg("Failed to set fan speed")
		return fulfillment.ErrDeviceOffline
	}
	return nil
}

func (a *AirFilter) AmbientHumidityPercent(ctx context.Context) (int, error) {
	data, err := a.getSensorData(ctx)
	if err != nil {
		return 0, fulfillment.ErrDeviceOffline
	}
	return int(math.Round(data.Humidity)), nil
}

func (a *AirFilter) HumiditySettingAttributes() fulfillment.HumiditySettingAttributes {
	return fulfillment.HumiditySettingAttributes{QueryOnlyHumiditySetting: true}
}

func (a *AirFilter) TemperatureUnit() fulfillment.TemperatureUnit {
	return fulfillment.UnitCelsius
}

func (a *AirFilter) AmbientTemperatureCelsius(ctx context.Context) (float64, error) {
	data, err := a.getSensorData(ctx)
	if err != nil {
		return 0, fulfillment.ErrDeviceOffline
	}
	return math.Round(data.Temperature*10) / 10, nil
}

func (a *AirFilter) TemperatureControlAttributes() fulfillment.TemperatureControlAttributes {
	return fulfillment.TemperatureControlAttributes{QueryOnlyTemperatureControl: true}
}
