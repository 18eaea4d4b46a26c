package fulfillment

import (
	"context"
	"strings"
)

// Capability interfaces devices implement to gain traits. Each
// capability carries the getters and setters of exactly one trait;
// optional trait attributes live on companion Config interfaces so
// devices opt into them separately.

// OnOff is the power switch capability.
type OnOff interface {
	On(ctx context.Context) (bool, error)
	SetOn(ctx context.Context, on bool) error
}

// OnOffConfig optionally tunes the OnOff trait attributes.
type OnOffConfig interface {
	OnOffAttributes() OnOffAttributes
}

type OnOffAttributes struct {
	CommandOnlyOnOff bool `json:"commandOnlyOnOff,omitempty"`
	QueryOnlyOnOff   bool `json:"queryOnlyOnOff,omitempty"`
}

// Brightness controls light output in percent, 0 to 100.
type Brightness interface {
	Brightness(ctx context.Context) (int, error)
	SetBrightness(ctx context.Context, percent int) error
}

type BrightnessConfig interface {
	BrightnessAttributes() BrightnessAttributes
}

type BrightnessAttributes struct {
	CommandOnlyBrightness bool `json:"commandOnlyBrightness,omitempty"`
}

// ColorTemperature controls white color temperature in kelvin. On the
// wire it surfaces as the ColorSetting trait restricted to a
// temperature range.
type ColorTemperature interface {
	ColorTemperature(ctx context.Context) (int, error)
	SetColorTemperature(ctx context.Context, kelvin int) error
	ColorTemperatureRange() ColorTemperatureRange
}

type ColorTemperatureRange struct {
	TemperatureMinK int `json:"temperatureMinK"`
	TemperatureMaxK int `json:"temperatureMaxK"`
}

// Scene activates a predefined scene. Deactivation of a non-reversible
// scene fails with ErrActionNotAvailable.
type Scene interface {
	SetActive(ctx context.Context, deactivate bool) error
}

type SceneConfig interface {
	SceneAttributes() SceneAttributes
}

type SceneAttributes struct {
	SceneReversible bool `json:"sceneReversible,omitempty"`
}

// FanSpeed selects one of a fixed list of named speeds.
type FanSpeed interface {
	AvailableFanSpeeds() AvailableFanSpeeds
	CurrentFanSpeed(ctx context.Context) (string, error)
	SetFanSpeed(ctx context.Context, speed string) error
}

type FanSpeedConfig interface {
	FanSpeedAttributes() FanSpeedAttributes
}

type FanSpeedAttributes struct {
	Reversible          bool `json:"reversible,omitempty"`
	CommandOnlyFanSpeed bool `json:"commandOnlyFanSpeed,omitempty"`
}

// AvailableFanSpeeds keeps the protocol's snake_case inner keys.
type AvailableFanSpeeds struct {
	Speeds  []Speed `json:"speeds"`
	Ordered bool    `json:"ordered"`
}

type Speed struct {
	SpeedName   string       `json:"speed_name"`
	SpeedValues []SpeedValue `json:"speed_values"`
}

type SpeedValue struct {
	SpeedSynonym []string `json:"speed_synonym"`
	Lang         string   `json:"lang"`
}

// SpeedList builds an ordered english speed list where each speed's
// synonym is its capitalized name.
func SpeedList(names ...string) AvailableFanSpeeds {
	speeds := make([]Speed, 0, len(names))
	for _, name := range names {
		synonym := name
		if synonym != "" {
			synonym = strings.ToUpper(synonym[:1]) + synonym[1:]
		}
		speeds = append(speeds, Speed{
			SpeedName:   name,
			SpeedValues: []SpeedValue{{SpeedSynonym: []string{synonym}, Lang: "en"}},
		})
	}
	return AvailableFanSpeeds{Speeds: speeds, Ordered: true}
}

// HumiditySetting reports ambient humidity. Query only: the trait
// carries no commands here.
type HumiditySetting interface {
	AmbientHumidityPercent(ctx context.Context) (int, error)
}

type HumiditySettingConfig interface {
	HumiditySettingAttributes() HumiditySettingAttributes
}

type HumiditySettingAttributes struct {
	QueryOnlyHumiditySetting bool `json:"queryOnlyHumiditySetting,omitempty"`
}

// TemperatureReading reports ambient temperature in celsius. It
// surfaces as the TemperatureControl trait, query only.
type TemperatureReading interface {
	TemperatureUnit() TemperatureUnit
	AmbientTemperatureCelsius(ctx context.Context) (float64, error)
}

type TemperatureReadingConfig interface {
	TemperatureControlAttributes() TemperatureControlAttributes
}

type TemperatureControlAttributes struct {
	QueryOnlyTemperatureControl bool `json:"queryOnlyTemperatureControl,omitempty"`
}

type TemperatureUnit string

const (
	UnitCelsius    TemperatureUnit = "C"
	UnitFahrenheit TemperatureUnit = "F"
)

// OpenClose reports and optionally controls an open percentage, 0
// closed to 100 fully open.
type OpenClose interface {
	OpenPercent(ctx context.Context) (int, error)
	SetOpenPercent(ctx context.Context, percent int) error
}

type OpenCloseConfig interface {
	OpenCloseAttributes() OpenCloseAttributes
}

type OpenCloseAttributes struct {
	DiscreteOnlyOpenClose bool `json:"discreteOnlyOpenClose,omitempty"`
	CommandOnlyOpenClose  bool `json:"commandOnlyOpenClose,omitempty"`
	QueryOnlyOpenClose    bool `json:"queryOnlyOpenClose,omitempty"`
}
