package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/apapsch/go-jsonmerge/v2"

	"github.com/dokzlo13/homed/internal/device"
)

// Trait names understood by the assistant.
type Trait string

const (
	TraitOnOff              Trait = "action.devices.traits.OnOff"
	TraitBrightness         Trait = "action.devices.traits.Brightness"
	TraitColorSetting       Trait = "action.devices.traits.ColorSetting"
	TraitScene              Trait = "action.devices.traits.Scene"
	TraitFanSpeed           Trait = "action.devices.traits.FanSpeed"
	TraitHumiditySetting    Trait = "action.devices.traits.HumiditySetting"
	TraitTemperatureControl Trait = "action.devices.traits.TemperatureControl"
	TraitOpenClose          Trait = "action.devices.traits.OpenClose"
)

// Command names understood by EXECUTE.
const (
	CommandOnOff              = "action.devices.commands.OnOff"
	CommandBrightnessAbsolute = "action.devices.commands.BrightnessAbsolute"
	CommandColorAbsolute      = "action.devices.commands.ColorAbsolute"
	CommandActivateScene      = "action.devices.commands.ActivateScene"
	CommandSetFanSpeed        = "action.devices.commands.SetFanSpeed"
	CommandOpenClose          = "action.devices.commands.OpenClose"
)

// invocation applies one decoded command to one device.
type invocation func(ctx context.Context, d Device) error

// commandSpec decodes one command's params into an invocation. Decoding
// happens once per request before any device is touched; the capability
// cast happens at invocation time, and a failed cast means the command
// was routed to a device that cannot perform it.
type commandSpec struct {
	name   string
	decode func(params json.RawMessage) (invocation, error)
}

// traitSpec describes one capability: how to probe for it and what it
// contributes to attributes, state and command handling. The engine
// iterates the table and branches on nothing else; adding a capability
// means adding a table entry. Collectors are only invoked after
// implements reports true.
type traitSpec struct {
	trait      Trait
	implements func(d Device) bool
	attributes func(d Device) (json.RawMessage, error)
	state      func(ctx context.Context, d Device) (json.RawMessage, error)
	commands   []commandSpec
}

var traitTable = []traitSpec{
	{
		trait:      TraitOnOff,
		implements: func(d Device) bool { _, ok := device.As[OnOff](d); return ok },
		attributes: func(d Device) (json.RawMessage, error) {
			if c, ok := device.As[OnOffConfig](d); ok {
				return json.Marshal(c.OnOffAttributes())
			}
			return nil, nil
		},
		state: func(ctx context.Context, d Device) (json.RawMessage, error) {
			sw, _ := device.As[OnOff](d)
			on, err := sw.On(ctx)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]bool{"on": on})
		},
		commands: []commandSpec{{
			name: CommandOnOff,
			decode: func(params json.RawMessage) (invocation, error) {
				var p struct {
					On bool `json:"on"`
				}
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, err
				}
				return func(ctx context.Context, d Device) error {
					sw, ok := device.As[OnOff](d)
					if !ok {
						return ErrActionNotAvailable
					}
					return sw.SetOn(ctx, p.On)
				}, nil
			},
		}},
	},
	{
		trait:      TraitBrightness,
		implements: func(d Device) bool { _, ok := device.As[Brightness](d); return ok },
		attributes: func(d Device) (json.RawMessage, error) {
			if c, ok := device.As[BrightnessConfig](d); ok {
				return json.Marshal(c.BrightnessAttributes())
			}
			return nil, nil
		},
		state: func(ctx context.Context, d Device) (json.RawMessage, error) {
			b, _ := device.As[Brightness](d)
			percent, err := b.Brightness(ctx)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]int{"brightness": percent})
		},
		commands: []commandSpec{{
			name: CommandBrightnessAbsolute,
			decode: func(params json.RawMessage) (invocation, error) {
				var p struct {
					Brightness int `json:"brightness"`
				}
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, err
				}
				return func(ctx context.Context, d Device) error {
					b, ok := device.As[Brightness](d)
					if !ok {
						return ErrActionNotAvailable
					}
					return b.SetBrightness(ctx, p.Brightness)
				}, nil
			},
		}},
	},
	{
		trait:      TraitColorSetting,
		implements: func(d Device) bool { _, ok := device.As[ColorTemperature](d); return ok },
		attributes: func(d Device) (json.RawMessage, error) {
			ct, _ := device.As[ColorTemperature](d)
			return json.Marshal(struct {
				ColorTemperatureRange ColorTemperatureRange `json:"colorTemperatureRange"`
			}{ct.ColorTemperatureRange()})
		},
		state: func(ctx context.Context, d Device) (json.RawMessage, error) {
			ct, _ := device.As[ColorTemperature](d)
			kelvin, err := ct.ColorTemperature(ctx)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{
				"color": map[string]int{"temperatureK": kelvin},
			})
		},
		commands: []commandSpec{{
			name: CommandColorAbsolute,
			decode: func(params json.RawMessage) (invocation, error) {
				var p struct {
					Color struct {
						Temperature int `json:"temperature"`
					} `json:"color"`
				}
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, err
				}
				return func(ctx context.Context, d Device) error {
					ct, ok := device.As[ColorTemperature](d)
					if !ok {
						return ErrActionNotAvailable
					}
					return ct.SetColorTemperature(ctx, p.Color.Temperature)
				}, nil
			},
		}},
	},
	{
		trait:      TraitScene,
		implements: func(d Device) bool { _, ok := device.As[Scene](d); return ok },
		attributes: func(d Device) (json.RawMessage, error) {
			if c, ok := device.As[SceneConfig](d); ok {
				return json.Marshal(c.SceneAttributes())
			}
			return nil, nil
		},
		commands: []commandSpec{{
			name: CommandActivateScene,
			decode: func(params json.RawMessage) (invocation, error) {
				var p struct {
					Deactivate bool `json:"deactivate"`
				}
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, err
				}
				return func(ctx context.Context, d Device) error {
					sc, ok := device.As[Scene](d)
					if !ok {
						return ErrActionNotAvailable
					}
					return sc.SetActive(ctx, p.Deactivate)
				}, nil
			},
		}},
	},
	{
		trait:      TraitFanSpeed,
		implements: func(d Device) bool { _, ok := device.As[FanSpeed](d); return ok },
		attributes: func(d Device) (json.RawMessage, error) {
			fan, _ := device.As[FanSpeed](d)
			attrs := struct {
				FanSpeedAttributes
				AvailableFanSpeeds AvailableFanSpeeds `json:"availableFanSpeeds"`
			}{AvailableFanSpeeds: fan.AvailableFanSpeeds()}
			if c, ok := device.As[FanSpeedConfig](d); ok {
				attrs.FanSpeedAttributes = c.FanSpeedAttributes()
			}
			return json.Marshal(attrs)
		},
		state: func(ctx context.Context, d Device) (json.RawMessage, error) {
			fan, _ := device.As[FanSpeed](d)
			speed, err := fan.CurrentFanSpeed(ctx)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{"currentFanSpeedSetting": speed})
		},
		commands: []commandSpec{{
			name: CommandSetFanSpeed,
			decode: func(params json.RawMessage) (invocation, error) {
				var p struct {
					FanSpeed string `json:"fanSpeed"`
				}
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, err
				}
				return func(ctx context.Context, d Device) error {
					fan, ok := device.As[FanSpeed](d)
					if !ok {
						return ErrActionNotAvailable
					}
					return fan.SetFanSpeed(ctx, p.FanSpeed)
				}, nil
			},
		}},
	},
	{
		trait:      TraitHumiditySetting,
		implements: func(d Device) bool { _, ok := device.As[HumiditySetting](d); return ok },
		attributes: func(d Device) (json.RawMessage, error) {
			if c, ok := device.As[HumiditySettingConfig](d); ok {
				return json.Marshal(c.HumiditySettingAttributes())
			}
			return nil, nil
		},
		state: func(ctx context.Context, d Device) (json.RawMessage, error) {
			h, _ := device.As[HumiditySetting](d)
			percent, err := h.AmbientHumidityPercent(ctx)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]int{"humidityAmbientPercent": percent})
		},
	},
	{
		trait:      TraitTemperatureControl,
		implements: func(d Device) bool { _, ok := device.As[TemperatureReading](d); return ok },
		attributes: func(d Device) (json.RawMessage, error) {
			tr, _ := device.As[TemperatureReading](d)
			attrs := struct {
				TemperatureControlAttributes
				TemperatureUnitForUX TemperatureUnit `json:"temperatureUnitForUX"`
			}{TemperatureUnitForUX: tr.TemperatureUnit()}
			if c, ok := device.As[TemperatureReadingConfig](d); ok {
				attrs.TemperatureControlAttributes = c.TemperatureControlAttributes()
			}
			return json.Marshal(attrs)
		},
		state: func(ctx context.Context, d Device) (json.RawMessage, error) {
			tr, _ := device.As[TemperatureReading](d)
			celsius, err := tr.AmbientTemperatureCelsius(ctx)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]float64{"temperatureAmbientCelsius": celsius})
		},
	},
	{
		trait:      TraitOpenClose,
		implements: func(d Device) bool { _, ok := device.As[OpenClose](d); return ok },
		attributes: func(d Device) (json.RawMessage, error) {
			if c, ok := device.As[OpenCloseConfig](d); ok {
				return json.Marshal(c.OpenCloseAttributes())
			}
			return nil, nil
		},
		state: func(ctx context.Context, d Device) (json.RawMessage, error) {
			oc, _ := device.As[OpenClose](d)
			percent, err := oc.OpenPercent(ctx)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]int{"openPercent": percent})
		},
		commands: []commandSpec{{
			name: CommandOpenClose,
			decode: func(params json.RawMessage) (invocation, error) {
				var p struct {
					OpenPercent int `json:"openPercent"`
				}
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, err
				}
				return func(ctx context.Context, d Device) error {
					oc, ok := device.As[OpenClose](d)
					if !ok {
						return ErrActionNotAvailable
					}
					return oc.SetOpenPercent(ctx, p.OpenPercent)
				}, nil
			},
		}},
	},
}

// commandIndex maps command names to their specs.
var commandIndex = map[string]commandSpec{}

func init() {
	for _, ts := range traitTable {
		for _, cs := range ts.commands {
			commandIndex[cs.name] = cs
		}
	}
}

// deviceTraits lists the traits d implements, in table order.
func deviceTraits(d Device) []Trait {
	traits := make([]Trait, 0, len(traitTable))
	for _, ts := range traitTable {
		if ts.implements(d) {
			traits = append(traits, ts.trait)
		}
	}
	return traits
}

// deviceAttributes merges the attribute objects of every implemented
// trait. A nil result means the device carries no attributes.
func deviceAttributes(d Device) (json.RawMessage, error) {
	var merged json.RawMessage
	var firstErr error
	for _, ts := range traitTable {
		if ts.attributes == nil || !ts.implements(d) {
			continue
		}
		attrs, err := ts.attributes(d)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s attributes: %w", ts.trait, err)
			}
			continue
		}
		if attrs == nil {
			continue
		}
		next, err := mergeJSON(merged, attrs)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s attributes: %w", ts.trait, err)
			}
			continue
		}
		merged = next
	}
	if isEmptyObject(merged) {
		return nil, firstErr
	}
	return merged, firstErr
}

// deviceState merges the state of every reporting trait, skipping
// failing getters so a partially reachable device still reports what it
// can. The merged result is returned together with the first failure.
func deviceState(ctx context.Context, d Device) (map[string]any, error) {
	var merged json.RawMessage
	var firstErr error
	for _, ts := range traitTable {
		if ts.state == nil || !ts.implements(d) {
			continue
		}
		st, err := ts.state(ctx, d)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s state: %w", ts.trait, err)
			}
			continue
		}
		next, err := mergeJSON(merged, st)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s state: %w", ts.trait, err)
			}
			continue
		}
		merged = next
	}
	if merged == nil {
		return nil, firstErr
	}

	var state map[string]any
	if err := json.Unmarshal(merged, &state); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		return nil, firstErr
	}
	return state, firstErr
}

// mergeJSON deep-merges patch into base. Traits never share keys, so
// precedence between them is immaterial.
func mergeJSON(base, patch json.RawMessage) (json.RawMessage, error) {
	if len(patch) == 0 {
		return base, nil
	}
	if len(base) == 0 {
		base = json.RawMessage(`{}`)
	}
	merger := jsonmerge.Merger{CopyNonexistent: true}
	merged, err := merger.MergeBytes(base, patch)
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func isEmptyObject(b json.RawMessage) bool {
	return len(bytes.TrimSpace(b)) == 0 || string(bytes.TrimSpace(b)) == "{}"
}
