// Package effects holds the lighting effect model, the RGB to Hue color
// conversion and the resolver that maps events to effects.
package effects

import (
	"fmt"
	"strings"
	"time"
)

// MaxBrightness is the highest brightness the Hue v1 API accepts
const MaxBrightness = 254

// AlertMode is the blink behaviour applied together with an effect
type AlertMode string

const (
	AlertNone      AlertMode = "none"
	AlertSingle    AlertMode = "single"
	AlertRepeating AlertMode = "repeating"
)

// ParseAlertMode accepts both the config names and the Hue wire names
func ParseAlertMode(s string) (AlertMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return AlertNone, nil
	case "single", "select":
		return AlertSingle, nil
	case "repeating", "lselect":
		return AlertRepeating, nil
	default:
		return "", fmt.Errorf("unknown alert mode %q", s)
	}
}

// Wire returns the Hue v1 "alert" value
func (a AlertMode) Wire() string {
	switch a {
	case AlertSingle:
		return "select"
	case AlertRepeating:
		return "lselect"
	default:
		return "none"
	}
}

// LightEffect is a target visual state plus how long to show it
type LightEffect struct {
	Color      string
	Brightness uint8
	Alert      AlertMode
	Duration   time.Duration
}

// Command converts the effect into a device command.
// Returns ErrInvalidColor if Color is not a 3-byte hex string.
func (e LightEffect) Command() (Command, error) {
	hue, sat, err := HexToHueSat(e.Color)
	if err != nil {
		return Command{}, err
	}
	return Command{
		On:    true,
		Bri:   e.Brightness,
		Hue:   hue,
		Sat:   sat,
		Alert: e.Alert.Wire(),
	}, nil
}

// Baseline is the idle state lights return to after every effect
type Baseline struct {
	On         bool
	Brightness uint8
	Hue        uint16
	Saturation uint8
	Alert      AlertMode
}

// Command converts the baseline into a device command
func (b Baseline) Command() Command {
	return Command{
		On:    b.On,
		Bri:   b.Brightness,
		Hue:   b.Hue,
		Sat:   b.Saturation,
		Alert: b.Alert.Wire(),
	}
}

// Command is the device-facing light state in the bridge's native units
type Command struct {
	On    bool
	Bri   uint8
	Hue   uint16
	Sat   uint8
	Alert string
}
