package bulb

import (
	"fmt"

	"intellilight/colour"
)

// State is what we last told the bulb to be. It is never what we measured.
// The zero value is the startup state: off, brightness 0, hue 0.
type State struct {
	On         bool       `json:"on"`
	Brightness int        `json:"brightness"`
	Color      colour.HSV `json:"color"`
}

// Apply returns the state after c was accepted by the bulb. Only the fields
// carried by the command change.
func (s State) Apply(c Command) State {
	switch c.Kind {
	case KindPower:
		s.On = c.On
	case KindBrightness:
		s.Brightness = c.Brightness
	case KindColor:
		s.Color.Hue = float64(c.Hue)
		s.Color.Saturation = float64(c.Saturation)
	}

	return s
}

func (s State) String() string {
	power := "off"
	if s.On {
		power = "on"
	}

	return fmt.Sprintf("%s, %d%%, %s", power, s.Brightness, s.Color)
}
