package colour

import (
	"fmt"
	"math"
)

// RGB is a raw colour sample, one 16-bit count per channel
type RGB struct {
	R uint16 `json:"r"`
	G uint16 `json:"g"`
	B uint16 `json:"b"`
}

// HSV with hue in degrees [0,360) and saturation/value in percent [0,100]
type HSV struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Value      float64 `json:"value"`
}

const fullScale = math.MaxUint16

// ToHSV converts a raw sample using the standard hexcone model. A sample
// without any chroma (black or grey) has hue 0 and saturation 0.
func ToHSV(c RGB) HSV {
	r := float64(c.R) / fullScale
	g := float64(c.G) / fullScale
	b := float64(c.B) / fullScale

	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	delta := max - min

	var hsv HSV
	hsv.Value = max * 100
	if max > 0 {
		hsv.Saturation = delta / max * 100
	}

	if delta == 0 {
		return hsv
	}

	switch max {
	case r:
		hsv.Hue = 60 * math.Mod((g-b)/delta, 6)
	case g:
		hsv.Hue = 60 * ((b-r)/delta + 2)
	default:
		hsv.Hue = 60 * ((r-g)/delta + 4)
	}

	if hsv.Hue < 0 {
		hsv.Hue += 360
	}
	if hsv.Hue >= 360 {
		hsv.Hue -= 360
	}

	return hsv
}

// RoundedHue is the hue as whole degrees in [0,360), which is what the bulb accepts
func (c HSV) RoundedHue() int {
	return int(math.Round(c.Hue)) % 360
}

// RoundedSaturation is the saturation as a whole percentage
func (c HSV) RoundedSaturation() int {
	return int(math.Round(c.Saturation))
}

func (c HSV) String() string {
	return fmt.Sprintf("hsv(%.0f,%.0f%%,%.0f%%)", c.Hue, c.Saturation, c.Value)
}
