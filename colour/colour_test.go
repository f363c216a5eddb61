package colour

import (
	"math"
	"testing"
)

func TestToHSV(t *testing.T) {
	const full = math.MaxUint16
	const half = full / 2

	tests := []struct {
		name string
		in   RGB
		want HSV
	}{
		{name: "black", in: RGB{}, want: HSV{}},
		{name: "white", in: RGB{full, full, full}, want: HSV{Hue: 0, Saturation: 0, Value: 100}},
		{name: "red", in: RGB{full, 0, 0}, want: HSV{Hue: 0, Saturation: 100, Value: 100}},
		{name: "green", in: RGB{0, full, 0}, want: HSV{Hue: 120, Saturation: 100, Value: 100}},
		{name: "blue", in: RGB{0, 0, full}, want: HSV{Hue: 240, Saturation: 100, Value: 100}},
		{name: "yellow", in: RGB{full, full, 0}, want: HSV{Hue: 60, Saturation: 100, Value: 100}},
		{name: "magenta", in: RGB{full, 0, full}, want: HSV{Hue: 300, Saturation: 100, Value: 100}},
		{name: "half_red_to_white", in: RGB{full, half, half}, want: HSV{Hue: 0, Saturation: 50, Value: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToHSV(tt.in)
			if !near(got.Hue, tt.want.Hue) || !near(got.Saturation, tt.want.Saturation) || !near(got.Value, tt.want.Value) {
				t.Fatalf("ToHSV(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestToHSVRanges(t *testing.T) {
	for r := 0; r <= math.MaxUint16; r += 4099 {
		for g := 0; g <= math.MaxUint16; g += 4099 {
			for b := 0; b <= math.MaxUint16; b += 4099 {
				got := ToHSV(RGB{uint16(r), uint16(g), uint16(b)})
				if got.Hue < 0 || got.Hue >= 360 {
					t.Fatalf("hue %f out of range for %d,%d,%d", got.Hue, r, g, b)
				}
				if got.Saturation < 0 || got.Saturation > 100 || got.Value < 0 || got.Value > 100 {
					t.Fatalf("saturation/value out of range: %v", got)
				}
			}
		}
	}
}

func TestRoundedHueWraps(t *testing.T) {
	if got := (HSV{Hue: 359.6}).RoundedHue(); got != 0 {
		t.Fatalf("RoundedHue() = %d, want 0", got)
	}
	if got := (HSV{Hue: 107.5}).RoundedHue(); got != 108 {
		t.Fatalf("RoundedHue() = %d, want 108", got)
	}
}

func near(a, b float64) bool {
	// half a count of a 16-bit channel is well below this
	return math.Abs(a-b) < 0.01
}
