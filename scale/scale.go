package scale

import (
	"fmt"
	"math"

	"intellilight/fault"
)

var ErrInvalidScale = fault.Invariant(fmt.Errorf("invalid sensor scale"))

// SensorScale maps a raw sensor range onto a scaled output range.
type SensorScale struct {
	RawMin    int `yaml:"raw_min"`
	RawMax    int `yaml:"raw_max"`
	ScaledMin int `yaml:"scaled_min"`
	ScaledMax int `yaml:"scaled_max"`
}

// Default brightness mapping for the ambient light sensor
var AmbientLight = SensorScale{RawMin: 10, RawMax: 70, ScaledMin: 20, ScaledMax: 100}

func New(rawMin, rawMax, scaledMin, scaledMax int) (SensorScale, error) {
	s := SensorScale{RawMin: rawMin, RawMax: rawMax, ScaledMin: scaledMin, ScaledMax: scaledMax}
	if err := s.Validate(); err != nil {
		return SensorScale{}, err
	}

	return s, nil
}

func (s SensorScale) Validate() error {
	if s.RawMax <= s.RawMin {
		return fmt.Errorf("%w: raw_max (%d) must be greater than raw_min (%d)", ErrInvalidScale, s.RawMax, s.RawMin)
	}
	if s.ScaledMax < s.ScaledMin {
		return fmt.Errorf("%w: scaled_max (%d) must not be less than scaled_min (%d)", ErrInvalidScale, s.ScaledMax, s.ScaledMin)
	}

	return nil
}

// Map clamps reading to the raw range and projects it onto the scaled range.
// Results are rounded half away from zero.
func (s SensorScale) Map(reading int) int {
	clamped := min(max(reading, s.RawMin), s.RawMax)

	factor := float64(clamped-s.RawMin) / float64(s.RawMax-s.RawMin)
	scaled := float64(s.ScaledMax-s.ScaledMin)*factor + float64(s.ScaledMin)

	return int(math.Round(scaled))
}

func (s SensorScale) String() string {
	return fmt.Sprintf("[%d,%d]->[%d,%d]", s.RawMin, s.RawMax, s.ScaledMin, s.ScaledMax)
}
