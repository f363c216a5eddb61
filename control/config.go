package control

import (
	"errors"
	"fmt"
	"time"

	"intellilight/fault"
	"intellilight/scale"
	"intellilight/sensor"
)

type Wake struct {
	// GPIO line wired to the proximity sensor interrupt output
	Pin        string `yaml:"pin" envconfig:"INTELLILIGHT_WAKE_PIN"`
	ActiveHigh bool   `yaml:"active_high"`
}

type Config struct {
	ProximityThreshold int               `yaml:"proximity_threshold"`
	AmbientScale       scale.SensorScale `yaml:"ambient_scale"`
	BrightnessDeadband int               `yaml:"brightness_deadband"`
	HueDeadband        int               `yaml:"hue_deadband"`
	// Saturation sent with every colour command
	Saturation int `yaml:"saturation"`
	// Send the measured saturation instead of the fixed one
	MeasuredSaturation bool          `yaml:"measured_saturation"`
	IndicatorSettle    time.Duration `yaml:"indicator_settle"`
	Wake               Wake          `yaml:"wake"`

	// Indicator is pulsed before every colour read, set by whoever owns the
	// board
	Indicator sensor.LED `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		ProximityThreshold: 20,
		AmbientScale:       scale.AmbientLight,
		BrightnessDeadband: 10,
		HueDeadband:        10,
		Saturation:         50,
		IndicatorSettle:    500 * time.Millisecond,
		Wake:               Wake{Pin: "GPIO4"},
	}
}

func (c Config) Validate() error {
	var errs []error

	if err := c.AmbientScale.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.AmbientScale.ScaledMin < 0 || c.AmbientScale.ScaledMax > 100 {
		errs = append(errs, fmt.Errorf("brightness range %d..%d is outside 0..100", c.AmbientScale.ScaledMin, c.AmbientScale.ScaledMax))
	}
	if c.BrightnessDeadband < 0 || c.HueDeadband < 0 {
		errs = append(errs, fmt.Errorf("deadbands can not be negative"))
	}
	if c.Saturation < 0 || c.Saturation > 100 {
		errs = append(errs, fmt.Errorf("saturation %d is outside 0..100", c.Saturation))
	}
	if c.IndicatorSettle < 0 {
		errs = append(errs, fmt.Errorf("indicator settle time can not be negative"))
	}
	if c.Wake.Pin == "" {
		errs = append(errs, fmt.Errorf("no wake pin configured"))
	}

	return fault.Configuration(errors.Join(errs...))
}
