package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/kr/pretty"
	"gopkg.in/yaml.v3"

	"intellilight/control"
	"intellilight/fault"
	"intellilight/journal"
	"intellilight/kasa"
	"intellilight/logger"
	"intellilight/mqtt"
	"intellilight/ntfy"
	"intellilight/power"
	"intellilight/sensor"
	"intellilight/status"
)

type Config struct {
	Log     logger.Config  `yaml:"log"`
	Sensor  sensor.Config  `yaml:"sensor"`
	Control control.Config `yaml:"control"`
	Bulb    kasa.Config    `yaml:"bulb"`
	Power   power.Config   `yaml:"power"`
	MQTT    mqtt.Config    `yaml:"mqtt"`
	HTTP    status.Config  `yaml:"http"`
	Journal journal.Config `yaml:"journal"`
	Ntfy    ntfy.Config    `yaml:"ntfy"`
}

func Default() Config {
	cfg := Config{
		Log:     logger.Config{Level: logger.InfoLevel, MaxSizeMB: 10, MaxBackups: 3},
		Control: control.DefaultConfig(),
		Bulb: kasa.Config{
			Port:           kasa.DefaultPort,
			Timeout:        2 * time.Second,
			RateLimit:      4,
			StartupTimeout: kasa.DefaultStartupTimeout,
		},
		Power: power.Config{StateFile: "/sys/power/state", SleepState: "mem"},
		MQTT: mqtt.Config{
			Port:     "1883",
			ClientID: "intellilight",
			Prefix:   "intellilight",
			Name:     "light",
			Timeout:  mqtt.DefaultTimeout,
		},
		HTTP:    status.Config{Addr: ":8090", ReadingTTL: 10 * time.Second},
		Journal: journal.Config{Path: "intellilight.db"},
	}

	cfg.Sensor.LEDs.Red = 0
	cfg.Sensor.LEDs.Green = 1
	cfg.Sensor.LEDs.Blue = 2

	return cfg
}

// Load reads the yaml file on top of the defaults and then applies the
// environment, which can be used to either override the config or pass in
// secrets
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fault.Configuration(fmt.Errorf("open config file: %w", err))
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fault.Configuration(fmt.Errorf("parse config file: %w", err))
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fault.Configuration(fmt.Errorf("parse environment config: %w", err))
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	// The wake interrupt follows the presence threshold unless set explicitly
	if cfg.Sensor.InterruptThreshold == 0 {
		cfg.Sensor.InterruptThreshold = uint16(cfg.Control.ProximityThreshold)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.Bulb.Host == "" {
		errs = append(errs, errors.New("no bulb host configured"))
	}
	if c.Bulb.Port <= 0 || c.Bulb.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid bulb port %d", c.Bulb.Port))
	}
	if c.Bulb.StartupTimeout < 0 {
		errs = append(errs, fmt.Errorf("invalid bulb startup timeout %s", c.Bulb.StartupTimeout))
	}
	if c.Control.ProximityThreshold < 0 || c.Control.ProximityThreshold > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("proximity threshold %d does not fit the sensor range 0..%d", c.Control.ProximityThreshold, math.MaxUint16))
	}
	if err := c.Control.Validate(); err != nil {
		errs = append(errs, err)
	}

	return fault.Configuration(errors.Join(errs...))
}

// String dumps the effective configuration with secrets left out
func (c Config) String() string {
	c.MQTT.Password = redact(c.MQTT.Password)
	c.Ntfy.Topic = redact(c.Ntfy.Topic)

	return pretty.Sprint(c)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}

	return "<redacted>"
}
