package power

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"intellilight/fault"
	"intellilight/logger"
)

type Config struct {
	// Suspend the whole board while asleep instead of only idling
	Suspend    bool   `yaml:"suspend" envconfig:"INTELLILIGHT_SUSPEND"`
	StateFile  string `yaml:"state_file"`
	SleepState string `yaml:"sleep_state"`
}

// How often a blocked edge wait checks for cancellation
const pollInterval = time.Second

// Manager arms a GPIO wake line and sleeps until it fires
type Manager struct {
	config Config
	log    *logger.Logger

	pin    gpio.PinIO
	active gpio.Level
}

func New(config Config, log *logger.Logger) *Manager {
	if config.StateFile == "" {
		config.StateFile = "/sys/power/state"
	}
	if config.SleepState == "" {
		config.SleepState = "mem"
	}

	return &Manager{config: config, log: log.Named("power")}
}

// ArmWake configures pin as an input that wakes us when it reaches
// activeLevel. Active low lines get a pull-up, active high a pull-down.
func (m *Manager) ArmWake(pin string, activeLevel bool) error {
	if _, err := host.Init(); err != nil {
		return fault.Configuration(fmt.Errorf("init host drivers: %w", err))
	}

	p := gpioreg.ByName(pin)
	if p == nil {
		return fault.Configuration(fmt.Errorf("wake pin '%s' does not exist", pin))
	}

	return m.arm(p, gpio.Level(activeLevel))
}

func (m *Manager) arm(p gpio.PinIO, active gpio.Level) error {
	pull, edge := gpio.PullUp, gpio.FallingEdge
	if active == gpio.High {
		pull, edge = gpio.PullDown, gpio.RisingEdge
	}

	if err := p.In(pull, edge); err != nil {
		return fault.Configuration(fmt.Errorf("configure wake pin %s: %w", p, err))
	}

	m.pin = p
	m.active = active
	m.log.Infow("Wake interrupt armed", "pin", p.Name(), "active", active)

	return nil
}

// EnterDeepSleep returns once the wake line fires. Everything volatile is to
// be thrown away by the caller afterwards.
func (m *Manager) EnterDeepSleep(ctx context.Context) error {
	if m.pin == nil {
		return fault.Invariant(fmt.Errorf("deep sleep without an armed wake interrupt"))
	}

	m.log.Info("Wake me up before you go-go...")

	if m.config.Suspend {
		if err := m.suspend(); err != nil {
			// Still wait for the interrupt, just with the board running
			m.log.Warnw("Failed to suspend, idling instead", "err", err)
		}
	}

	for {
		if m.pin.Read() == m.active {
			m.log.Info("Woken up by interrupt")
			return nil
		}

		// Edge wait is not cancellable, so wait in slices
		if m.pin.WaitForEdge(pollInterval) && m.pin.Read() == m.active {
			m.log.Info("Woken up by interrupt")
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// The kernel resumes us from here when the armed pin is a wakeup source
func (m *Manager) suspend() error {
	unix.Sync()

	f, err := os.OpenFile(m.config.StateFile, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(m.config.SleepState)
	return err
}
