package sensor

import (
	"encoding/binary"
	"fmt"
	"io"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"intellilight/colour"
	"intellilight/fault"
)

// LED is a pin on the PCA9554 expander
type LED uint8

type Config struct {
	Bus string `yaml:"bus" envconfig:"INTELLILIGHT_I2C_BUS"`
	// Raw proximity count above which the sensor raises its interrupt line,
	// 0 follows control.proximity_threshold
	InterruptThreshold uint16 `yaml:"interrupt_threshold"`

	LEDs struct {
		Red       LED  `yaml:"red"`
		Green     LED  `yaml:"green"`
		Blue      LED  `yaml:"blue"`
		ActiveLow bool `yaml:"active_low"`
	} `yaml:"leds"`
}

// Board is the sensor board: proximity/ambient light, colour sensor and the
// LED expander, all on one I2C bus.
type Board struct {
	bus    i2c.Bus
	closer io.Closer

	proximity *vcnl4035
	colour    *veml3328
	leds      *pca9554

	config Config
}

// Open initialises the host drivers and the configured I2C bus
func Open(config Config) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fault.Configuration(fmt.Errorf("init host drivers: %w", err))
	}

	bus, err := i2creg.Open(config.Bus)
	if err != nil {
		return nil, fault.Configuration(fmt.Errorf("open i2c bus '%s': %w", config.Bus, err))
	}

	b, err := New(bus, config)
	if err != nil {
		bus.Close()
		return nil, err
	}
	b.closer = bus

	return b, nil
}

// New configures every device on an already opened bus. The bus is not
// closed by the board.
func New(bus i2c.Bus, config Config) (*Board, error) {
	for _, led := range []LED{config.LEDs.Red, config.LEDs.Green, config.LEDs.Blue} {
		if led > 7 {
			return nil, fault.Configuration(fmt.Errorf("led pin %d does not exist on the expander", led))
		}
	}

	b := &Board{
		bus:       bus,
		proximity: &vcnl4035{dev: &i2c.Dev{Bus: bus, Addr: vcnl4035Addr}},
		colour:    &veml3328{dev: &i2c.Dev{Bus: bus, Addr: veml3328Addr}},
		config:    config,
	}

	b.leds = &pca9554{
		dev:       &i2c.Dev{Bus: bus, Addr: pca9554Addr},
		mask:      1<<config.LEDs.Red | 1<<config.LEDs.Green | 1<<config.LEDs.Blue,
		activeLow: config.LEDs.ActiveLow,
	}

	if err := b.proximity.configure(config.InterruptThreshold); err != nil {
		return nil, fault.Configuration(fmt.Errorf("configure vcnl4035: %w", err))
	}
	if err := b.leds.configure(); err != nil {
		return nil, fault.Configuration(fmt.Errorf("configure pca9554: %w", err))
	}
	if err := b.colour.configure(); err != nil {
		return nil, fault.Configuration(fmt.Errorf("configure veml3328: %w", err))
	}

	return b, nil
}

func (b *Board) ReadProximity() (int, error) {
	v, err := b.proximity.proximity()
	if err != nil {
		return 0, fault.Transient(fmt.Errorf("read proximity: %w", err))
	}

	return int(v), nil
}

func (b *Board) ReadAmbientLight() (int, error) {
	v, err := b.proximity.ambient()
	if err != nil {
		return 0, fault.Transient(fmt.Errorf("read ambient light: %w", err))
	}

	return int(v), nil
}

func (b *Board) ReadColor() (colour.RGB, error) {
	c, err := b.colour.read()
	if err != nil {
		return colour.RGB{}, fault.Transient(fmt.Errorf("read colour: %w", err))
	}

	return c, nil
}

// ReadInterruptFlag reports whether a proximity interrupt is pending. Reading
// the flag clears it on the sensor.
func (b *Board) ReadInterruptFlag() (bool, error) {
	f, err := b.proximity.interruptFlags()
	if err != nil {
		return false, fault.Transient(fmt.Errorf("read interrupt flag: %w", err))
	}

	return f&(psIfAway|psIfClose) != 0, nil
}

func (b *Board) SetIndicator(led LED, on bool) error {
	if err := b.leds.set(led, on); err != nil {
		return fault.Transient(fmt.Errorf("set led %d: %w", led, err))
	}

	return nil
}

func (b *Board) Red() LED {
	return b.config.LEDs.Red
}

func (b *Board) Green() LED {
	return b.config.LEDs.Green
}

func (b *Board) Blue() LED {
	return b.config.LEDs.Blue
}

// Close turns every LED off and releases the bus if the board opened it
func (b *Board) Close() error {
	err := b.leds.allOff()

	if b.closer != nil {
		if cerr := b.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	return err
}

// The sensors use 16-bit little endian command codes
func readWord(dev *i2c.Dev, reg byte) (uint16, error) {
	r := make([]byte, 2)
	if err := dev.Tx([]byte{reg}, r); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(r), nil
}

func writeWord(dev *i2c.Dev, reg byte, value uint16) error {
	w := []byte{reg, 0, 0}
	binary.LittleEndian.PutUint16(w[1:], value)

	return dev.Tx(w, nil)
}
