package sensor

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"

	"intellilight/colour"
	"intellilight/fault"
)

func testConfig() Config {
	var c Config
	c.InterruptThreshold = 20
	c.LEDs.Red = 0
	c.LEDs.Green = 1
	c.LEDs.Blue = 2
	return c
}

// Register traffic of a successful New() with testConfig()
func configureOps() []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: vcnl4035Addr, W: []byte{regVcnlID}, R: []byte{vcnlID, 0x00}},
		{Addr: vcnl4035Addr, W: []byte{regAlsConf, 0x00, 0x00}},
		{Addr: vcnl4035Addr, W: []byte{regPsConf12, 0x0E, 0x09}},
		{Addr: vcnl4035Addr, W: []byte{regPsConf3Ms, 0x00, 0x07}},
		{Addr: vcnl4035Addr, W: []byte{regPsThdl, 0x00, 0x00}},
		{Addr: vcnl4035Addr, W: []byte{regPsThdh, 0x14, 0x00}},
		{Addr: pca9554Addr, W: []byte{regOutput, 0x00}},
		{Addr: pca9554Addr, W: []byte{regConfig, 0xF8}},
		{Addr: veml3328Addr, W: []byte{regVemlID}, R: []byte{vemlID, 0x00}},
		{Addr: veml3328Addr, W: []byte{regVemlConf, 0x00, 0x00}},
	}
}

func TestNewAndRead(t *testing.T) {
	ops := configureOps()
	ops = append(ops,
		i2ctest.IO{Addr: vcnl4035Addr, W: []byte{regIntFlag}, R: []byte{0x00, psIfClose}},
		i2ctest.IO{Addr: veml3328Addr, W: []byte{regRed}, R: []byte{0x34, 0x12}},
		i2ctest.IO{Addr: veml3328Addr, W: []byte{regGreen}, R: []byte{0x00, 0x01}},
		i2ctest.IO{Addr: veml3328Addr, W: []byte{regBlue}, R: []byte{0xFF, 0xFF}},
		i2ctest.IO{Addr: vcnl4035Addr, W: []byte{regPs1Data}, R: []byte{0x2C, 0x01}},
		i2ctest.IO{Addr: vcnl4035Addr, W: []byte{regAlsData}, R: []byte{0x28, 0x00}},
	)
	bus := &i2ctest.Playback{Ops: ops}

	b, err := New(bus, testConfig())
	if err != nil {
		t.Fatalf("New(): %v", err)
	}

	flag, err := b.ReadInterruptFlag()
	if err != nil || !flag {
		t.Fatalf("ReadInterruptFlag() = %t, %v", flag, err)
	}

	c, err := b.ReadColor()
	if err != nil {
		t.Fatalf("ReadColor(): %v", err)
	}
	if want := (colour.RGB{R: 0x1234, G: 0x0100, B: 0xFFFF}); c != want {
		t.Fatalf("ReadColor() = %v, want %v", c, want)
	}

	p, err := b.ReadProximity()
	if err != nil || p != 300 {
		t.Fatalf("ReadProximity() = %d, %v", p, err)
	}

	a, err := b.ReadAmbientLight()
	if err != nil || a != 40 {
		t.Fatalf("ReadAmbientLight() = %d, %v", a, err)
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("unconsumed bus traffic: %v", err)
	}
}

func TestIndicators(t *testing.T) {
	tests := []struct {
		name      string
		activeLow bool
		want      []byte
	}{
		// green on, red on, green off, close
		{name: "active_high", want: []byte{0x02, 0x03, 0x01, 0x00}},
		{name: "active_low", activeLow: true, want: []byte{0xFD, 0xFC, 0xFE, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig()
			config.LEDs.ActiveLow = tt.activeLow

			ops := configureOps()
			if tt.activeLow {
				ops[6].W = []byte{regOutput, 0xFF}
			}
			for _, level := range tt.want {
				ops = append(ops, i2ctest.IO{Addr: pca9554Addr, W: []byte{regOutput, level}})
			}
			bus := &i2ctest.Playback{Ops: ops}

			b, err := New(bus, config)
			if err != nil {
				t.Fatalf("New(): %v", err)
			}

			if err := b.SetIndicator(b.Green(), true); err != nil {
				t.Fatal(err)
			}
			if err := b.SetIndicator(b.Red(), true); err != nil {
				t.Fatal(err)
			}
			if err := b.SetIndicator(b.Green(), false); err != nil {
				t.Fatal(err)
			}
			if err := b.Close(); err != nil {
				t.Fatal(err)
			}

			if err := bus.Close(); err != nil {
				t.Fatalf("unconsumed bus traffic: %v", err)
			}
		})
	}
}

func TestNewRejectsUnknownDevice(t *testing.T) {
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: vcnl4035Addr, W: []byte{regVcnlID}, R: []byte{0x00, 0x00}},
	}}

	_, err := New(bus, testConfig())
	if !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected a configuration failure, got %v", err)
	}
}

func TestNewRejectsMissingLEDPin(t *testing.T) {
	config := testConfig()
	config.LEDs.Blue = 8

	_, err := New(&i2ctest.Playback{}, config)
	if !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected a configuration failure, got %v", err)
	}
}

type failingBus struct {
	err error
}

func (f *failingBus) String() string { return "failing" }

func (f *failingBus) Tx(uint16, []byte, []byte) error { return f.err }

func (f *failingBus) SetSpeed(physic.Frequency) error { return nil }

func TestReadFailuresAreTransient(t *testing.T) {
	bus := &i2ctest.Playback{Ops: configureOps()}
	b, err := New(bus, testConfig())
	if err != nil {
		t.Fatalf("New(): %v", err)
	}

	nack := errors.New("nack")
	broken := &failingBus{err: nack}
	b.proximity.dev.Bus = broken
	b.colour.dev.Bus = broken
	b.leds.dev.Bus = broken

	if _, err := b.ReadProximity(); !errors.Is(err, fault.ErrTransientIO) || !errors.Is(err, nack) {
		t.Fatalf("ReadProximity(): %v", err)
	}
	if _, err := b.ReadAmbientLight(); !errors.Is(err, fault.ErrTransientIO) {
		t.Fatalf("ReadAmbientLight(): %v", err)
	}
	if _, err := b.ReadColor(); !errors.Is(err, fault.ErrTransientIO) {
		t.Fatalf("ReadColor(): %v", err)
	}
	if _, err := b.ReadInterruptFlag(); !errors.Is(err, fault.ErrTransientIO) {
		t.Fatalf("ReadInterruptFlag(): %v", err)
	}
	if err := b.SetIndicator(b.Green(), true); !errors.Is(err, fault.ErrTransientIO) {
		t.Fatalf("SetIndicator(): %v", err)
	}
	if b.leds.lit != 0 {
		t.Fatal("a failed write must not change the cached led state")
	}
}
