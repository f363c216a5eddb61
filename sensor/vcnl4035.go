package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

// VCNL4035: proximity, ambient light and the interrupt that wakes us up
const vcnl4035Addr = 0x60

const (
	regAlsConf   = 0x00
	regPsConf12  = 0x03
	regPsConf3Ms = 0x04
	regPsThdl    = 0x06
	regPsThdh    = 0x07
	regPs1Data   = 0x08
	regAlsData   = 0x0B
	regIntFlag   = 0x0D
	regVcnlID    = 0x0E

	vcnlID = 0x80
)

const (
	// ALS on, 50ms integration
	alsConf = 0x0000
	// PS_CONF1: on, 8T integration. PS_CONF2: 16 bit output, interrupt when
	// something comes close
	psConf12 = 0x0E | (psHD|psIntClose)<<8
	// PS_MS: 200mA LED current
	psConf3Ms = 0x07 << 8

	psHD       = 1 << 3
	psIntClose = 0x01

	psIfAway  = 1 << 0
	psIfClose = 1 << 1
)

type vcnl4035 struct {
	dev *i2c.Dev
}

func (v *vcnl4035) configure(threshold uint16) error {
	id, err := readWord(v.dev, regVcnlID)
	if err != nil {
		return err
	}
	if byte(id) != vcnlID {
		return fmt.Errorf("unexpected device id 0x%02x", byte(id))
	}

	writes := []struct {
		reg   byte
		value uint16
	}{
		{regAlsConf, alsConf},
		{regPsConf12, psConf12},
		{regPsConf3Ms, psConf3Ms},
		{regPsThdl, 0},
		{regPsThdh, threshold},
	}
	for _, w := range writes {
		if err := writeWord(v.dev, w.reg, w.value); err != nil {
			return fmt.Errorf("write register 0x%02x: %w", w.reg, err)
		}
	}

	return nil
}

func (v *vcnl4035) proximity() (uint16, error) {
	return readWord(v.dev, regPs1Data)
}

func (v *vcnl4035) ambient() (uint16, error) {
	return readWord(v.dev, regAlsData)
}

// The flags live in the high byte
func (v *vcnl4035) interruptFlags() (byte, error) {
	w, err := readWord(v.dev, regIntFlag)
	if err != nil {
		return 0, err
	}

	return byte(w >> 8), nil
}
