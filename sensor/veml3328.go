package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"

	"intellilight/colour"
)

// VEML3328: RGB colour sensor
const veml3328Addr = 0x10

const (
	regVemlConf = 0x00
	regRed      = 0x05
	regGreen    = 0x06
	regBlue     = 0x07
	regVemlID   = 0x0C

	vemlID = 0x28

	// Every channel powered, 50ms integration
	vemlConf = 0x0000
)

type veml3328 struct {
	dev *i2c.Dev
}

func (v *veml3328) configure() error {
	id, err := readWord(v.dev, regVemlID)
	if err != nil {
		return err
	}
	if byte(id) != vemlID {
		return fmt.Errorf("unexpected device id 0x%02x", byte(id))
	}

	return writeWord(v.dev, regVemlConf, vemlConf)
}

func (v *veml3328) read() (colour.RGB, error) {
	var c colour.RGB
	var err error

	if c.R, err = readWord(v.dev, regRed); err != nil {
		return c, err
	}
	if c.G, err = readWord(v.dev, regGreen); err != nil {
		return c, err
	}
	if c.B, err = readWord(v.dev, regBlue); err != nil {
		return c, err
	}

	return c, nil
}
