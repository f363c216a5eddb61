package sensor

import (
	"periph.io/x/conn/v3/i2c"
)

// PCA9554: 8-bit GPIO expander driving the board LEDs
const pca9554Addr = 0x20

const (
	regOutput = 0x01
	regConfig = 0x03
)

type pca9554 struct {
	dev       *i2c.Dev
	mask      byte
	activeLow bool

	// Logical LED state, one bit per pin
	lit byte
}

func (p *pca9554) configure() error {
	p.lit = 0
	if err := p.write(regOutput, p.level()); err != nil {
		return err
	}

	// Cleared bits are outputs
	return p.write(regConfig, ^p.mask)
}

func (p *pca9554) set(led LED, on bool) error {
	lit := p.lit
	if on {
		lit |= 1 << led
	} else {
		lit &^= 1 << led
	}

	prev := p.lit
	p.lit = lit
	if err := p.write(regOutput, p.level()); err != nil {
		p.lit = prev
		return err
	}

	return nil
}

func (p *pca9554) allOff() error {
	p.lit = 0
	return p.write(regOutput, p.level())
}

func (p *pca9554) level() byte {
	if p.activeLow {
		return ^p.lit
	}

	return p.lit
}

func (p *pca9554) write(reg byte, value byte) error {
	return p.dev.Tx([]byte{reg, value}, nil)
}
