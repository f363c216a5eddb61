package bulb

import (
	"context"
	"fmt"
)

// Gateway delivers commands to the remote bulb. A nil error means the bulb
// accepted the command.
type Gateway interface {
	SetPower(ctx context.Context, on bool) error
	SetBrightness(ctx context.Context, percent int) error
	SetColor(ctx context.Context, hue int, saturation int) error
}

type Kind string

const (
	KindPower      Kind = "power"
	KindBrightness Kind = "brightness"
	KindColor      Kind = "color"
)

type Command struct {
	Kind       Kind `json:"kind"`
	On         bool `json:"on,omitempty"`
	Brightness int  `json:"brightness,omitempty"`
	Hue        int  `json:"hue,omitempty"`
	Saturation int  `json:"saturation,omitempty"`
}

func Power(on bool) Command {
	return Command{Kind: KindPower, On: on}
}

func Brightness(percent int) Command {
	return Command{Kind: KindBrightness, Brightness: percent}
}

func Color(hue int, saturation int) Command {
	return Command{Kind: KindColor, Hue: hue, Saturation: saturation}
}

// Value is the human readable payload, used in logs and the journal
func (c Command) Value() string {
	switch c.Kind {
	case KindPower:
		if c.On {
			return "on"
		}
		return "off"
	case KindBrightness:
		return fmt.Sprintf("%d%%", c.Brightness)
	case KindColor:
		return fmt.Sprintf("hue=%d sat=%d%%", c.Hue, c.Saturation)
	}

	return ""
}

func (c Command) String() string {
	return fmt.Sprintf("%s %s", c.Kind, c.Value())
}

// Send dispatches c through the gateway
func Send(ctx context.Context, g Gateway, c Command) error {
	switch c.Kind {
	case KindPower:
		return g.SetPower(ctx, c.On)
	case KindBrightness:
		return g.SetBrightness(ctx, c.Brightness)
	case KindColor:
		return g.SetColor(ctx, c.Hue, c.Saturation)
	}

	return fmt.Errorf("unknown command kind '%s'", c.Kind)
}
