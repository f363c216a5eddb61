package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"intellilight/bulb"
	"intellilight/control"
	"intellilight/kasa"
	"intellilight/logger"
	"intellilight/sensor"
)

// Board is the sensor board as the boot cycle uses it
type Board interface {
	control.Peripherals
	Red() sensor.LED
	Green() sensor.LED
	Blue() sensor.LED
	Close() error
}

// Opener opens the sensor board at the start of every boot cycle
type Opener func() (Board, error)

type Bulb interface {
	bulb.Gateway
	WaitReachable(ctx context.Context) (kasa.Sysinfo, error)
}

// BootObserver hands out an observer for a single boot cycle
type BootObserver interface {
	Boot(id uuid.UUID) control.Observer
}

type Notifier interface {
	Sleeping() error
	Awake() error
	Fault(err error) error
}

type Option func(a *App)

func WithObserver(o BootObserver) Option {
	return func(a *App) {
		a.observers = append(a.observers, o)
	}
}

func WithNotifier(n Notifier) Option {
	return func(a *App) {
		a.notify = n
	}
}

func WithClock(clock control.Clock) Option {
	return func(a *App) {
		a.clock = clock
	}
}

// App runs boot cycles: open the board, wait for the bulb, force it off and
// follow presence until the controller slept and woke up again
type App struct {
	config control.Config
	open   Opener
	bulb   Bulb
	power  control.Power
	log    *logger.Logger

	observers []BootObserver
	notify    Notifier
	clock     control.Clock

	cycles int
}

func New(config control.Config, open Opener, b Bulb, power control.Power, log *logger.Logger, opts ...Option) *App {
	a := &App{
		config: config,
		open:   open,
		bulb:   b,
		power:  power,
		log:    log.Named("app"),
		notify: nopNotifier{},
		clock:  control.RealClock{},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Run returns nil once ctx is done. Any other return is fatal, the light
// should not be driven anymore.
func (a *App) Run(ctx context.Context) error {
	for {
		err := a.cycle(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if nerr := a.notify.Fault(err); nerr != nil {
				a.log.Warnw("Failed to send notification", "err", nerr)
			}
			return err
		}

		a.cycles++
	}
}

func (a *App) cycle(ctx context.Context) error {
	boot := uuid.New()
	log := a.log.With("boot", boot)

	board, err := a.open()
	if err != nil {
		return fmt.Errorf("open sensor board: %w", err)
	}
	defer func() {
		if err := board.Close(); err != nil {
			log.Warnw("Failed to close sensor board", "err", err)
		}
	}()

	if a.cycles > 0 {
		log.Info("Woke up")
		if err := a.notify.Awake(); err != nil {
			log.Warnw("Failed to send notification", "err", err)
		}
	}

	// Red while setting up, blue while looking for the bulb
	a.indicate(log, board, board.Red())

	config := a.config
	config.Indicator = board.Green()

	opts := []control.Option{
		control.WithLogger(log.Named("control")),
		control.WithClock(a.clock),
		control.WithObserver(sleepNotifier{notify: a.notify, log: log}),
	}
	for _, o := range a.observers {
		opts = append(opts, control.WithObserver(o.Boot(boot)))
	}

	c, err := control.New(config, board, a.bulb, a.power, opts...)
	if err != nil {
		return err
	}

	a.indicate(log, board, board.Blue())
	info, err := a.bulb.WaitReachable(ctx)
	if err != nil {
		return err
	}
	log.Infow("Found smartbulb", "alias", info.Alias, "model", info.Model)

	if err := c.Sync(ctx); err != nil {
		return err
	}
	a.indicate(log, board)

	return c.Run(ctx)
}

// indicate lights exactly the given status LEDs
func (a *App) indicate(log *logger.Logger, board Board, leds ...sensor.LED) {
	lit := make(map[sensor.LED]bool)
	for _, led := range leds {
		lit[led] = true
	}

	for _, led := range []sensor.LED{board.Red(), board.Blue()} {
		if err := board.SetIndicator(led, lit[led]); err != nil {
			log.Warnw("Failed to set status led", "led", led, "err", err)
		}
	}
}

type sleepNotifier struct {
	notify Notifier
	log    *logger.Logger
}

func (s sleepNotifier) OnReading(control.Reading) {}

func (s sleepNotifier) OnDispatch(control.Dispatch) {}

func (s sleepNotifier) OnPhase(p control.Phase, state bulb.State) {
	if p != control.Asleep {
		return
	}

	if err := s.notify.Sleeping(); err != nil {
		s.log.Warnw("Failed to send notification", "err", err)
	}
}

type nopNotifier struct{}

func (nopNotifier) Sleeping() error { return nil }

func (nopNotifier) Awake() error { return nil }

func (nopNotifier) Fault(error) error { return nil }
