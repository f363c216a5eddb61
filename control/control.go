package control

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"intellilight/bulb"
	"intellilight/colour"
	"intellilight/fault"
	"intellilight/logger"
	"intellilight/presence"
	"intellilight/sensor"
)

type Phase int

const (
	AwakeBulbOff Phase = iota
	AwakeBulbOn
	Asleep
)

func (p Phase) String() string {
	switch p {
	case AwakeBulbOff:
		return "awake, bulb off"
	case AwakeBulbOn:
		return "awake, bulb on"
	case Asleep:
		return "asleep"
	}

	return fmt.Sprintf("Phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	switch p {
	case AwakeBulbOff:
		return []byte("awake_bulb_off"), nil
	case AwakeBulbOn:
		return []byte("awake_bulb_on"), nil
	case Asleep:
		return []byte("asleep"), nil
	}

	return nil, fmt.Errorf("unknown phase %d", int(p))
}

func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "awake_bulb_off":
		*p = AwakeBulbOff
	case "awake_bulb_on":
		*p = AwakeBulbOn
	case "asleep":
		*p = Asleep
	default:
		return fmt.Errorf("unknown phase '%s'", text)
	}

	return nil
}

type Peripherals interface {
	ReadProximity() (int, error)
	ReadAmbientLight() (int, error)
	ReadColor() (colour.RGB, error)
	ReadInterruptFlag() (bool, error)
	SetIndicator(led sensor.LED, on bool) error
}

type Power interface {
	ArmWake(pin string, activeLevel bool) error
	// EnterDeepSleep blocks until the armed wake line fires
	EnterDeepSleep(ctx context.Context) error
}

// Observer gets told about everything the loop does. Calls are made from the
// loop itself so they should not block for long.
type Observer interface {
	OnReading(r Reading)
	OnDispatch(d Dispatch)
	OnPhase(p Phase, s bulb.State)
}

// Reading is one sensor acquisition. A channel that failed to read has its
// error set and its value left at zero.
type Reading struct {
	At        time.Time    `json:"at"`
	Proximity int          `json:"proximity"`
	Ambient   int          `json:"ambient"`
	Color     colour.RGB   `json:"color"`
	HSV       colour.HSV   `json:"hsv"`
	Interrupt bool         `json:"interrupt"`
	Present   bool         `json:"present"`
	Errors    ReadingError `json:"-"`
}

type ReadingError struct {
	Proximity error
	Ambient   error
	Color     error
	Interrupt error
	Indicator error
}

func (e ReadingError) Err() error {
	return errors.Join(e.Proximity, e.Ambient, e.Color, e.Interrupt, e.Indicator)
}

// Dispatch is one attempted bulb command
type Dispatch struct {
	At      time.Time    `json:"at"`
	Command bulb.Command `json:"command"`
	Err     error        `json:"-"`
	// State after the attempt, unchanged if it failed
	State bulb.State `json:"state"`
}

type Option func(c *Controller)

func WithClock(clock Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, o)
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

var ErrNotSynced = fault.Invariant(errors.New("controller has not synced the bulb"))
var ErrAsleep = fault.Invariant(errors.New("controller went to sleep, start a new one"))

// Controller is one boot cycle of the light: it syncs the bulb off, follows
// presence and ambient light until nobody is around and then sleeps. After
// waking a new Controller has to be created.
type Controller struct {
	config      Config
	peripherals Peripherals
	gateway     bulb.Gateway
	power       Power
	clock       Clock
	observers   []Observer
	log         *logger.Logger
	presence    presence.Detector

	mu     sync.Mutex
	state  bulb.State
	phase  Phase
	synced bool
}

func New(config Config, peripherals Peripherals, gateway bulb.Gateway, power Power, opts ...Option) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		config:      config,
		peripherals: peripherals,
		gateway:     gateway,
		power:       power,
		clock:       RealClock{},
		log:         logger.Nop(),
		presence:    presence.Detector{Threshold: config.ProximityThreshold},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Controller) State() bulb.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.phase
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	changed := c.phase != p || !c.synced
	c.phase = p
	state := c.state
	c.mu.Unlock()

	if !changed {
		return
	}

	c.log.Infow("Phase changed", "phase", p, "state", state)
	for _, o := range c.observers {
		o.OnPhase(p, state)
	}
}

// Sync forces the bulb off so that it matches the startup state. The bulb
// must be reachable, failing here is fatal for this boot cycle.
func (c *Controller) Sync(ctx context.Context) error {
	c.log.Info("Turning off smartbulb to begin with")

	if err := c.dispatch(ctx, bulb.Power(false)); err != nil {
		return fault.Configuration(fmt.Errorf("initial power off: %w", err))
	}

	c.mu.Lock()
	c.state = bulb.State{}
	c.mu.Unlock()

	c.setPhase(AwakeBulbOff)

	c.mu.Lock()
	c.synced = true
	c.mu.Unlock()

	return nil
}

// Run steps until the controller went to sleep and woke up again, ctx is done
// or a fatal error occurs. Transient failures are logged and retried on the
// next iteration.
func (c *Controller) Run(ctx context.Context) error {
	for {
		phase, err := c.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if fault.Fatal(err) {
				return err
			}
			c.log.Warnw("Iteration failed", "err", err)
		}

		if phase == Asleep {
			return nil
		}
	}
}

// Step runs a single iteration of the loop and returns the phase after it
func (c *Controller) Step(ctx context.Context) (Phase, error) {
	c.mu.Lock()
	synced, phase := c.synced, c.phase
	c.mu.Unlock()

	if !synced {
		return phase, ErrNotSynced
	}
	if phase == Asleep {
		return phase, ErrAsleep
	}

	indicatorErr, err := c.settleIndicator(ctx)
	if err != nil {
		return phase, err
	}

	r := c.acquire()
	r.Errors.Indicator = indicatorErr

	c.log.Infow("Sensor reading", "rgb", r.Color, "proximity", r.Proximity, "ambient", r.Ambient, "interrupt", r.Interrupt)
	if r.Errors.Interrupt != nil {
		c.log.Warnw("Failed to read interrupt flag", "err", r.Errors.Interrupt)
	}
	for _, o := range c.observers {
		o.OnReading(r)
	}

	if r.Errors.Proximity != nil {
		return phase, r.Errors.Proximity
	}

	state := c.State()
	if r.Present != state.On {
		if err := c.dispatch(ctx, bulb.Power(r.Present)); err != nil {
			return phase, err
		}

		if !r.Present {
			return c.sleep(ctx)
		}

		c.setPhase(AwakeBulbOn)
		state = c.State()
	}

	if !state.On {
		return c.Phase(), nil
	}

	var errs []error

	if r.Errors.Ambient != nil {
		errs = append(errs, r.Errors.Ambient)
	} else if cmd, ok := c.brightnessChange(state, r.Ambient); ok {
		if err := c.dispatch(ctx, cmd); err != nil {
			errs = append(errs, err)
		}
	}

	// A colour read that saw our own indicator is worthless
	switch {
	case r.Errors.Indicator != nil:
		errs = append(errs, r.Errors.Indicator)
	case r.Errors.Color != nil:
		errs = append(errs, r.Errors.Color)
	default:
		if cmd, ok := c.colorChange(state, r.HSV); ok {
			if err := c.dispatch(ctx, cmd); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return c.Phase(), errors.Join(errs...)
}

// The indicator is lit and then dark for one settle time each, only failing
// to turn it off taints the colour reading.
func (c *Controller) settleIndicator(ctx context.Context) (indicatorErr error, err error) {
	led := c.config.Indicator

	if err := c.peripherals.SetIndicator(led, true); err != nil {
		c.log.Warnw("Failed to light indicator", "err", err)
	}
	if err = c.clock.Sleep(ctx, c.config.IndicatorSettle); err != nil {
		return nil, err
	}

	if indicatorErr = c.peripherals.SetIndicator(led, false); indicatorErr != nil {
		indicatorErr = fault.Transient(fmt.Errorf("indicator stuck on: %w", indicatorErr))
	}
	err = c.clock.Sleep(ctx, c.config.IndicatorSettle)

	return indicatorErr, err
}

func (c *Controller) acquire() Reading {
	r := Reading{At: c.clock.Now()}

	r.Color, r.Errors.Color = c.peripherals.ReadColor()
	if r.Errors.Color == nil {
		r.HSV = colour.ToHSV(r.Color)
	}
	r.Proximity, r.Errors.Proximity = c.peripherals.ReadProximity()
	r.Ambient, r.Errors.Ambient = c.peripherals.ReadAmbientLight()
	r.Interrupt, r.Errors.Interrupt = c.peripherals.ReadInterruptFlag()

	if r.Errors.Proximity == nil {
		r.Present = c.presence.Present(r.Proximity)
	}

	return r
}

func (c *Controller) brightnessChange(state bulb.State, ambient int) (bulb.Command, bool) {
	brightness := c.config.AmbientScale.Map(ambient)
	if abs(brightness-state.Brightness) <= c.config.BrightnessDeadband {
		return bulb.Command{}, false
	}

	return bulb.Brightness(brightness), true
}

func (c *Controller) colorChange(state bulb.State, hsv colour.HSV) (bulb.Command, bool) {
	hue := hsv.RoundedHue()
	if abs(hue-int(math.Round(state.Color.Hue))) <= c.config.HueDeadband {
		return bulb.Command{}, false
	}

	saturation := c.config.Saturation
	if c.config.MeasuredSaturation {
		saturation = hsv.RoundedSaturation()
	}

	return bulb.Color(hue, saturation), true
}

// dispatch sends cmd and only records it in the state once the bulb accepted
// it
func (c *Controller) dispatch(ctx context.Context, cmd bulb.Command) error {
	err := bulb.Send(ctx, c.gateway, cmd)

	c.mu.Lock()
	if err == nil {
		c.state = c.state.Apply(cmd)
	}
	state := c.state
	c.mu.Unlock()

	if err != nil {
		c.log.Warnw("Failed to send command to smartbulb", "command", cmd, "err", err)
	} else {
		c.log.Debugw("Sent command to smartbulb", "command", cmd, "state", state)
	}

	d := Dispatch{At: c.clock.Now(), Command: cmd, Err: err, State: state}
	for _, o := range c.observers {
		o.OnDispatch(d)
	}

	return err
}

func (c *Controller) sleep(ctx context.Context) (Phase, error) {
	if err := c.power.ArmWake(c.config.Wake.Pin, c.config.Wake.ActiveHigh); err != nil {
		return c.Phase(), fault.Configuration(fmt.Errorf("arm wake interrupt: %w", err))
	}

	c.setPhase(Asleep)

	if err := c.power.EnterDeepSleep(ctx); err != nil {
		return Asleep, err
	}

	return Asleep, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
