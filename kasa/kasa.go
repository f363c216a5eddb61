package kasa

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"intellilight/bulb"
	"intellilight/fault"
	"intellilight/logger"
)

// This implementation is based on:
// https://www.softscheck.com/en/blog/tp-link-reverse-engineering/

const (
	DefaultPort           = 9999
	DefaultStartupTimeout = time.Minute
)

type Config struct {
	Host    string        `yaml:"host" envconfig:"INTELLILIGHT_BULB_HOST"`
	Port    int           `yaml:"port" envconfig:"INTELLILIGHT_BULB_PORT"`
	Timeout time.Duration `yaml:"timeout"`
	// Commands per second, 0 disables limiting
	RateLimit float64 `yaml:"rate_limit"`
	// How long to wait for the bulb to show up on the network after boot, 0
	// uses DefaultStartupTimeout
	StartupTimeout time.Duration `yaml:"startup_timeout"`
}

func encrypt(data []byte) []byte {
	var key byte = 171
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, uint32(len(data)))

	for _, c := range data {
		a := key ^ c
		key = a
		buf.WriteByte(a)
	}

	return buf.Bytes()
}

func decrypt(data []byte) []byte {
	var key byte = 171
	buf := make([]byte, len(data))

	for i, c := range data {
		buf[i] = key ^ c
		key = c
	}

	return buf
}

// Bulb is a TP-Link Kasa smart bulb (KL1xx/LB1xx) on the local network
type Bulb struct {
	config  Config
	limiter *rate.Limiter
	log     *logger.Logger
}

var _ bulb.Gateway = (*Bulb)(nil)

func New(config Config, log *logger.Logger) *Bulb {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Second
	}
	if config.StartupTimeout <= 0 {
		config.StartupTimeout = DefaultStartupTimeout
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	return &Bulb{
		config:  config,
		limiter: rate.NewLimiter(limit, 1),
		log:     log.Named("kasa"),
	}
}

func (k *Bulb) addr() string {
	return net.JoinHostPort(k.config.Host, strconv.Itoa(k.config.Port))
}

func (k *Bulb) sendCmd(ctx context.Context, c cmd) (reply, error) {
	if err := k.limiter.Wait(ctx); err != nil {
		return reply{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, k.config.Timeout)
	defer cancel()

	var dialer net.Dialer
	con, err := dialer.DialContext(ctx, "tcp", k.addr())
	if err != nil {
		return reply{}, err
	}
	defer con.Close()

	if deadline, ok := ctx.Deadline(); ok {
		con.SetDeadline(deadline)
	}

	b, err := json.Marshal(c)
	if err != nil {
		return reply{}, err
	}

	if _, err = con.Write(encrypt(b)); err != nil {
		return reply{}, err
	}

	header := make([]byte, 4)
	if _, err = io.ReadFull(con, header); err != nil {
		return reply{}, fmt.Errorf("read reply header: %w", err)
	}

	size := binary.BigEndian.Uint32(header)
	if size > 64*1024 {
		return reply{}, fmt.Errorf("reply of %d bytes is too large", size)
	}

	resp := make([]byte, size)
	if _, err = io.ReadFull(con, resp); err != nil {
		return reply{}, fmt.Errorf("read reply: %w", err)
	}

	var r reply
	if err := json.Unmarshal(decrypt(resp), &r); err != nil {
		return reply{}, fmt.Errorf("decode reply: %w", err)
	}

	return r, nil
}

func (k *Bulb) setLightState(ctx context.Context, state lightState) error {
	reply, err := k.sendCmd(ctx, newLightState(state))
	if err != nil {
		return fault.Transient(fmt.Errorf("kasa %s: %w", k.addr(), err))
	}

	if code := reply.Lighting.TransitionLightState; code.ErrCode != 0 {
		return fault.Transient(fmt.Errorf("kasa %s: failed to set light state, error: %d %s", k.addr(), code.ErrCode, code.ErrMsg))
	}

	return nil
}

// bulb.Gateway
func (k *Bulb) SetPower(ctx context.Context, on bool) error {
	state := 0
	if on {
		state = 1
	}

	return k.setLightState(ctx, lightState{OnOff: intPtr(state)})
}

// bulb.Gateway
func (k *Bulb) SetBrightness(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return fault.Invariant(fmt.Errorf("brightness %d%% is out of range", percent))
	}

	return k.setLightState(ctx, lightState{Brightness: intPtr(percent)})
}

// bulb.Gateway
func (k *Bulb) SetColor(ctx context.Context, hue int, saturation int) error {
	if hue < 0 || hue >= 360 || saturation < 0 || saturation > 100 {
		return fault.Invariant(fmt.Errorf("colour hue=%d sat=%d is out of range", hue, saturation))
	}

	return k.setLightState(ctx, lightState{Hue: intPtr(hue), Saturation: intPtr(saturation), ColorTemp: intPtr(0)})
}

func (k *Bulb) Sysinfo(ctx context.Context) (Sysinfo, error) {
	reply, err := k.sendCmd(ctx, newGetSysinfo())
	if err != nil {
		return Sysinfo{}, fault.Transient(fmt.Errorf("kasa %s: %w", k.addr(), err))
	}

	info := reply.System.GetSysinfo
	if info.ErrCode != 0 {
		return info, fault.Transient(fmt.Errorf("kasa %s: failed to get sysinfo, error: %d %s", k.addr(), info.ErrCode, info.ErrMsg))
	}

	return info, nil
}

// WaitReachable polls the bulb with exponential backoff until it answers or
// the startup timeout runs out. An unreachable bulb is a configuration failure.
func (k *Bulb) WaitReachable(ctx context.Context) (Sysinfo, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = k.config.StartupTimeout

	var info Sysinfo
	operation := func() error {
		var err error
		info, err = k.Sysinfo(ctx)
		return err
	}
	notify := func(err error, next time.Duration) {
		k.log.Infow("Waiting for connection to smartbulb", "err", err, "retry_in", next)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return Sysinfo{}, fault.Configuration(fmt.Errorf("smartbulb never became reachable: %w", err))
	}

	k.log.Infow("Smartbulb reachable", "alias", info.Alias, "model", info.Model)

	return info, nil
}
