package kasa

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"intellilight/fault"
	"intellilight/logger"
)

func TestEncryptDecrypt(t *testing.T) {
	payload := []byte(`{"system":{"get_sysinfo":{}}}`)

	frame := encrypt(payload)
	if got := binary.BigEndian.Uint32(frame[:4]); got != uint32(len(payload)) {
		t.Fatalf("length prefix = %d, want %d", got, len(payload))
	}

	// First byte is the plain text xor'ed with the initial key
	if frame[4] != payload[0]^171 {
		t.Fatalf("unexpected first cipher byte 0x%02x", frame[4])
	}

	if got := string(decrypt(frame[4:])); got != string(payload) {
		t.Fatalf("decrypt(encrypt()) = %q", got)
	}
}

// fakeBulb speaks the kasa framing on a loopback port
type fakeBulb struct {
	listener net.Listener

	mu       sync.Mutex
	requests []map[string]any
	reply    func(req map[string]any) any
}

func newFakeBulb(t *testing.T, reply func(req map[string]any) any) *fakeBulb {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	f := &fakeBulb{listener: l, reply: reply}
	go f.serve()
	t.Cleanup(func() { l.Close() })

	return f
}

func (f *fakeBulb) serve() {
	for {
		con, err := f.listener.Accept()
		if err != nil {
			return
		}

		go func(con net.Conn) {
			defer con.Close()

			header := make([]byte, 4)
			if _, err := io.ReadFull(con, header); err != nil {
				return
			}
			body := make([]byte, binary.BigEndian.Uint32(header))
			if _, err := io.ReadFull(con, body); err != nil {
				return
			}

			var req map[string]any
			if err := json.Unmarshal(decrypt(body), &req); err != nil {
				return
			}

			f.mu.Lock()
			f.requests = append(f.requests, req)
			f.mu.Unlock()

			resp := f.reply(req)
			if resp == nil {
				// Hang up without answering
				return
			}

			b, _ := json.Marshal(resp)
			con.Write(encrypt(b))
		}(con)
	}
}

func (f *fakeBulb) config() Config {
	host, port, _ := net.SplitHostPort(f.listener.Addr().String())
	p, _ := strconv.Atoi(port)

	return Config{Host: host, Port: p, Timeout: time.Second, StartupTimeout: 2 * time.Second}
}

func (f *fakeBulb) lightStates() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	var states []map[string]any
	for _, req := range f.requests {
		service, ok := req["smartlife.iot.smartbulb.lightingservice"].(map[string]any)
		if !ok {
			continue
		}
		states = append(states, service["transition_light_state"].(map[string]any))
	}

	return states
}

func okReply(req map[string]any) any {
	if _, ok := req["system"]; ok {
		return map[string]any{"system": map[string]any{"get_sysinfo": map[string]any{
			"err_code": 0, "alias": "Desk", "model": "KL130(EU)", "is_color": 1,
		}}}
	}

	return map[string]any{"smartlife.iot.smartbulb.lightingservice": map[string]any{
		"transition_light_state": map[string]any{"err_code": 0},
	}}
}

func TestCommands(t *testing.T) {
	f := newFakeBulb(t, okReply)
	k := New(f.config(), logger.Nop())
	ctx := context.Background()

	if err := k.SetPower(ctx, true); err != nil {
		t.Fatalf("SetPower(): %v", err)
	}
	if err := k.SetBrightness(ctx, 60); err != nil {
		t.Fatalf("SetBrightness(): %v", err)
	}
	if err := k.SetColor(ctx, 120, 50); err != nil {
		t.Fatalf("SetColor(): %v", err)
	}
	if err := k.SetPower(ctx, false); err != nil {
		t.Fatalf("SetPower(): %v", err)
	}

	states := f.lightStates()
	if len(states) != 4 {
		t.Fatalf("expected 4 light state commands, got %d", len(states))
	}

	// JSON numbers decode as float64
	expect := []map[string]float64{
		{"on_off": 1},
		{"brightness": 60},
		{"hue": 120, "saturation": 50, "color_temp": 0},
		{"on_off": 0},
	}
	for i, want := range expect {
		got := states[i]
		// transition_period is always present
		if len(got) != len(want)+1 {
			t.Fatalf("command %d: unexpected fields %v", i, got)
		}
		for key, value := range want {
			if got[key] != value {
				t.Fatalf("command %d: %s = %v, want %v", i, key, got[key], value)
			}
		}
	}
}

func TestErrorCodeIsTransient(t *testing.T) {
	f := newFakeBulb(t, func(map[string]any) any {
		return map[string]any{"smartlife.iot.smartbulb.lightingservice": map[string]any{
			"transition_light_state": map[string]any{"err_code": -3, "err_msg": "invalid argument"},
		}}
	})
	k := New(f.config(), logger.Nop())

	err := k.SetPower(context.Background(), true)
	if !errors.Is(err, fault.ErrTransientIO) {
		t.Fatalf("expected a transient failure, got %v", err)
	}
}

func TestUnreachableIsTransient(t *testing.T) {
	f := newFakeBulb(t, func(map[string]any) any { return nil })
	k := New(f.config(), logger.Nop())

	if err := k.SetBrightness(context.Background(), 50); !errors.Is(err, fault.ErrTransientIO) {
		t.Fatalf("expected a transient failure, got %v", err)
	}
}

func TestRejectsOutOfRangeValues(t *testing.T) {
	k := New(Config{Host: "127.0.0.1"}, logger.Nop())
	ctx := context.Background()

	if err := k.SetBrightness(ctx, 101); !errors.Is(err, fault.ErrInvariant) {
		t.Fatalf("SetBrightness(101): %v", err)
	}
	if err := k.SetColor(ctx, 360, 50); !errors.Is(err, fault.ErrInvariant) {
		t.Fatalf("SetColor(360, 50): %v", err)
	}
}

func TestWaitReachable(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	f := newFakeBulb(t, func(req map[string]any) any {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 2 {
			return nil
		}
		return okReply(req)
	})
	k := New(f.config(), logger.Nop())

	info, err := k.WaitReachable(context.Background())
	if err != nil {
		t.Fatalf("WaitReachable(): %v", err)
	}
	if info.Alias != "Desk" || info.IsColor != 1 {
		t.Fatalf("unexpected sysinfo %+v", info)
	}
}

func TestWaitReachableGivesUp(t *testing.T) {
	f := newFakeBulb(t, func(map[string]any) any { return nil })
	config := f.config()
	config.StartupTimeout = 300 * time.Millisecond
	k := New(config, logger.Nop())

	_, err := k.WaitReachable(context.Background())
	if !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected a configuration failure, got %v", err)
	}
}

func TestStartupTimeoutDefault(t *testing.T) {
	k := New(Config{Host: "127.0.0.1"}, logger.Nop())
	if k.config.StartupTimeout != DefaultStartupTimeout {
		t.Fatalf("startup timeout = %s, want %s", k.config.StartupTimeout, DefaultStartupTimeout)
	}

	// Zero would make the backoff retry forever
	k = New(Config{Host: "127.0.0.1", StartupTimeout: 0}, logger.Nop())
	if k.config.StartupTimeout <= 0 {
		t.Fatal("unbounded wait for the bulb")
	}
}
