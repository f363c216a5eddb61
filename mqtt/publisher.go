package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"intellilight/bulb"
	"intellilight/control"
	"intellilight/logger"
	"intellilight/presence"
)

// Client is the part of paho.Client the publisher needs
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

type StateMessage struct {
	Boot    uuid.UUID     `json:"boot"`
	Phase   control.Phase `json:"phase"`
	State   bulb.State    `json:"state"`
	Updated int64         `json:"updated"`
}

// Publisher mirrors the light on the broker, state and presence are retained
type Publisher struct {
	client Client
	config Config
	log    *logger.Logger

	mu      sync.Mutex
	boot    uuid.UUID
	tracker presence.Tracker
}

func NewPublisher(client Client, config Config, log *logger.Logger) *Publisher {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Publisher{client: client, config: config, log: log.Named("mqtt")}
}

func (p *Publisher) stateTopic() string {
	return fmt.Sprintf("%s/%s/state", p.config.Prefix, p.config.Name)
}

func (p *Publisher) readingTopic() string {
	return fmt.Sprintf("%s/%s/reading", p.config.Prefix, p.config.Name)
}

func (p *Publisher) presenceTopic() string {
	return fmt.Sprintf("%s/presence/%s", p.config.Prefix, p.config.Name)
}

// Boot starts publishing for a new boot cycle. Presence is reported again
// even if it did not change across the sleep.
func (p *Publisher) Boot(id uuid.UUID) control.Observer {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.boot = id
	p.tracker.Reset()

	return p
}

func (p *Publisher) OnReading(r control.Reading) {
	p.publish(p.readingTopic(), false, r)

	if r.Errors.Proximity != nil {
		return
	}

	p.mu.Lock()
	msg, changed := p.tracker.Observe(r.Present, r.At)
	p.mu.Unlock()

	if changed {
		p.publish(p.presenceTopic(), true, msg)
	}
}

// OnDispatch publishes the new bulb state. Commands are only sent while
// awake, so the phase follows from the power state.
func (p *Publisher) OnDispatch(d control.Dispatch) {
	if d.Err != nil {
		return
	}

	phase := control.AwakeBulbOff
	if d.State.On {
		phase = control.AwakeBulbOn
	}

	p.publishState(phase, d.State, d.At)
}

func (p *Publisher) OnPhase(phase control.Phase, state bulb.State) {
	p.publishState(phase, state, time.Now())
}

func (p *Publisher) publishState(phase control.Phase, state bulb.State, at time.Time) {
	p.mu.Lock()
	boot := p.boot
	p.mu.Unlock()

	p.publish(p.stateTopic(), true, StateMessage{
		Boot:    boot,
		Phase:   phase,
		State:   state,
		Updated: at.UnixMilli(),
	})
}

func (p *Publisher) publish(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Errorw("Failed to encode message", "topic", topic, "err", err)
		return
	}

	token := p.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(p.config.Timeout) {
		p.log.Warnw("Timed out publishing", "topic", topic)
		return
	}
	if token.Error() != nil {
		p.log.Warnw("Failed to publish", "topic", topic, "err", token.Error())
	}
}
