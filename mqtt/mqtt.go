package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"intellilight/logger"
)

type Config struct {
	// Telemetry is disabled when no host is set
	Host     string `yaml:"host" envconfig:"MQTT_HOST"`
	Port     string `yaml:"port" envconfig:"MQTT_PORT"`
	Username string `yaml:"username" envconfig:"MQTT_USERNAME"`
	Password string `yaml:"password" envconfig:"MQTT_PASSWORD"`
	ClientID string `yaml:"client_id" envconfig:"MQTT_CLIENT_ID"`
	Prefix   string `yaml:"prefix"`
	// Name of this light in topics
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`
}

const DefaultTimeout = 5 * time.Second

func (c Config) Enabled() bool {
	return c.Host != ""
}

func (c Config) availabilityTopic() string {
	return fmt.Sprintf("%s/%s/availability", c.Prefix, c.Name)
}

func New(config Config, log *logger.Logger) (paho.Client, error) {
	log = log.Named("mqtt")
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	opts := paho.NewClientOptions().AddBroker(fmt.Sprintf("%s:%s", config.Host, config.Port))
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetWill(config.availabilityTopic(), "offline", 1, true)
	opts.SetDefaultPublishHandler(func(client paho.Client, msg paho.Message) {
		log.Debugw("Unexpected message", "topic", msg.Topic(), "payload", string(msg.Payload()))
	})
	opts.SetOnConnectHandler(func(client paho.Client) {
		log.Infow("Connected to broker", "host", config.Host)
		if token := client.Publish(config.availabilityTopic(), 1, true, "online"); token.WaitTimeout(config.Timeout) && token.Error() != nil {
			log.Warnw("Failed to publish availability", "err", token.Error())
		}
	})
	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		log.Warnw("Lost connection to broker", "err", err)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to %s:%s: %w", config.Host, config.Port, token.Error())
	}

	return client, nil
}

func Delete(config Config, client paho.Client, log *logger.Logger) {
	if token := client.Publish(config.availabilityTopic(), 1, true, "offline"); token.WaitTimeout(config.Timeout) && token.Error() != nil {
		log.Warnw("Failed to publish availability", "err", token.Error())
	}

	client.Disconnect(250)
}
