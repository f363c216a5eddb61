package ntfy

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Config struct {
	// Notifications are disabled without a topic
	Topic string `yaml:"topic" envconfig:"NTFY_TOPIC"`
	URL   string `yaml:"url" envconfig:"NTFY_URL"`
}

type Notify struct {
	url    string
	client *http.Client
}

func New(config Config) *Notify {
	if config.Topic == "" {
		return &Notify{}
	}

	base := config.URL
	if base == "" {
		base = "https://ntfy.sh"
	}

	return &Notify{
		url:    fmt.Sprintf("%s/%s", strings.TrimSuffix(base, "/"), config.Topic),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *Notify) Sleeping() error {
	return n.send("Light", "zzz", "1", "Nobody around, going to sleep")
}

func (n *Notify) Awake() error {
	return n.send("Light", "bulb", "1", "Woken up by presence")
}

func (n *Notify) Fault(err error) error {
	return n.send("Light fault", "warning", "4", err.Error())
}

func (n *Notify) send(title string, tags string, priority string, description string) error {
	if n.url == "" {
		return nil
	}

	req, err := http.NewRequest("POST", n.url, strings.NewReader(description))
	if err != nil {
		return err
	}

	req.Header.Set("Title", title)
	req.Header.Set("Tags", tags)
	req.Header.Set("Priority", priority)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ntfy responded with %s", resp.Status)
	}

	return nil
}
