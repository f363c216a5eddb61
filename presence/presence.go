package presence

import (
	"time"
)

// Message is published whenever presence flips
type Message struct {
	State   bool  `json:"state"`
	Updated int64 `json:"updated"`
}

// Detector decides presence from a raw proximity count
type Detector struct {
	// Counts at or below this are "nobody there"
	Threshold int
}

func (d Detector) Present(proximity int) bool {
	return proximity > d.Threshold
}

// Tracker remembers the last presence and only reports changes
type Tracker struct {
	current *bool
}

// Observe returns the message to publish and whether presence changed. The
// first observation always counts as a change.
func (t *Tracker) Observe(present bool, now time.Time) (Message, bool) {
	if t.current != nil && *t.current == present {
		return Message{}, false
	}

	t.current = &present

	return Message{State: present, Updated: now.UnixMilli()}, true
}

// Reset forgets the last presence, the next observation is reported again
func (t *Tracker) Reset() {
	t.current = nil
}
