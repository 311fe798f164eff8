// Package alert fans security events out to webhook destinations so a
// blocked dangerous action or a tamper signal reaches an operator channel.
package alert

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // e.g. ["blocked", "tamper", "killswitch"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp string `json:"timestamp"`
	ToolID    string `json:"tool_id"`
	EventKind string `json:"event"`
	Outcome   string `json:"outcome"`
	Layer     string `json:"layer,omitempty"`
	Tier      string `json:"tier,omitempty"`
	Risk      string `json:"risk,omitempty"`
	Reason    string `json:"reason"`
}

// Dispatcher fans out events to matching webhook configurations.
type Dispatcher struct {
	configs []Config
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []Config) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{configs: configs}
}

// Dispatch sends the event to all webhooks whose Events list matches the
// outcome or event kind. Fires goroutines and does not block the caller.
func (d *Dispatcher) Dispatch(event Event) {
	for _, cfg := range d.configs {
		if matches(cfg.Events, event) {
			go Send(cfg, event)
		}
	}
}

func matches(events []string, event Event) bool {
	for _, e := range events {
		if e == event.Outcome || e == event.EventKind {
			return true
		}
	}
	return false
}
