// Package sendlimit throttles outbound-send tools per session over a
// fixed window that resets when it elapses. Consulted by the policy
// engine's rate layer.
package sendlimit

import (
	"fmt"
	"sync"
	"time"
)

// Limit is the per-session budget for one tool over a window.
// Zero values mean unlimited.
type Limit struct {
	MaxSends int           `yaml:"max_sends"`
	Window   time.Duration `yaml:"window"`
}

// DefaultLimits throttle the tools that send on the user's behalf.
var DefaultLimits = map[string]Limit{
	"communication_hub": {MaxSends: 10, Window: time.Hour},
	"telegram_bridge":   {MaxSends: 30, Window: time.Hour},
}

// CheckResult is the outcome of a throttle check.
type CheckResult struct {
	Exceeded bool
	Current  int
	Limit    int
	Reason   string
}

type window struct {
	count int
	start time.Time
}

// Tracker owns the per-session send counters.
type Tracker struct {
	mu      sync.Mutex
	limits  map[string]Limit
	windows map[string]*window // keyed by session|tool
	now     func() time.Time
}

// NewTracker creates a Tracker. Nil limits uses DefaultLimits.
func NewTracker(limits map[string]Limit) *Tracker {
	if limits == nil {
		limits = DefaultLimits
	}
	return &Tracker{
		limits:  limits,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check consults the throttle for one prospective send. Within budget the
// counter is incremented; over budget the send is reported exceeded and the
// counter left unchanged.
func (t *Tracker) Check(sessionID, toolID string) CheckResult {
	limit, ok := t.limits[toolID]
	if !ok || limit.MaxSends <= 0 || limit.Window <= 0 {
		return CheckResult{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionID + "|" + toolID
	now := t.now()
	w := t.windows[key]
	if w == nil || now.Sub(w.start) >= limit.Window {
		w = &window{start: now}
		t.windows[key] = w
	}

	if w.count >= limit.MaxSends {
		return CheckResult{
			Exceeded: true,
			Current:  w.count,
			Limit:    limit.MaxSends,
			Reason: fmt.Sprintf("send limit exceeded for %s: %d/%d in %s window",
				toolID, w.count, limit.MaxSends, limit.Window),
		}
	}

	w.count++
	return CheckResult{Current: w.count, Limit: limit.MaxSends}
}

// Peek reports the throttle state without counting a send. Dry-run
// evaluations use it so they cannot drain the real budget.
func (t *Tracker) Peek(sessionID, toolID string) CheckResult {
	limit, ok := t.limits[toolID]
	if !ok || limit.MaxSends <= 0 || limit.Window <= 0 {
		return CheckResult{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.windows[sessionID+"|"+toolID]
	if w == nil || t.now().Sub(w.start) >= limit.Window {
		return CheckResult{Limit: limit.MaxSends}
	}

	if w.count >= limit.MaxSends {
		return CheckResult{
			Exceeded: true,
			Current:  w.count,
			Limit:    limit.MaxSends,
			Reason: fmt.Sprintf("send limit exceeded for %s: %d/%d in %s window",
				toolID, w.count, limit.MaxSends, limit.Window),
		}
	}
	return CheckResult{Current: w.count, Limit: limit.MaxSends}
}
