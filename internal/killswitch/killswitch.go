// Package killswitch holds the global emergency-disable latch. While
// engaged, the policy engine denies every tool except the designated
// unlock tool, so the switch can always be released from the same channel
// that engaged it.
package killswitch

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultUnlockTool is the tool id exempted from an engaged kill-switch.
const DefaultUnlockTool = "policy_guardrail"

// State is a snapshot of the kill-switch.
type State struct {
	Engaged   bool      `json:"engaged"`
	Reason    string    `json:"reason,omitempty"`
	EngagedAt time.Time `json:"engaged_at,omitempty"`
}

// Switch is the process-wide emergency disable latch.
type Switch struct {
	mu         sync.RWMutex
	engaged    bool
	reason     string
	engagedAt  time.Time
	unlockTool string
}

// New creates a disengaged Switch. Empty unlockTool uses the default.
func New(unlockTool string) *Switch {
	if unlockTool == "" {
		unlockTool = DefaultUnlockTool
	}
	return &Switch{unlockTool: unlockTool}
}

// Engage activates the kill-switch. A reason is required so the audit
// trail can explain the lockdown.
func (s *Switch) Engage(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("killswitch: a reason is required to engage")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engaged = true
	s.reason = reason
	s.engagedAt = time.Now().UTC()
	return nil
}

// Release deactivates the kill-switch.
func (s *Switch) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engaged = false
	s.reason = ""
	s.engagedAt = time.Time{}
}

// Blocks reports whether the switch currently denies the given tool,
// along with the engage reason.
func (s *Switch) Blocks(toolID string) (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.engaged {
		return false, ""
	}
	if toolID == s.unlockTool {
		return false, ""
	}
	return true, fmt.Sprintf("emergency disable engaged: %s", s.reason)
}

// UnlockTool returns the exempted tool id.
func (s *Switch) UnlockTool() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unlockTool
}

// Snapshot returns the current state.
func (s *Switch) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Engaged: s.engaged, Reason: s.reason, EngagedAt: s.engagedAt}
}
