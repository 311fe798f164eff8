// Package autonomy tracks per-tool integrity trust signals and enforces a
// kill-switch-like denial for tools whose integrity is not attested.
// Trust is only ever granted by an explicit external signal; this layer
// never upgrades a tool on its own.
package autonomy

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Signal is one recorded trust attestation for a tool.
type Signal struct {
	Trusted     bool      `json:"trusted"`
	LastChecked time.Time `json:"last_checked"`
}

// Decision is the outcome of an autonomy evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

// Policy owns the per-tool trust map. Restricted tools with no signal are
// untrusted until proven; unrestricted tools default to trusted.
type Policy struct {
	mu         sync.RWMutex
	signals    map[string]Signal
	restricted map[string]struct{}
	now        func() time.Time
}

// NewPolicy creates a Policy. Tools listed in restricted are subject to
// default-untrusted semantics when no signal has been reported.
func NewPolicy(restricted ...string) *Policy {
	r := make(map[string]struct{}, len(restricted))
	for _, id := range restricted {
		r[id] = struct{}{}
	}
	return &Policy{
		signals:    make(map[string]Signal),
		restricted: r,
		now:        time.Now,
	}
}

// ReportSignal records a trust attestation for a tool. Last write wins.
func (p *Policy) ReportSignal(toolID string, trusted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals[toolID] = Signal{Trusted: trusted, LastChecked: p.now().UTC()}
}

// RestoreSignal re-injects a persisted signal with its original timestamp.
// A live signal for the same tool is not overwritten by an older one.
func (p *Policy) RestoreSignal(toolID string, sig Signal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.signals[toolID]; ok && cur.LastChecked.After(sig.LastChecked) {
		return
	}
	p.signals[toolID] = sig
}

// Evaluate decides whether the tool's integrity state permits execution.
func (p *Policy) Evaluate(toolID string) Decision {
	p.mu.RLock()
	sig, hasSignal := p.signals[toolID]
	_, isRestricted := p.restricted[toolID]
	p.mu.RUnlock()

	if hasSignal {
		if sig.Trusted {
			return Decision{Allowed: true, Reason: "integrity attested"}
		}
		return Decision{
			Reason: fmt.Sprintf("tool %q reported untrusted at %s and not re-attested since",
				toolID, sig.LastChecked.Format(time.RFC3339)),
		}
	}

	if isRestricted {
		return Decision{
			Reason: fmt.Sprintf("tool %q requires an integrity attestation before use", toolID),
		}
	}

	return Decision{Allowed: true, Reason: "not subject to autonomy restrictions"}
}

// Signal returns the recorded signal for a tool, if any.
func (p *Policy) Signal(toolID string) (Signal, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sig, ok := p.signals[toolID]
	return sig, ok
}

// Signals returns a snapshot of every recorded signal.
func (p *Policy) Signals() map[string]Signal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]Signal, len(p.signals))
	for id, sig := range p.signals {
		out[id] = sig
	}
	return out
}

// SelfCheck produces a human-readable sweep of the given tools' trust
// states. It reads but never mutates state.
func (p *Policy) SelfCheck(toolIDs []string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sorted := make([]string, len(toolIDs))
	copy(sorted, toolIDs)
	sort.Strings(sorted)

	var b strings.Builder
	trusted, untrusted, unchecked := 0, 0, 0
	fmt.Fprintf(&b, "autonomy self-check: %d tools\n", len(sorted))
	for _, id := range sorted {
		sig, ok := p.signals[id]
		_, isRestricted := p.restricted[id]
		switch {
		case ok && sig.Trusted:
			trusted++
			fmt.Fprintf(&b, "  [ok]        %-20s attested %s\n", id, sig.LastChecked.Format(time.RFC3339))
		case ok && !sig.Trusted:
			untrusted++
			fmt.Fprintf(&b, "  [UNTRUSTED] %-20s flagged %s\n", id, sig.LastChecked.Format(time.RFC3339))
		case isRestricted:
			untrusted++
			fmt.Fprintf(&b, "  [UNTRUSTED] %-20s restricted, no attestation on record\n", id)
		default:
			unchecked++
			fmt.Fprintf(&b, "  [unchecked] %-20s no signal, not restricted\n", id)
		}
	}
	fmt.Fprintf(&b, "summary: %d trusted, %d untrusted, %d unchecked", trusted, untrusted, unchecked)
	return b.String()
}
