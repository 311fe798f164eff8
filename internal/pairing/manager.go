// Package pairing manages time-boxed approval codes for unknown external
// principals (for example an unrecognized remote chat identity) asking to
// interact with the system.
package pairing

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Mode controls how unknown principals are handled.
type Mode string

const (
	// ModeDisabled rejects every unknown principal without issuing a code.
	ModeDisabled Mode = "disabled"
	// ModeOpen accepts every principal and creates no pairing state.
	ModeOpen Mode = "open"
	// ModePairing issues time-boxed codes that the owner approves or denies.
	ModePairing Mode = "pairing"
)

// ParseMode resolves a wire name to a Mode.
func ParseMode(name string) (Mode, error) {
	switch Mode(name) {
	case ModeDisabled, ModeOpen, ModePairing:
		return Mode(name), nil
	default:
		return "", fmt.Errorf("unknown pairing mode %q", name)
	}
}

const (
	// DefaultTTL is how long a pairing request stays live.
	DefaultTTL = time.Hour
	// MaxPendingRequests caps concurrently live pairing requests.
	MaxPendingRequests = 3
)

// ErrNotFound is returned when no live request matches a code.
var ErrNotFound = errors.New("pairing: request not found")

// ErrExpired is returned when the matching request has passed its deadline.
var ErrExpired = errors.New("pairing: request expired")

// Request is one live pairing request awaiting approval or denial.
type Request struct {
	Code        string    `json:"code"`
	PrincipalID string    `json:"principal_id"`
	DisplayName string    `json:"display_name"`
	RequestedAt time.Time `json:"requested_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the request has passed its deadline.
func (r Request) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// AccessDecision is the outcome of evaluating an incoming principal.
type AccessDecision struct {
	Allowed     bool
	PairingCode string // set when a code was issued or re-surfaced
	Reason      string
}

// Manager owns the pairing mode, the allow-list, and the pending request
// list. All cross-thread access goes through its methods.
type Manager struct {
	mu      sync.Mutex
	mode    Mode
	ttl     time.Duration
	maxLive int
	pending map[string]*Request // keyed by code
	allowed map[string]struct{} // principal ids
	now     func() time.Time
}

// NewManager creates a Manager in the given mode with default TTL and cap.
func NewManager(mode Mode) *Manager {
	return &Manager{
		mode:    mode,
		ttl:     DefaultTTL,
		maxLive: MaxPendingRequests,
		pending: make(map[string]*Request),
		allowed: make(map[string]struct{}),
		now:     time.Now,
	}
}

// SetMode switches the pairing mode. Pending requests survive the switch;
// they simply stop being reachable outside ModePairing.
func (m *Manager) SetMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// GetMode returns the current pairing mode.
func (m *Manager) GetMode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// SetTTL overrides the request lifetime. Zero or negative restores the default.
func (m *Manager) SetTTL(ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.ttl = ttl
}

// Restore re-injects a previously persisted pending request. Expired
// requests are dropped silently.
func (m *Manager) Restore(req Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.Expired(m.now()) {
		return
	}
	r := req
	m.pending[r.Code] = &r
}

// EvaluateIncoming decides whether a principal may interact. In pairing mode
// an unknown principal gets a live request: an existing live code for the
// same principal is re-surfaced, and no code is issued once the live cap is
// reached.
func (m *Manager) EvaluateIncoming(principalID, displayName string) AccessDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()

	switch m.mode {
	case ModeOpen:
		return AccessDecision{Allowed: true, Reason: "pairing disabled, open access"}

	case ModeDisabled:
		if _, ok := m.allowed[principalID]; ok {
			return AccessDecision{Allowed: true, Reason: "principal on allow-list"}
		}
		return AccessDecision{Reason: "unknown principals are rejected while pairing is disabled"}

	case ModePairing:
		if _, ok := m.allowed[principalID]; ok {
			return AccessDecision{Allowed: true, Reason: "principal on allow-list"}
		}
		for _, req := range m.pending {
			if req.PrincipalID == principalID {
				return AccessDecision{
					PairingCode: req.Code,
					Reason:      "pairing already pending, code re-surfaced",
				}
			}
		}
		if len(m.pending) >= m.maxLive {
			return AccessDecision{Reason: "too many pending pairing requests, try again later"}
		}
		code, err := generateCode()
		if err != nil {
			return AccessDecision{Reason: "could not issue pairing code"}
		}
		now := m.now().UTC()
		m.pending[code] = &Request{
			Code:        code,
			PrincipalID: principalID,
			DisplayName: displayName,
			RequestedAt: now,
			ExpiresAt:   now.Add(m.ttl),
		}
		return AccessDecision{PairingCode: code, Reason: "pairing code issued, awaiting approval"}

	default:
		return AccessDecision{Reason: fmt.Sprintf("unknown pairing mode %q", m.mode)}
	}
}

// Approve promotes the principal behind a live code onto the allow-list and
// removes the request. Returns false if the code is unknown or expired;
// expired requests are pruned as a side effect.
func (m *Manager) Approve(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.pending[code]
	if !ok {
		return false
	}
	if req.Expired(m.now().UTC()) {
		delete(m.pending, code)
		return false
	}
	delete(m.pending, code)
	m.allowed[req.PrincipalID] = struct{}{}
	return true
}

// Deny removes a live request without allow-listing the principal.
// Returns false if the code is unknown.
func (m *Manager) Deny(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[code]; !ok {
		return false
	}
	delete(m.pending, code)
	return true
}

// Lookup returns the live request behind a code. Returns ErrNotFound for an
// unknown code and ErrExpired (pruning the request) for a stale one.
func (m *Manager) Lookup(code string) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.pending[code]
	if !ok {
		return Request{}, ErrNotFound
	}
	if req.Expired(m.now().UTC()) {
		delete(m.pending, code)
		return Request{}, ErrExpired
	}
	return *req, nil
}

// IsAllowed reports whether the principal has been paired.
func (m *Manager) IsAllowed(principalID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.allowed[principalID]
	return ok
}

// Pending returns a snapshot of live requests, oldest first.
func (m *Manager) Pending() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()

	out := make([]Request, 0, len(m.pending))
	for _, req := range m.pending {
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

// Prune removes expired requests and returns how many were dropped.
func (m *Manager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked()
}

func (m *Manager) pruneLocked() int {
	now := m.now().UTC()
	dropped := 0
	for code, req := range m.pending {
		if req.Expired(now) {
			delete(m.pending, code)
			dropped++
		}
	}
	return dropped
}

// AllowPrincipal adds a principal directly to the allow-list, bypassing the
// code flow. Used when restoring persisted state.
func (m *Manager) AllowPrincipal(principalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowed[principalID] = struct{}{}
}

// RemovePrincipal drops a principal from the allow-list.
func (m *Manager) RemovePrincipal(principalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.allowed, principalID)
}

// AllowedPrincipals returns the sorted allow-list.
func (m *Manager) AllowedPrincipals() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.allowed))
	for id := range m.allowed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
