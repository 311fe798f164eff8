// Package approval records explicit, time-boxed grants that satisfy the
// ApprovalRequired danger tier. A grant is scoped to a tool and optionally
// to a session; one-time grants are consumed on first use.
package approval

import (
	"sync"
	"time"
)

// sessionAny matches any session when a grant is not session-scoped.
const sessionAny = "*"

// Grant is one approval record.
type Grant struct {
	ToolID    string     `json:"tool_id"`
	SessionID string     `json:"session_id"` // "*" when not session-scoped
	OneTime   bool       `json:"one_time"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (g Grant) live(now time.Time) bool {
	return g.ExpiresAt == nil || now.Before(*g.ExpiresAt)
}

// Store holds live grants. Expired grants are dropped lazily on every check.
type Store struct {
	mu     sync.Mutex
	grants []Grant
	now    func() time.Time
	sync   func([]Grant)
}

// NewStore creates an empty grant store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// SetSync registers a hook called with a snapshot after every mutation, so
// grants (and one-time consumption) can be mirrored to durable storage. The
// hook runs with the store lock held and must not call back into the store.
func (s *Store) SetSync(fn func([]Grant)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sync = fn
}

// Restore loads a persisted grant without firing the sync hook. Expired
// grants are dropped.
func (s *Store) Restore(g Grant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !g.live(s.now().UTC()) {
		return
	}
	s.grants = append(s.grants, g)
}

func (s *Store) syncLocked() {
	if s.sync == nil {
		return
	}
	snapshot := make([]Grant, len(s.grants))
	copy(snapshot, s.grants)
	s.sync(snapshot)
}

// Grant records an approval for a tool. Empty sessionID scopes the grant to
// any session. Zero ttl makes the grant one-time instead of time-boxed.
func (s *Store) Grant(toolID, sessionID string, ttl time.Duration) {
	if sessionID == "" {
		sessionID = sessionAny
	}
	g := Grant{
		ToolID:    toolID,
		SessionID: sessionID,
		GrantedAt: s.now().UTC(),
	}
	if ttl > 0 {
		exp := g.GrantedAt.Add(ttl)
		g.ExpiresAt = &exp
	} else {
		g.OneTime = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = append(s.grants, g)
	s.syncLocked()
}

// Covers reports whether a live grant covers the invocation without
// consuming anything.
func (s *Store) Covers(toolID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	for _, g := range s.grants {
		if g.live(now) && g.ToolID == toolID && (g.SessionID == sessionAny || g.SessionID == sessionID) {
			return true
		}
	}
	return false
}

// Consume reports whether a live grant covers the invocation and, if the
// grant is one-time, removes it.
func (s *Store) Consume(toolID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	kept := s.grants[:0]
	found := false
	for _, g := range s.grants {
		if !g.live(now) {
			continue
		}
		if !found && g.ToolID == toolID && (g.SessionID == sessionAny || g.SessionID == sessionID) {
			found = true
			if g.OneTime {
				continue // consumed
			}
		}
		kept = append(kept, g)
	}
	s.grants = kept
	s.syncLocked()
	return found
}

// Revoke drops every grant for the tool. Returns how many were removed.
func (s *Store) Revoke(toolID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.grants[:0]
	removed := 0
	for _, g := range s.grants {
		if g.ToolID == toolID {
			removed++
			continue
		}
		kept = append(kept, g)
	}
	s.grants = kept
	s.syncLocked()
	return removed
}

// List returns a snapshot of live grants.
func (s *Store) List() []Grant {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var out []Grant
	for _, g := range s.grants {
		if g.live(now) {
			out = append(out, g)
		}
	}
	return out
}
