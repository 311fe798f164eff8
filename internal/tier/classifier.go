package tier

import (
	"sort"
	"sync"

	"github.com/toolwarden/toolwarden/internal/capability"
)

// Classification is the derived view of one tool's risk profile.
// It is recomputed on every query, never stored.
type Classification struct {
	ToolID   string
	Tier     DangerTier
	Reason   string
	Requires capability.Set
}

// Classifier resolves tool ids to classifications. Reads are concurrent;
// only SetOverride and RemoveOverride take the write lock.
type Classifier struct {
	mu        sync.RWMutex
	overrides map[string]DangerTier
}

// NewClassifier creates a Classifier with no runtime overrides.
func NewClassifier() *Classifier {
	return &Classifier{overrides: make(map[string]DangerTier)}
}

// Classify resolves a tool id against the override map, then the static
// table, then falls back to Safe. Unknown tools classify as Safe on purpose:
// the capability gate in the policy engine is the actual execution barrier.
func (c *Classifier) Classify(toolID string) Classification {
	c.mu.RLock()
	override, hasOverride := c.overrides[toolID]
	c.mu.RUnlock()

	def, known := staticDefaults[toolID]

	cl := Classification{ToolID: toolID, Tier: Safe}
	if known {
		cl.Tier = def.Tier
		cl.Reason = def.Reason
		cl.Requires = def.Requires.Clone()
	}
	if cl.Requires == nil {
		cl.Requires = capability.NewSet()
	}
	if hasOverride {
		cl.Tier = override
		cl.Reason = "" // static reason no longer applies to the overridden tier
	}
	if cl.Reason == "" {
		cl.Reason = genericReason(cl.Tier)
	}
	return cl
}

// IsDangerous reports whether the tool classifies above Safe.
func (c *Classifier) IsDangerous(toolID string) bool {
	return c.Classify(toolID).Tier != Safe
}

// SetOverride pins a tool to the given tier until removed.
// Overrides strictly supersede the static default for the same tool id.
func (c *Classifier) SetOverride(toolID string, t DangerTier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[toolID] = t
}

// RemoveOverride drops a runtime override, restoring the static default.
func (c *Classifier) RemoveOverride(toolID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.overrides, toolID)
}

// Overrides returns a snapshot of the current override map.
func (c *Classifier) Overrides() map[string]DangerTier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]DangerTier, len(c.overrides))
	for id, t := range c.overrides {
		out[id] = t
	}
	return out
}

// ApprovalRequiredTools lists tools at the ApprovalRequired tier in the
// merged (defaults + overrides) view.
func (c *Classifier) ApprovalRequiredTools() []string {
	return c.toolsAtTier(ApprovalRequired)
}

// OwnerOnlyTools lists tools at the OwnerOnly tier in the merged view.
func (c *Classifier) OwnerOnlyTools() []string {
	return c.toolsAtTier(OwnerOnly)
}

// BlockedTools lists tools at the Blocked tier in the merged view.
func (c *Classifier) BlockedTools() []string {
	return c.toolsAtTier(Blocked)
}

func (c *Classifier) toolsAtTier(want DangerTier) []string {
	c.mu.RLock()
	merged := make(map[string]DangerTier, len(staticDefaults)+len(c.overrides))
	for id, def := range staticDefaults {
		merged[id] = def.Tier
	}
	for id, t := range c.overrides {
		merged[id] = t
	}
	c.mu.RUnlock()

	var out []string
	for id, t := range merged {
		if t == want {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// KnownTools lists every tool id present in the static table or the
// override map, sorted.
func (c *Classifier) KnownTools() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{}, len(staticDefaults)+len(c.overrides))
	for id := range staticDefaults {
		seen[id] = struct{}{}
	}
	for id := range c.overrides {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
