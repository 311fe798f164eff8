package policy

import (
	"fmt"

	"github.com/toolwarden/toolwarden/internal/capability"
)

// Layer names the policy stage that produced a decision.
type Layer string

const (
	LayerKillSwitch Layer = "killswitch"
	LayerTier       Layer = "tier"
	LayerContext    Layer = "context"
	LayerCapability Layer = "capability"
	LayerRateLimit  Layer = "ratelimit"
	LayerAllow      Layer = "allow"
)

// Decision is the outcome of one policy evaluation. It is constructed once
// and never mutated.
type Decision struct {
	Allowed bool
	Layer   Layer
	Reason  string
	Missing []capability.Capability // set only by the capability layer
}

// DeniedError wraps a denial as an error for callers that propagate it.
type DeniedError struct {
	Layer  Layer
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("policy denied at %s layer: %s", e.Layer, e.Reason)
}

// Err returns a DeniedError for a denial, nil for an allow.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Layer: d.Layer, Reason: d.Reason}
}

func deny(layer Layer, reason string) Decision {
	return Decision{Layer: layer, Reason: reason}
}

func allow(reason string) Decision {
	return Decision{Allowed: true, Layer: LayerAllow, Reason: reason}
}
