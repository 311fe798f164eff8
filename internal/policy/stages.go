package policy

import (
	"fmt"

	"github.com/toolwarden/toolwarden/internal/capability"
	"github.com/toolwarden/toolwarden/internal/sendlimit"
	"github.com/toolwarden/toolwarden/internal/tier"
)

// killSwitchStage denies everything except the unlock tool while the
// emergency disable latch is engaged.
func (e *Engine) killSwitchStage(req request) *Decision {
	if e.kill == nil {
		return nil
	}
	if blocked, reason := e.kill.Blocks(req.toolID); blocked {
		d := deny(LayerKillSwitch, reason)
		return &d
	}
	return nil
}

// tierStage gates on the tool's danger tier. Blocked tools are always
// denied; OwnerOnly needs the verified owner channel; ApprovalRequired
// needs a live grant.
func (e *Engine) tierStage(req request) *Decision {
	switch req.class.Tier {
	case tier.Blocked:
		d := deny(LayerTier, fmt.Sprintf("tool %q is blocked: %s", req.toolID, req.class.Reason))
		return &d

	case tier.OwnerOnly:
		if !e.ownerCheck(req.ectx.SessionID) {
			d := deny(LayerTier, fmt.Sprintf(
				"tool %q is owner-only and this session is not attributable to the owner channel", req.toolID))
			return &d
		}

	case tier.ApprovalRequired:
		// The grant is only checked here. Consuming it is deferred to
		// ConsumeApproval so a denial at a later layer cannot burn it.
		covered := false
		if e.approvals != nil {
			covered = e.approvals.Covers(req.toolID, req.ectx.SessionID)
		}
		if !covered {
			d := deny(LayerTier, fmt.Sprintf(
				"tool %q requires approval: %s (grant one with the approve command)", req.toolID, req.class.Reason))
			return &d
		}
	}
	return nil
}

// contextStage narrows what sub-agent and sandboxed contexts may run.
// Only Safe-tier tools pass by default; anything above needs an explicit
// per-context allow entry.
func (e *Engine) contextStage(req request) *Decision {
	kind := req.ectx.Kind()
	if kind == ContextTop {
		return nil
	}
	if req.class.Tier == tier.Safe {
		return nil
	}
	if set := e.contextAllow[kind]; set != nil {
		if _, ok := set[req.toolID]; ok {
			return nil
		}
	}
	d := deny(LayerContext, fmt.Sprintf(
		"tool %q (%s tier) is not in the %s context allow-list", req.toolID, req.class.Tier, kind))
	return &d
}

// capabilityStage requires the tool's capability set to be covered by the
// grants of its trust boundary. Every missing capability is enumerated.
func (e *Engine) capabilityStage(req request) *Decision {
	granted := e.grants[req.ectx.Kind()]
	if granted == nil {
		granted = capability.NewSet()
	}
	missing := req.class.Requires.Missing(granted)
	if len(missing) == 0 {
		return nil
	}
	d := deny(LayerCapability, fmt.Sprintf("tool %q is missing capabilities in the %s context: %s",
		req.toolID, req.ectx.Kind(), capability.FormatList(missing)))
	d.Missing = missing
	return &d
}

// rateLimitStage consults the send throttle collaborator. Dry-runs peek
// at the window instead of counting against it.
func (e *Engine) rateLimitStage(req request) *Decision {
	if e.sends == nil {
		return nil
	}
	var r sendlimit.CheckResult
	if req.dryRun {
		r = e.sends.Peek(req.ectx.SessionID, req.toolID)
	} else {
		r = e.sends.Check(req.ectx.SessionID, req.toolID)
	}
	if r.Exceeded {
		d := deny(LayerRateLimit, r.Reason)
		return &d
	}
	return nil
}
