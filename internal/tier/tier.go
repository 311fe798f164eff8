// Package tier classifies tools into coarse danger tiers and resolves the
// capabilities each tool requires. Classification is a pure merge of the
// static default table and the runtime override map; it never fails.
package tier

import "fmt"

// DangerTier is the coarse risk classification of a tool.
// The order matters only for display, never for decision logic.
type DangerTier int

const (
	Safe DangerTier = iota
	ApprovalRequired
	OwnerOnly
	Blocked
)

// String returns the stable wire name of the tier.
func (t DangerTier) String() string {
	switch t {
	case Safe:
		return "safe"
	case ApprovalRequired:
		return "approval_required"
	case OwnerOnly:
		return "owner_only"
	case Blocked:
		return "blocked"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Parse resolves a wire name back to a DangerTier.
func Parse(name string) (DangerTier, error) {
	switch name {
	case "safe":
		return Safe, nil
	case "approval_required":
		return ApprovalRequired, nil
	case "owner_only":
		return OwnerOnly, nil
	case "blocked":
		return Blocked, nil
	default:
		return 0, fmt.Errorf("unknown danger tier %q", name)
	}
}

// genericReason returns the fallback reason text for a tier when the static
// table carries no per-tool reason.
func genericReason(t DangerTier) string {
	switch t {
	case Safe:
		return "no known risk signals"
	case ApprovalRequired:
		return "requires an explicit approval before each use"
	case OwnerOnly:
		return "restricted to the verified owner channel"
	case Blocked:
		return "blocked by policy"
	default:
		return "unclassified"
	}
}
