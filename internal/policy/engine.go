// Package policy is the layered decision engine for tool invocations.
// Stages run in a fixed precedence order; the first denial wins and names
// the layer that decided. Cheap global checks run before narrower ones.
package policy

import (
	"fmt"

	"github.com/toolwarden/toolwarden/internal/approval"
	"github.com/toolwarden/toolwarden/internal/capability"
	"github.com/toolwarden/toolwarden/internal/killswitch"
	"github.com/toolwarden/toolwarden/internal/sendlimit"
	"github.com/toolwarden/toolwarden/internal/tier"
)

// ContextKind identifies the trust boundary an invocation runs in.
type ContextKind string

const (
	ContextTop      ContextKind = "top"
	ContextSubAgent ContextKind = "subagent"
	ContextSandbox  ContextKind = "sandbox"
)

// EvalContext carries the execution-context flags for one invocation.
type EvalContext struct {
	IsSubAgent  bool
	IsSandboxed bool
	SessionID   string
}

// Kind collapses the flags to a ContextKind. Sandbox wins over sub-agent.
func (c EvalContext) Kind() ContextKind {
	switch {
	case c.IsSandboxed:
		return ContextSandbox
	case c.IsSubAgent:
		return ContextSubAgent
	default:
		return ContextTop
	}
}

// Grants maps each trust boundary to the capabilities it is granted.
type Grants map[ContextKind]capability.Set

// DefaultGrants reflect the reference deployment: the top-level context
// holds everything, sub-agents lose sending and code execution, sandboxes
// keep read-only introspection.
func DefaultGrants() Grants {
	return Grants{
		ContextTop: capability.NewSet(capability.All()...),
		ContextSubAgent: capability.NewSet(
			capability.NetworkOutbound,
			capability.FilesystemRead,
			capability.FilesystemWrite,
			capability.ContactsRead,
			capability.ModelExecution,
			capability.NotificationPost,
		),
		ContextSandbox: capability.NewSet(
			capability.FilesystemRead,
		),
	}
}

// Engine combines the classifier, kill-switch, approval grants, context
// restrictions, capability grants, and send throttling into one layered
// evaluator. The engine itself holds no mutable state beyond references to
// its collaborators.
type Engine struct {
	classifier *tier.Classifier
	kill       *killswitch.Switch
	approvals  *approval.Store
	sends      *sendlimit.Tracker
	grants     Grants

	// contextAllow lists tools reachable from restricted contexts even
	// when their tier is above Safe.
	contextAllow map[ContextKind]map[string]struct{}

	// ownerCheck attributes a session to the verified primary owner
	// channel. The default treats every local session as the owner.
	ownerCheck func(sessionID string) bool

	stages []stage
}

// Option configures an Engine.
type Option func(*Engine)

// WithGrants replaces the default capability grants.
func WithGrants(g Grants) Option {
	return func(e *Engine) { e.grants = g }
}

// WithOwnerCheck installs a custom owner-channel verifier.
func WithOwnerCheck(fn func(sessionID string) bool) Option {
	return func(e *Engine) { e.ownerCheck = fn }
}

// WithContextAllow permits a tool above the Safe tier in a restricted context.
func WithContextAllow(kind ContextKind, toolIDs ...string) Option {
	return func(e *Engine) {
		set := e.contextAllow[kind]
		if set == nil {
			set = make(map[string]struct{})
			e.contextAllow[kind] = set
		}
		for _, id := range toolIDs {
			set[id] = struct{}{}
		}
	}
}

// NewEngine wires an Engine to its collaborators.
func NewEngine(cl *tier.Classifier, kill *killswitch.Switch, approvals *approval.Store, sends *sendlimit.Tracker, opts ...Option) *Engine {
	e := &Engine{
		classifier:   cl,
		kill:         kill,
		approvals:    approvals,
		sends:        sends,
		grants:       DefaultGrants(),
		contextAllow: make(map[ContextKind]map[string]struct{}),
		ownerCheck:   func(string) bool { return true },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.stages = []stage{
		{"killswitch", e.killSwitchStage},
		{"tier", e.tierStage},
		{"context", e.contextStage},
		{"capability", e.capabilityStage},
		{"ratelimit", e.rateLimitStage},
	}
	return e
}

// Evaluate runs the full layered pipeline for one invocation. The first
// stage to return a terminal decision wins; later stages never run.
// Approval grants are checked but not consumed; the executor calls
// ConsumeApproval once every layer, including those outside this engine,
// has allowed.
func (e *Engine) Evaluate(toolID string, ectx EvalContext) Decision {
	return e.run(request{toolID: toolID, ectx: ectx, class: e.classifier.Classify(toolID)})
}

// Check runs the same pipeline as Evaluate but never mutates throttle or
// approval state, so a dry-run cannot invalidate or ration a later real
// invocation.
func (e *Engine) Check(toolID string, ectx EvalContext) Decision {
	return e.run(request{toolID: toolID, ectx: ectx, class: e.classifier.Classify(toolID), dryRun: true})
}

// ConsumeApproval burns the grant backing an approval-required invocation.
// Call it exactly once, after every other layer has allowed; until then a
// denial anywhere in the pipeline leaves the grant intact for a retry.
func (e *Engine) ConsumeApproval(toolID string, ectx EvalContext) Decision {
	if e.classifier.Classify(toolID).Tier != tier.ApprovalRequired {
		return allow(fmt.Sprintf("tool %q needs no approval grant", toolID))
	}
	if e.approvals != nil && e.approvals.Consume(toolID, ectx.SessionID) {
		return allow(fmt.Sprintf("approval grant for %q consumed", toolID))
	}
	return deny(LayerTier, fmt.Sprintf(
		"approval grant for %q expired or was already consumed", toolID))
}

func (e *Engine) run(req request) Decision {
	for _, s := range e.stages {
		if d := s.eval(req); d != nil {
			return *d
		}
	}
	return allow(fmt.Sprintf("tool %q passed all policy layers", req.toolID))
}

// EvaluateCapabilities checks a declared capability set against the
// top-level grant. On insufficiency the decision enumerates the full
// missing set rather than a free-text reason.
func (e *Engine) EvaluateCapabilities(toolID string, declared capability.Set) Decision {
	granted := e.grants[ContextTop]
	missing := declared.Missing(granted)
	if len(missing) == 0 {
		return allow(fmt.Sprintf("declared capabilities for %q are all granted", toolID))
	}
	d := deny(LayerCapability, fmt.Sprintf("tool %q is missing capabilities: %s",
		toolID, capability.FormatList(missing)))
	d.Missing = missing
	return d
}

// request bundles the per-invocation inputs handed to each stage.
type request struct {
	toolID string
	ectx   EvalContext
	class  tier.Classification
	dryRun bool
}

// stage is one independently testable pipeline step. A nil result means
// continue to the next stage; a non-nil result is terminal.
type stage struct {
	name string
	eval func(request) *Decision
}
