// Package gate glues classification, policy evaluation, input scanning,
// autonomy checks, execution, and auditing into a single call. A denial at
// any layer short-circuits with an audit record and never reaches the tool
// body; only unanimous approval executes.
package gate

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/toolwarden/toolwarden/internal/audit"
	"github.com/toolwarden/toolwarden/internal/autonomy"
	"github.com/toolwarden/toolwarden/internal/plugin"
	"github.com/toolwarden/toolwarden/internal/policy"
	"github.com/toolwarden/toolwarden/internal/scanner"
)

// SafetyBlockedError reports an input-scan denial.
type SafetyBlockedError struct {
	Risk           scanner.RiskLevel
	Recommendation string
}

func (e *SafetyBlockedError) Error() string {
	return fmt.Sprintf("input blocked at %s risk: %s", e.Risk, e.Recommendation)
}

// AutonomyDeniedError reports an integrity-trust denial.
type AutonomyDeniedError struct {
	Reason string
}

func (e *AutonomyDeniedError) Error() string {
	return "autonomy check failed: " + e.Reason
}

// ExecutionError wraps any failure (including a recovered panic) raised by
// the tool body. It is always caught at the gate boundary.
type ExecutionError struct {
	ToolID  string
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %s", e.ToolID, e.Message)
}

// Gate is the execution orchestrator.
type Gate struct {
	registry *plugin.Registry
	engine   *policy.Engine
	scan     *scanner.Scanner
	autonomy *autonomy.Policy
	log      *audit.Log
}

// New wires a Gate to its collaborators. The audit log may be nil in
// dry-run tooling; every other collaborator is required.
func New(registry *plugin.Registry, engine *policy.Engine, scan *scanner.Scanner, auto *autonomy.Policy, log *audit.Log) *Gate {
	return &Gate{
		registry: registry,
		engine:   engine,
		scan:     scan,
		autonomy: auto,
		log:      log,
	}
}

// Execute runs the full pipeline for one invocation. The returned error is
// the typed denial or execution failure; the Result always carries timing
// and the audit-degraded flag.
func (g *Gate) Execute(toolID, input string, ectx policy.EvalContext) (plugin.Result, error) {
	start := time.Now()
	res := plugin.Result{ToolID: toolID}

	p, err := g.registry.Resolve(toolID)
	if err != nil {
		res.Err = err.Error()
		res.Duration = time.Since(start)
		res.AuditDegraded = g.record(toolID, audit.EventPolicyDecision, audit.OutcomeBlocked, audit.Details{
			Reason: err.Error(),
		})
		return res, err
	}

	if d := g.engine.Evaluate(toolID, ectx); !d.Allowed {
		res.Err = d.Reason
		res.Duration = time.Since(start)
		res.AuditDegraded = g.record(toolID, audit.EventPolicyDecision, audit.OutcomeBlocked, audit.Details{
			Layer:  string(d.Layer),
			Reason: d.Reason,
		})
		return res, d.Err()
	}

	if d := g.engine.EvaluateCapabilities(toolID, p.Declared()); !d.Allowed {
		res.Err = d.Reason
		res.Duration = time.Since(start)
		if g.log != nil {
			if err := g.log.CapabilityDenied(toolID, d.Missing); err != nil {
				g.degrade(err)
				res.AuditDegraded = true
			}
		}
		return res, d.Err()
	}

	if sr := g.scan.Scan(toolID, input); !sr.Allowed {
		res.Err = sr.Recommendation
		res.Duration = time.Since(start)
		res.AuditDegraded = g.record(toolID, audit.EventSafetyScan, audit.OutcomeBlocked, audit.Details{
			Risk:           sr.Risk.String(),
			Reason:         findingsSummary(sr.Findings),
			Recommendation: sr.Recommendation,
		})
		return res, &SafetyBlockedError{Risk: sr.Risk, Recommendation: sr.Recommendation}
	}

	if d := g.autonomy.Evaluate(toolID); !d.Allowed {
		res.Err = d.Reason
		res.Duration = time.Since(start)
		res.AuditDegraded = g.record(toolID, audit.EventAutonomyDecision, audit.OutcomeBlocked, audit.Details{
			Reason: d.Reason,
		})
		return res, &AutonomyDeniedError{Reason: d.Reason}
	}

	// All layers have allowed; only now is a one-time grant burned.
	if d := g.engine.ConsumeApproval(toolID, ectx); !d.Allowed {
		res.Err = d.Reason
		res.Duration = time.Since(start)
		res.AuditDegraded = g.record(toolID, audit.EventPolicyDecision, audit.OutcomeBlocked, audit.Details{
			Layer:  string(d.Layer),
			Reason: d.Reason,
		})
		return res, d.Err()
	}

	output, execErr := g.runBody(p, input)
	res.Duration = time.Since(start)

	if execErr != nil {
		res.Err = execErr.Error()
		if g.log != nil {
			if err := g.log.PluginExecution(toolID, audit.DigestInput(input), false, res.Duration); err != nil {
				g.degrade(err)
				res.AuditDegraded = true
			}
		}
		return res, &ExecutionError{ToolID: toolID, Message: execErr.Error()}
	}

	res.Success = true
	res.Output = output
	if g.log != nil {
		if err := g.log.PluginExecution(toolID, audit.DigestInput(input), true, res.Duration); err != nil {
			g.degrade(err)
			res.AuditDegraded = true
		}
	}
	return res, nil
}

// runBody executes the plugin, converting a panic into an error so a
// misbehaving tool can never crash the orchestrator.
func (g *Gate) runBody(p plugin.Plugin, input string) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Execute(input)
}

// record writes one security event and reports degradation.
func (g *Gate) record(toolID, kind, outcome string, details audit.Details) bool {
	if g.log == nil {
		return false
	}
	if err := g.log.SecurityEvent(toolID, kind, outcome, details); err != nil {
		g.degrade(err)
		return true
	}
	return false
}

func (g *Gate) degrade(err error) {
	fmt.Fprintf(os.Stderr, "AUDIT DEGRADED: %v\n", err)
}

func findingsSummary(findings []scanner.Finding) string {
	if len(findings) == 0 {
		return ""
	}
	out := findings[0].Kind
	for _, f := range findings[1:] {
		out += ", " + f.Kind
	}
	return out
}

// IsDenial reports whether the error is a structured denial rather than a
// tool-internal failure.
func IsDenial(err error) bool {
	var pd *policy.DeniedError
	var sb *SafetyBlockedError
	var ad *AutonomyDeniedError
	return errors.As(err, &pd) || errors.As(err, &sb) || errors.As(err, &ad) ||
		errors.Is(err, plugin.ErrNotFound) || errors.Is(err, plugin.ErrDisabled)
}
