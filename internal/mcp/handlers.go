package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/toolwarden/toolwarden/internal/audit"
	"github.com/toolwarden/toolwarden/internal/gate"
	"github.com/toolwarden/toolwarden/internal/policy"
)

// --- Input/Output types ---

// ExecuteInput defines parameters for the warden_execute tool.
type ExecuteInput struct {
	Tool      string `json:"tool" jsonschema:"registered tool id"`
	Input     string `json:"input,omitempty" jsonschema:"raw tool input"`
	SubAgent  bool   `json:"sub_agent,omitempty" jsonschema:"call originates from a sub-agent"`
	Sandboxed bool   `json:"sandboxed,omitempty" jsonschema:"call originates from a sandboxed context"`
	Session   string `json:"session,omitempty" jsonschema:"session id, defaults to the server session"`
}

// ExecuteOutput contains the execution result or denial details.
type ExecuteOutput struct {
	Output        string `json:"output,omitempty"`
	Blocked       bool   `json:"blocked,omitempty"`
	Reason        string `json:"reason,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
	AuditDegraded bool   `json:"audit_degraded,omitempty"`
}

// CheckInput defines parameters for the warden_check tool.
type CheckInput struct {
	Tool      string `json:"tool" jsonschema:"registered tool id"`
	SubAgent  bool   `json:"sub_agent,omitempty" jsonschema:"call originates from a sub-agent"`
	Sandboxed bool   `json:"sandboxed,omitempty" jsonschema:"call originates from a sandboxed context"`
	Session   string `json:"session,omitempty" jsonschema:"session id"`
}

// CheckOutput contains the policy decision.
type CheckOutput struct {
	Allowed bool     `json:"allowed"`
	Layer   string   `json:"layer"`
	Reason  string   `json:"reason"`
	Missing []string `json:"missing_capabilities,omitempty"`
}

// ScanInput defines parameters for the warden_scan tool.
type ScanInput struct {
	Tool  string `json:"tool,omitempty" jsonschema:"tool id the input targets"`
	Input string `json:"input" jsonschema:"raw input to scan"`
}

// ScanOutput contains scanner findings.
type ScanOutput struct {
	Allowed        bool          `json:"allowed"`
	Risk           string        `json:"risk"`
	Findings       []ScanFinding `json:"findings,omitempty"`
	Recommendation string        `json:"recommendation,omitempty"`
	AuditDegraded  bool          `json:"audit_degraded,omitempty"`
}

// ScanFinding is one reported heuristic hit.
type ScanFinding struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// ClassifyInput defines parameters for the warden_classify tool.
type ClassifyInput struct {
	Tool string `json:"tool" jsonschema:"tool id to classify"`
}

// ClassifyOutput contains the danger tier classification.
type ClassifyOutput struct {
	Tool     string   `json:"tool"`
	Tier     string   `json:"tier"`
	Reason   string   `json:"reason"`
	Requires []string `json:"requires,omitempty"`
}

// ApproveInput defines parameters for the warden_approve tool.
type ApproveInput struct {
	Tool     string `json:"tool" jsonschema:"tool id to approve"`
	Session  string `json:"session,omitempty" jsonschema:"session the grant binds to, * for any"`
	Duration string `json:"duration,omitempty" jsonschema:"grant duration (e.g. 5m), omit for one-time"`
}

// ApproveOutput confirms the grant.
type ApproveOutput struct {
	Tool     string `json:"tool"`
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
}

// GrantsInput is empty.
type GrantsInput struct{}

// GrantsOutput lists active approval grants.
type GrantsOutput struct {
	Grants []GrantItem `json:"grants"`
}

// GrantItem describes one live grant.
type GrantItem struct {
	Tool      string `json:"tool"`
	Session   string `json:"session"`
	OneTime   bool   `json:"one_time"`
	GrantedAt string `json:"granted_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// PairInput defines parameters for the warden_pair tool.
type PairInput struct {
	Principal   string `json:"principal" jsonschema:"stable principal id, e.g. tg:12345"`
	DisplayName string `json:"display_name,omitempty" jsonschema:"human-readable name shown to the owner"`
}

// PairOutput reports the access decision for the principal.
type PairOutput struct {
	Allowed       bool   `json:"allowed"`
	PairingCode   string `json:"pairing_code,omitempty"`
	Reason        string `json:"reason"`
	AuditDegraded bool   `json:"audit_degraded,omitempty"`
}

// --- Handlers ---

func (s *Server) handleExecute(ctx context.Context, req *mcpsdk.CallToolRequest, input ExecuteInput) (*mcpsdk.CallToolResult, ExecuteOutput, error) {
	ectx := s.evalContext(input.Session, input.SubAgent, input.Sandboxed)

	res, err := s.rt.Gate.Execute(input.Tool, input.Input, ectx)
	out := ExecuteOutput{
		DurationMS:    res.Duration.Milliseconds(),
		AuditDegraded: res.AuditDegraded,
	}

	if err != nil {
		if gate.IsDenial(err) {
			out.Blocked = true
			out.Reason = err.Error()
			s.dispatchDenial(input.Tool, err)
			return &mcpsdk.CallToolResult{IsError: true}, out, nil
		}
		var execErr *gate.ExecutionError
		if errors.As(err, &execErr) {
			out.Reason = execErr.Message
			return &mcpsdk.CallToolResult{IsError: true}, out, nil
		}
		return nil, ExecuteOutput{}, err
	}

	out.Output = res.Output
	return nil, out, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	ectx := s.evalContext(input.Session, input.SubAgent, input.Sandboxed)

	d := s.rt.Engine.Check(input.Tool, ectx)
	if d.Allowed {
		if p, err := s.rt.Registry.Resolve(input.Tool); err == nil {
			d = s.rt.Engine.EvaluateCapabilities(input.Tool, p.Declared())
		}
	}

	out := CheckOutput{
		Allowed: d.Allowed,
		Layer:   string(d.Layer),
		Reason:  d.Reason,
	}
	for _, c := range d.Missing {
		out.Missing = append(out.Missing, c.String())
	}
	return nil, out, nil
}

func (s *Server) handleScan(ctx context.Context, req *mcpsdk.CallToolRequest, input ScanInput) (*mcpsdk.CallToolResult, ScanOutput, error) {
	sr := s.rt.Scanner.Scan(input.Tool, input.Input)

	out := ScanOutput{
		Allowed:        sr.Allowed,
		Risk:           sr.Risk.String(),
		Recommendation: sr.Recommendation,
	}

	// The scan record goes to the audit log like any other decision. A
	// failed write degrades the response rather than vanishing.
	if s.rt.Audit != nil {
		outcome := audit.OutcomeAllowed
		if !sr.Allowed {
			outcome = audit.OutcomeBlocked
		}
		if err := s.rt.Audit.SecurityEvent(input.Tool, audit.EventSafetyScan, outcome, audit.Details{
			Risk:           sr.Risk.String(),
			Recommendation: sr.Recommendation,
		}); err != nil {
			out.AuditDegraded = true
		}
	}
	for _, f := range sr.Findings {
		out.Findings = append(out.Findings, ScanFinding{Kind: f.Kind, Detail: f.Detail})
	}
	if !sr.Allowed {
		s.dispatchBlocked(input.Tool, audit.EventSafetyScan, "", "", sr.Risk.String(), sr.Recommendation)
	}
	return nil, out, nil
}

func (s *Server) handleClassify(ctx context.Context, req *mcpsdk.CallToolRequest, input ClassifyInput) (*mcpsdk.CallToolResult, ClassifyOutput, error) {
	cl := s.rt.Classifier.Classify(input.Tool)
	return nil, ClassifyOutput{
		Tool:     cl.ToolID,
		Tier:     cl.Tier.String(),
		Reason:   cl.Reason,
		Requires: cl.Requires.Names(),
	}, nil
}

func (s *Server) handleApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input ApproveInput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	var duration time.Duration
	if input.Duration != "" {
		var err error
		duration, err = time.ParseDuration(input.Duration)
		if err != nil {
			return nil, ApproveOutput{}, fmt.Errorf("invalid duration %q: %w", input.Duration, err)
		}
	}

	session := input.Session
	if session == "" {
		session = s.sessionID
	}
	s.rt.Approvals.Grant(input.Tool, session, duration)

	out := ApproveOutput{
		Tool:   input.Tool,
		Status: "granted",
	}
	if duration > 0 {
		out.Duration = duration.String()
	}
	return nil, out, nil
}

func (s *Server) handleGrants(ctx context.Context, req *mcpsdk.CallToolRequest, input GrantsInput) (*mcpsdk.CallToolResult, GrantsOutput, error) {
	list := s.rt.Approvals.List()

	items := make([]GrantItem, len(list))
	for i, g := range list {
		items[i] = GrantItem{
			Tool:      g.ToolID,
			Session:   g.SessionID,
			OneTime:   g.OneTime,
			GrantedAt: g.GrantedAt.Format(time.RFC3339),
		}
		if g.ExpiresAt != nil {
			items[i].ExpiresAt = g.ExpiresAt.Format(time.RFC3339)
		}
	}
	return nil, GrantsOutput{Grants: items}, nil
}

func (s *Server) handlePair(ctx context.Context, req *mcpsdk.CallToolRequest, input PairInput) (*mcpsdk.CallToolResult, PairOutput, error) {
	if input.Principal == "" {
		return nil, PairOutput{}, fmt.Errorf("principal is required")
	}

	d := s.rt.Pairing.EvaluateIncoming(input.Principal, input.DisplayName)

	// A freshly issued or re-surfaced code must survive a restart so the
	// owner can still approve it from the CLI.
	if d.PairingCode != "" && s.rt.State != nil {
		if pending, err := s.rt.Pairing.Lookup(d.PairingCode); err == nil {
			if err := s.rt.State.SavePendingRequest(pending); err != nil {
				return nil, PairOutput{}, err
			}
		}
	}

	out := PairOutput{
		Allowed:     d.Allowed,
		PairingCode: d.PairingCode,
		Reason:      d.Reason,
	}

	if s.rt.Audit != nil {
		outcome := audit.OutcomeBlocked
		if d.Allowed {
			outcome = audit.OutcomeAllowed
		}
		if err := s.rt.Audit.SecurityEvent(input.Principal, audit.EventPairing, outcome, audit.Details{
			Reason: d.Reason,
		}); err != nil {
			out.AuditDegraded = true
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func (s *Server) evalContext(session string, subAgent, sandboxed bool) policy.EvalContext {
	if session == "" {
		session = s.sessionID
	}
	return policy.EvalContext{
		IsSubAgent:  subAgent,
		IsSandboxed: sandboxed,
		SessionID:   session,
	}
}

// dispatchDenial fans a structured denial out to alert webhooks.
func (s *Server) dispatchDenial(toolID string, err error) {
	var pd *policy.DeniedError
	var sb *gate.SafetyBlockedError
	var ad *gate.AutonomyDeniedError
	switch {
	case errors.As(err, &pd):
		cl := s.rt.Classifier.Classify(toolID)
		s.dispatchBlocked(toolID, audit.EventPolicyDecision, string(pd.Layer), cl.Tier.String(), "", pd.Reason)
	case errors.As(err, &sb):
		s.dispatchBlocked(toolID, audit.EventSafetyScan, "", "", sb.Risk.String(), sb.Recommendation)
	case errors.As(err, &ad):
		s.dispatchBlocked(toolID, audit.EventAutonomyDecision, "", "", "", ad.Reason)
	}
}
