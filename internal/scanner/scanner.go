// Package scanner inspects tool invocation input for threat signals:
// prompt-injection phrasing, dangerous argument fragments, embedded
// credentials, and oversized payloads. Scanning is deterministic and pure.
package scanner

import (
	"fmt"
	"strings"
	"sync"
)

// RiskLevel grades the combined threat signal of a scan.
type RiskLevel int

const (
	RiskNone RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

// String returns the wire name of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskNone:
		return "none"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Finding is one matched threat signal.
type Finding struct {
	Kind    string `json:"kind"` // blocked_pattern | injection | secret | oversized
	Detail  string `json:"detail"`
	Matched string `json:"matched,omitempty"`
}

// Result is the outcome of scanning one invocation input.
type Result struct {
	Allowed        bool
	Risk           RiskLevel
	Findings       []Finding
	Recommendation string
}

// Scanner holds compiled patterns plus runtime-added blocked substrings.
type Scanner struct {
	mu      sync.RWMutex
	blocked []string
}

// New creates a Scanner with the default blocked substrings plus any extras.
func New(extraBlocked ...string) *Scanner {
	blocked := make([]string, 0, len(defaultBlockedSubstrings)+len(extraBlocked))
	blocked = append(blocked, defaultBlockedSubstrings...)
	for _, p := range extraBlocked {
		if p = strings.TrimSpace(p); p != "" {
			blocked = append(blocked, p)
		}
	}
	return &Scanner{blocked: blocked}
}

// AddPattern registers an additional blocked substring at runtime.
func (s *Scanner) AddPattern(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = append(s.blocked, pattern)
}

// RemovePattern drops a blocked substring. Returns false if absent.
func (s *Scanner) RemovePattern(pattern string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.blocked {
		if strings.EqualFold(p, pattern) {
			s.blocked = append(s.blocked[:i], s.blocked[i+1:]...)
			return true
		}
	}
	return false
}

// Patterns returns a snapshot of the active blocked substrings.
func (s *Scanner) Patterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.blocked))
	copy(out, s.blocked)
	return out
}

// Scan inspects raw input bound for the given tool. Risk at or above
// RiskHigh blocks the invocation.
func (s *Scanner) Scan(toolID, rawInput string) Result {
	var findings []Finding
	risk := RiskNone

	lowered := strings.ToLower(rawInput)

	s.mu.RLock()
	for _, pattern := range s.blocked {
		if strings.Contains(lowered, strings.ToLower(pattern)) {
			findings = append(findings, Finding{
				Kind:    "blocked_pattern",
				Detail:  "input contains a blocked argument pattern",
				Matched: pattern,
			})
			risk = maxRisk(risk, RiskCritical)
		}
	}
	s.mu.RUnlock()

	for _, re := range injectionPatterns {
		if m := re.FindString(rawInput); m != "" {
			findings = append(findings, Finding{
				Kind:    "injection",
				Detail:  "input matches a prompt-injection pattern",
				Matched: m,
			})
			risk = maxRisk(risk, RiskHigh)
		}
	}

	for _, re := range secretPatterns {
		if re.MatchString(rawInput) {
			findings = append(findings, Finding{
				Kind:   "secret",
				Detail: "input appears to carry a credential value",
			})
			risk = maxRisk(risk, RiskHigh)
			break
		}
	}

	if len(rawInput) > maxInputBytes {
		findings = append(findings, Finding{
			Kind:   "oversized",
			Detail: fmt.Sprintf("input is %d bytes, limit %d", len(rawInput), maxInputBytes),
		})
		risk = maxRisk(risk, RiskMedium)
	}

	allowed := risk < RiskHigh
	return Result{
		Allowed:        allowed,
		Risk:           risk,
		Findings:       findings,
		Recommendation: recommend(toolID, risk, findings),
	}
}

func maxRisk(a, b RiskLevel) RiskLevel {
	if b > a {
		return b
	}
	return a
}

func recommend(toolID string, risk RiskLevel, findings []Finding) string {
	switch {
	case risk >= RiskCritical:
		return fmt.Sprintf("block: input for %q carries a known-destructive pattern", toolID)
	case risk >= RiskHigh:
		return fmt.Sprintf("block: input for %q shows injection or credential signals", toolID)
	case risk >= RiskMedium:
		return "allow with caution: review the flagged findings"
	case len(findings) > 0:
		return "allow: low-risk findings only"
	default:
		return "allow: no threat signals"
	}
}
