// Package config loads and validates the toolwarden YAML configuration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/toolwarden/toolwarden/internal/alert"
	"github.com/toolwarden/toolwarden/internal/capability"
	"github.com/toolwarden/toolwarden/internal/killswitch"
	"github.com/toolwarden/toolwarden/internal/pairing"
	"github.com/toolwarden/toolwarden/internal/tier"
)

// PairingConfig controls the incoming-principal trust sub-policy.
type PairingConfig struct {
	Mode       string   `yaml:"mode"`        // "disabled", "open", "pairing"
	TTLMinutes int      `yaml:"ttl_minutes"` // pending request lifetime
	Principals []string `yaml:"principals"`  // pre-approved principal ids
}

// SendLimitConfig caps how often a tool may fire per session.
type SendLimitConfig struct {
	MaxSends      int `yaml:"max_sends"`
	WindowMinutes int `yaml:"window_minutes"`
}

// Config holds all configurable toolwarden parameters.
type Config struct {
	// tool id -> tier name ("safe", "approval_required", "owner_only", "blocked")
	TierOverrides map[string]string `yaml:"tier_overrides"`

	// context kind ("top", "subagent", "sandbox") -> capability names
	CapabilityGrants map[string][]string `yaml:"capability_grants"`

	// context kind -> tool ids allowed to run non-Safe tiers there
	ContextAllow map[string][]string `yaml:"context_allow"`

	// extra blocked substrings merged into the scanner defaults
	ScannerPatterns []string `yaml:"scanner_patterns"`

	// tool ids that default to untrusted until an integrity signal arrives
	AutonomyRestricted []string `yaml:"autonomy_restricted"`

	SendLimits map[string]SendLimitConfig `yaml:"send_limits"`
	Pairing    PairingConfig              `yaml:"pairing"`

	KillswitchUnlockTool string `yaml:"killswitch_unlock_tool"`

	AuditLogPath string `yaml:"audit_log_path"`
	StatePath    string `yaml:"state_path"`

	Alerts []alert.Config `yaml:"alerts"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		TierOverrides:    map[string]string{},
		CapabilityGrants: map[string][]string{},
		ContextAllow:     map[string][]string{},
		Pairing: PairingConfig{
			Mode:       string(pairing.ModePairing),
			TTLMinutes: 60,
		},
		KillswitchUnlockTool: killswitch.DefaultUnlockTool,
		AuditLogPath:         defaultPath("audit.jsonl"),
		StatePath:            defaultPath("state.db"),
	}
}

// DefaultConfigPath returns where Load looks when no path is given.
func DefaultConfigPath() string {
	return defaultPath("config.yaml")
}

func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".toolwarden", name)
}

// Load reads configuration from a YAML file.
// Empty path falls back to ~/.toolwarden/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads configuration and returns the SHA-256 hash of the raw
// YAML bytes on disk, recorded in audit entries so a verifier can tell which
// policy was live. When no file exists the hash is over empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = defaultPath("config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			h := sha256.Sum256(nil)
			return DefaultConfig(), "sha256:" + hex.EncodeToString(h[:]), nil
		}
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, hash, nil
}

// Validate checks that enum-valued fields parse. Fail-closed: a config that
// names an unknown tier or capability is rejected rather than silently
// ignored.
func (c *Config) Validate() error {
	if _, err := pairing.ParseMode(c.Pairing.Mode); err != nil {
		return fmt.Errorf("pairing.mode: %w", err)
	}
	if c.Pairing.TTLMinutes < 0 {
		return fmt.Errorf("pairing.ttl_minutes must be non-negative, got %d", c.Pairing.TTLMinutes)
	}
	for tool, name := range c.TierOverrides {
		if _, err := tier.Parse(name); err != nil {
			return fmt.Errorf("tier_overrides[%s]: %w", tool, err)
		}
	}
	for kind, names := range c.CapabilityGrants {
		switch kind {
		case "top", "subagent", "sandbox":
		default:
			return fmt.Errorf("capability_grants: unknown context kind %q", kind)
		}
		for _, name := range names {
			if _, err := capability.Parse(name); err != nil {
				return fmt.Errorf("capability_grants[%s]: %w", kind, err)
			}
		}
	}
	for tool, lim := range c.SendLimits {
		if lim.MaxSends <= 0 || lim.WindowMinutes <= 0 {
			return fmt.Errorf("send_limits[%s]: max_sends and window_minutes must be positive", tool)
		}
	}
	return nil
}

// PairingTTL returns the pending-request lifetime as a duration.
func (c *Config) PairingTTL() time.Duration {
	if c.Pairing.TTLMinutes <= 0 {
		return pairing.DefaultTTL
	}
	return time.Duration(c.Pairing.TTLMinutes) * time.Minute
}

// DefaultConfigYAML returns a commented YAML string for the init command.
func DefaultConfigYAML() string {
	return `# toolwarden configuration
# Generated by: toolwarden init
#
# Evaluation order (cannot be changed):
#   1. Kill switch -> deny everything except the unlock tool
#   2. Danger tier gate -> blocked / owner_only / approval_required
#   3. Execution context gate -> sub-agents and sandboxes run Safe tools only
#   4. Capability gate -> declared capabilities must be granted
#   5. Send rate limits
#   6. Default allow

# Runtime tier overrides. Tool id -> safe | approval_required | owner_only | blocked
tier_overrides: {}
#  web_search: safe

# Capabilities granted per execution context (top, subagent, sandbox).
capability_grants: {}
#  subagent:
#    - filesystem_read

# Tools a non-top context may run despite a non-Safe tier.
context_allow: {}
#  subagent:
#    - web_search

# Extra blocked substrings merged into the scanner defaults.
scanner_patterns: []

# Tools that stay untrusted until an integrity signal reports them trusted.
autonomy_restricted: []

# Per-session send budgets. Tool id -> counts per window.
send_limits:
  communication_hub:
    max_sends: 10
    window_minutes: 60
  telegram_bridge:
    max_sends: 30
    window_minutes: 60

# Incoming-principal pairing. mode: disabled | open | pairing
pairing:
  mode: pairing
  ttl_minutes: 60
  principals: []

# Tool that stays callable while the kill switch is engaged.
killswitch_unlock_tool: policy_guardrail

# Alert webhooks. format: generic | slack | pagerduty
alerts: []
#  - url: https://hooks.example.com/T000/B000
#    format: slack
#    events: [blocked, tamper, killswitch]
`
}
