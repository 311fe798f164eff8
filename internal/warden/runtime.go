// Package warden wires the authorization pipeline together from
// configuration: classifier, policy engine, scanner, autonomy policy,
// pairing manager, plugin registry, audit log, and persisted state.
package warden

import (
	"fmt"
	"os"
	"time"

	"github.com/toolwarden/toolwarden/internal/alert"
	"github.com/toolwarden/toolwarden/internal/approval"
	"github.com/toolwarden/toolwarden/internal/audit"
	"github.com/toolwarden/toolwarden/internal/autonomy"
	"github.com/toolwarden/toolwarden/internal/capability"
	"github.com/toolwarden/toolwarden/internal/config"
	"github.com/toolwarden/toolwarden/internal/gate"
	"github.com/toolwarden/toolwarden/internal/killswitch"
	"github.com/toolwarden/toolwarden/internal/pairing"
	"github.com/toolwarden/toolwarden/internal/plugin"
	"github.com/toolwarden/toolwarden/internal/policy"
	"github.com/toolwarden/toolwarden/internal/scanner"
	"github.com/toolwarden/toolwarden/internal/sendlimit"
	"github.com/toolwarden/toolwarden/internal/state"
	"github.com/toolwarden/toolwarden/internal/tier"
)

// Options controls runtime construction.
type Options struct {
	ConfigPath   string
	AuditLogPath string // overrides the config value when set
	StatePath    string // overrides the config value when set
	// NoPersist skips the audit log and state database. Used by stateless
	// CLI commands (scan dry-runs) that must not contend for the server's
	// files.
	NoPersist bool
	// ReadOnly restores persisted state but skips the audit log and never
	// writes back. The audit log has a single writer; read-only commands
	// (classify, check) must not append to a running server's chain.
	ReadOnly bool
}

// Runtime holds the fully wired pipeline components.
type Runtime struct {
	Config     *config.Config
	ConfigHash string

	Classifier *tier.Classifier
	Kill       *killswitch.Switch
	Approvals  *approval.Store
	Sends      *sendlimit.Tracker
	Engine     *policy.Engine
	Scanner    *scanner.Scanner
	Autonomy   *autonomy.Policy
	Pairing    *pairing.Manager
	Registry   *plugin.Registry
	Audit      *audit.Log   // nil when NoPersist or ReadOnly
	State      *state.Store // nil when NoPersist
	Alerts     *alert.Dispatcher
	Gate       *gate.Gate
}

// Open loads configuration and builds the pipeline. Persisted state is
// restored after config seeds are applied, so explicit runtime mutations win
// over config defaults.
func Open(opts Options) (*Runtime, error) {
	cfg, hash, err := config.LoadWithHash(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		Config:     cfg,
		ConfigHash: hash,
		Classifier: tier.NewClassifier(),
		Kill:       killswitch.New(cfg.KillswitchUnlockTool),
		Approvals:  approval.NewStore(),
		Autonomy:   autonomy.NewPolicy(cfg.AutonomyRestricted...),
		Scanner:    scanner.New(cfg.ScannerPatterns...),
		Registry:   plugin.NewRegistry(),
		Alerts:     alert.NewDispatcher(cfg.Alerts),
	}

	for toolID, name := range cfg.TierOverrides {
		t, err := tier.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("tier_overrides[%s]: %w", toolID, err)
		}
		r.Classifier.SetOverride(toolID, t)
	}

	mode, err := pairing.ParseMode(cfg.Pairing.Mode)
	if err != nil {
		return nil, err
	}
	r.Pairing = pairing.NewManager(mode)
	r.Pairing.SetTTL(cfg.PairingTTL())
	for _, principal := range cfg.Pairing.Principals {
		r.Pairing.AllowPrincipal(principal)
	}

	limits := make(map[string]sendlimit.Limit, len(sendlimit.DefaultLimits)+len(cfg.SendLimits))
	for toolID, lim := range sendlimit.DefaultLimits {
		limits[toolID] = lim
	}
	for toolID, lim := range cfg.SendLimits {
		limits[toolID] = sendlimit.Limit{
			MaxSends: lim.MaxSends,
			Window:   time.Duration(lim.WindowMinutes) * time.Minute,
		}
	}
	r.Sends = sendlimit.NewTracker(limits)

	grants, err := buildGrants(cfg)
	if err != nil {
		return nil, err
	}
	engineOpts := []policy.Option{policy.WithGrants(grants)}
	for kindName, toolIDs := range cfg.ContextAllow {
		engineOpts = append(engineOpts, policy.WithContextAllow(policy.ContextKind(kindName), toolIDs...))
	}
	r.Engine = policy.NewEngine(r.Classifier, r.Kill, r.Approvals, r.Sends, engineOpts...)

	for _, p := range []plugin.Plugin{plugin.Calculator{}, plugin.DateTime{}} {
		if err := r.Registry.Register(p); err != nil {
			return nil, err
		}
	}

	if !opts.NoPersist {
		if !opts.ReadOnly {
			auditPath := cfg.AuditLogPath
			if opts.AuditLogPath != "" {
				auditPath = opts.AuditLogPath
			}
			r.Audit, err = audit.Open(auditPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open audit log: %w", err)
			}
			// Ties every subsequent record in this writer session to the
			// exact policy file it ran under.
			if err := r.Audit.SecurityEvent("config", audit.EventPolicyDecision, audit.OutcomeSuccess, audit.Details{
				Extra: "policy loaded, sha256 " + hash,
			}); err != nil {
				r.Audit.Close()
				return nil, err
			}
		}

		statePath := cfg.StatePath
		if opts.StatePath != "" {
			statePath = opts.StatePath
		}
		r.State, err = state.Open(statePath)
		if err != nil {
			if r.Audit != nil {
				r.Audit.Close()
			}
			return nil, err
		}
		if err := r.State.Restore(r.Classifier, r.Pairing, r.Autonomy); err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to restore state: %w", err)
		}
		engaged, reason, err := r.State.Killswitch()
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to restore state: %w", err)
		}
		if engaged {
			r.Kill.Engage(reason)
		}

		grants, err := r.State.Grants()
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to restore state: %w", err)
		}
		for _, g := range grants {
			r.Approvals.Restore(g)
		}
		if !opts.ReadOnly {
			st := r.State
			r.Approvals.SetSync(func(snapshot []approval.Grant) {
				if err := st.ReplaceGrants(snapshot); err != nil {
					fmt.Fprintf(os.Stderr, "warning: failed to persist approval grants: %v\n", err)
				}
			})
		}
	}

	r.Gate = gate.New(r.Registry, r.Engine, r.Scanner, r.Autonomy, r.Audit)
	return r, nil
}

// buildGrants overlays config capability grants onto the defaults.
func buildGrants(cfg *config.Config) (policy.Grants, error) {
	grants := policy.DefaultGrants()
	for kindName, names := range cfg.CapabilityGrants {
		set := capability.NewSet()
		for _, name := range names {
			c, err := capability.Parse(name)
			if err != nil {
				return nil, fmt.Errorf("capability_grants[%s]: %w", kindName, err)
			}
			set.Add(c)
		}
		grants[policy.ContextKind(kindName)] = set
	}
	return grants, nil
}

// ApplyConfig applies a freshly loaded config to the live runtime. Only
// hot-reloadable settings take effect: tier overrides, pairing mode and TTL,
// extra scanner patterns, and alert destinations. Capability grants and send
// limits require a restart.
func (r *Runtime) ApplyConfig(cfg *config.Config) error {
	for toolID, name := range cfg.TierOverrides {
		t, err := tier.Parse(name)
		if err != nil {
			return fmt.Errorf("tier_overrides[%s]: %w", toolID, err)
		}
		r.Classifier.SetOverride(toolID, t)
	}

	mode, err := pairing.ParseMode(cfg.Pairing.Mode)
	if err != nil {
		return err
	}
	r.Pairing.SetMode(mode)
	r.Pairing.SetTTL(cfg.PairingTTL())
	for _, principal := range cfg.Pairing.Principals {
		r.Pairing.AllowPrincipal(principal)
	}

	for _, pattern := range cfg.ScannerPatterns {
		r.Scanner.AddPattern(pattern)
	}

	r.Alerts = alert.NewDispatcher(cfg.Alerts)
	r.Config = cfg
	return nil
}

// Close releases the audit log and state database.
func (r *Runtime) Close() error {
	var first error
	if r.Audit != nil {
		if err := r.Audit.Close(); err != nil {
			first = err
		}
	}
	if r.State != nil {
		if err := r.State.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
