// Package plugin defines the tool-hosting boundary: the Plugin interface,
// execution results, and the registry the gate resolves tool ids against.
package plugin

import (
	"time"

	"github.com/toolwarden/toolwarden/internal/capability"
)

// Plugin is one registered unit of capability invoked by id.
type Plugin interface {
	ID() string
	Name() string
	Description() string
	// Declared returns the capabilities the plugin claims to need.
	Declared() capability.Set
	// Execute runs the plugin body. Implementations return a domain error
	// for expected failures; panics are recovered at the gate boundary.
	Execute(input string) (string, error)
}

// Result is the outcome of one plugin execution.
type Result struct {
	ToolID   string
	Success  bool
	Output   string
	Err      string
	Duration time.Duration
	// AuditDegraded is set when the decision or outcome could not be
	// written to the audit log. Callers must surface it.
	AuditDegraded bool
}

