// Package mcp exposes the authorization pipeline over the Model Context
// Protocol so an agent host can route tool calls through it on stdio.
package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/toolwarden/toolwarden/internal/alert"
	"github.com/toolwarden/toolwarden/internal/warden"
)

// Config holds MCP server configuration.
type Config struct {
	ConfigPath   string
	AuditLogPath string
	StatePath    string
	SessionID    string
}

// Server wraps the MCP SDK server around a warden runtime.
type Server struct {
	mcpServer *mcpsdk.Server
	rt        *warden.Runtime
	sessionID string
}

// New creates an MCP server with a fully wired runtime.
func New(cfg Config) (*Server, error) {
	rt, err := warden.Open(warden.Options{
		ConfigPath:   cfg.ConfigPath,
		AuditLogPath: cfg.AuditLogPath,
		StatePath:    cfg.StatePath,
	})
	if err != nil {
		return nil, err
	}

	// Each server run gets its own session scope unless the caller pins one;
	// send limits and session-bound grants key on it.
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s := &Server{
		rt:        rt,
		sessionID: sessionID,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "toolwarden",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Runtime exposes the underlying components for the serve command (hot
// reload, integrity attestation).
func (s *Server) Runtime() *warden.Runtime {
	return s.rt
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the runtime's audit log and state store.
func (s *Server) Close() error {
	return s.rt.Close()
}

func (s *Server) dispatchBlocked(toolID, eventKind, layer, tierName, risk, reason string) {
	if s.rt.Alerts == nil {
		return
	}
	s.rt.Alerts.Dispatch(alert.Event{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		ToolID:    toolID,
		EventKind: eventKind,
		Outcome:   "blocked",
		Layer:     layer,
		Tier:      tierName,
		Risk:      risk,
		Reason:    reason,
	})
}

// registerTools adds all toolwarden tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_execute",
		Description: "Execute a registered tool through the full authorization pipeline. Denied calls return an error with the denying layer and reason.",
	}, s.handleExecute)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_check",
		Description: "Check whether a tool call would be allowed without executing it (dry-run).",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_scan",
		Description: "Run the safety scanner over raw tool input and report risk findings.",
	}, s.handleScan)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_classify",
		Description: "Report the danger tier and required capabilities for a tool id.",
	}, s.handleClassify)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_approve",
		Description: "Grant approval for an approval_required tool. Omit duration for a one-time grant.",
	}, s.handleApprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_grants",
		Description: "List active approval grants.",
	}, s.handleGrants)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_pair",
		Description: "Request access for a principal. In pairing mode, unknown principals receive a time-boxed code the owner approves or denies.",
	}, s.handlePair)
}
