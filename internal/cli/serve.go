package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/toolwarden/toolwarden/internal/config"
	"github.com/toolwarden/toolwarden/internal/integrity"
	"github.com/toolwarden/toolwarden/internal/mcp"
)

var serveSession string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveSession, "session", "", "Session id attached to approval lookups (default: mcp)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs toolwarden as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes policy-gated tools: warden_execute, warden_check, warden_scan,\n" +
		"warden_classify, warden_approve, warden_grants.\n" +
		"Supports hot-reload of the config file.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	srv, err := mcp.New(mcp.Config{
		ConfigPath:   flagConfig,
		AuditLogPath: flagAuditLog,
		StatePath:    flagState,
		SessionID:    serveSession,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	rt := srv.Runtime()

	// Restricted tools start untrusted; a clean attestation unlocks them.
	if err := integrity.Attest(rt.Autonomy, rt.Config.AutonomyRestricted...); err != nil {
		fmt.Fprintf(os.Stderr, "warning: attestation failed, restricted tools stay locked: %v\n", err)
	}

	configPath := flagConfig
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	reloader, err := config.NewReloader(configPath, rt.ApplyConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if reloader != nil {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "toolwarden MCP server running on stdio")
	fmt.Fprintf(os.Stderr, "Config: %s (hot-reload enabled)\n", configPath)
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
