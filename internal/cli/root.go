package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toolwarden/toolwarden/internal/integrity"
	"github.com/toolwarden/toolwarden/internal/warden"
)

var (
	flagConfig   string
	flagAuditLog string
	flagState    string
)

var rootCmd = &cobra.Command{
	Use:   "toolwarden",
	Short: "Authorization gate for AI agent tool calls",
	Long:  "Classifies every tool call by danger tier and routes it through a layered\npolicy pipeline before execution: kill-switch, tier, execution context,\ncapabilities, rate limits. Denials are enforced, not advisory.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := integrity.Verify(); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(78) // EX_CONFIG
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config YAML (default ~/.toolwarden/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagAuditLog, "audit-log", "", "Path to audit log JSONL file")
	rootCmd.PersistentFlags().StringVar(&flagState, "state", "", "Path to state database")
}

// openRuntime builds the pipeline from the persistent flags. Commands with
// nothing to persist or restore (scan) pass noPersist so they never touch
// the server's files.
func openRuntime(noPersist bool) (*warden.Runtime, error) {
	rt, err := warden.Open(warden.Options{
		ConfigPath:   flagConfig,
		AuditLogPath: flagAuditLog,
		StatePath:    flagState,
		NoPersist:    noPersist,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build runtime: %w", err)
	}
	return rt, nil
}

// openRuntimeReadOnly restores persisted state for evaluation but skips the
// single-writer audit log. For classify and check.
func openRuntimeReadOnly() (*warden.Runtime, error) {
	rt, err := warden.Open(warden.Options{
		ConfigPath: flagConfig,
		StatePath:  flagState,
		ReadOnly:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build runtime: %w", err)
	}
	return rt, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
