package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolwarden/toolwarden/internal/audit"
)

var (
	approveDuration time.Duration
	approveSession  string
)

func init() {
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(grantsCmd)
	rootCmd.AddCommand(revokeCmd)
	approveCmd.Flags().DurationVar(&approveDuration, "duration", 0, "Validity period (e.g., 5m, 1h). Default: one-time use")
	approveCmd.Flags().StringVar(&approveSession, "session", "", "Scope the grant to a session (default: any session)")
}

var approveCmd = &cobra.Command{
	Use:   "approve <tool>",
	Short: "Grant approval for an approval_required tool",
	Long:  "Records an approval grant for the tool. Without --duration the grant\nis one-time and consumed on first use; with --duration it is reusable\nuntil it expires.",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

var grantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "List live approval grants",
	Args:  cobra.NoArgs,
	RunE:  runGrants,
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <tool>",
	Short: "Revoke all approval grants for a tool",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevoke,
}

func runApprove(cmd *cobra.Command, args []string) error {
	toolID := args[0]

	rt, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.Approvals.Grant(toolID, approveSession, approveDuration)
	if err := rt.Audit.SecurityEvent(toolID, audit.EventPolicyDecision, audit.OutcomeSuccess, audit.Details{
		Extra: fmt.Sprintf("approval granted (duration %s)", approveDuration),
	}); err != nil {
		return err
	}

	if approveDuration > 0 {
		fmt.Printf("Approved %q for %s\n", toolID, approveDuration)
	} else {
		fmt.Printf("Approved %q (one-time use)\n", toolID)
	}
	return nil
}

func runGrants(cmd *cobra.Command, args []string) error {
	rt, err := openRuntimeReadOnly()
	if err != nil {
		return err
	}
	defer rt.Close()

	grants := rt.Approvals.List()
	if len(grants) == 0 {
		fmt.Println("No live grants.")
		return nil
	}

	for _, g := range grants {
		scope := "one-time"
		if g.ExpiresAt != nil {
			scope = "until " + g.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Printf("  %-24s session=%-12s %s\n", g.ToolID, g.SessionID, scope)
	}
	return nil
}

func runRevoke(cmd *cobra.Command, args []string) error {
	toolID := args[0]

	rt, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	removed := rt.Approvals.Revoke(toolID)
	if err := rt.Audit.SecurityEvent(toolID, audit.EventPolicyDecision, audit.OutcomeSuccess, audit.Details{
		Extra: fmt.Sprintf("%d approval grants revoked", removed),
	}); err != nil {
		return err
	}

	fmt.Printf("Revoked %d grants for %q\n", removed, toolID)
	return nil
}
