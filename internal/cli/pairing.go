package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolwarden/toolwarden/internal/audit"
)

func init() {
	rootCmd.AddCommand(pairingCmd)
	pairingCmd.AddCommand(pairingListCmd)
	pairingCmd.AddCommand(pairingApproveCmd)
	pairingCmd.AddCommand(pairingDenyCmd)
	pairingCmd.AddCommand(pairingPrincipalsCmd)
	pairingCmd.AddCommand(pairingRemoveCmd)
	pairingCmd.AddCommand(pairingModeCmd)
}

var pairingCmd = &cobra.Command{
	Use:   "pairing",
	Short: "Manage principal pairing",
	Long:  "In pairing mode, unknown principals receive a time-boxed code instead\nof access. The owner approves or denies the code here; approved\nprincipals land on the persistent allow-list.",
}

var pairingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending pairing requests",
	Args:  cobra.NoArgs,
	RunE:  runPairingList,
}

var pairingApproveCmd = &cobra.Command{
	Use:   "approve <code>",
	Short: "Approve a pending pairing request",
	Args:  cobra.ExactArgs(1),
	RunE:  runPairingApprove,
}

var pairingDenyCmd = &cobra.Command{
	Use:   "deny <code>",
	Short: "Deny a pending pairing request",
	Args:  cobra.ExactArgs(1),
	RunE:  runPairingDeny,
}

var pairingPrincipalsCmd = &cobra.Command{
	Use:   "principals",
	Short: "List allow-listed principals",
	Args:  cobra.NoArgs,
	RunE:  runPairingPrincipals,
}

var pairingRemoveCmd = &cobra.Command{
	Use:   "remove <principal>",
	Short: "Remove a principal from the allow-list",
	Args:  cobra.ExactArgs(1),
	RunE:  runPairingRemove,
}

var pairingModeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Show the active pairing mode",
	Long:  "The mode is set in the config file (pairing.mode) and picked up by a\nrunning server on reload.",
	Args:  cobra.NoArgs,
	RunE:  runPairingMode,
}

func runPairingList(cmd *cobra.Command, args []string) error {
	rt, err := openRuntimeReadOnly()
	if err != nil {
		return err
	}
	defer rt.Close()

	fmt.Printf("Mode: %s\n", rt.Pairing.GetMode())

	pending := rt.Pairing.Pending()
	if len(pending) == 0 {
		fmt.Println("No pending requests.")
		return nil
	}

	for _, req := range pending {
		fmt.Printf("  %s  %s (%s)  expires %s\n",
			req.Code, req.PrincipalID, req.DisplayName, req.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func runPairingApprove(cmd *cobra.Command, args []string) error {
	code := args[0]

	rt, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	req, err := rt.Pairing.Lookup(code)
	if err != nil {
		return err
	}
	if !rt.Pairing.Approve(code) {
		return fmt.Errorf("pairing: request %s no longer pending", code)
	}

	if err := rt.State.SaveAllowedPrincipal(req.PrincipalID); err != nil {
		return err
	}
	if err := rt.State.DeletePendingRequest(code); err != nil {
		return err
	}
	if err := rt.Audit.SecurityEvent(req.PrincipalID, audit.EventPairing, audit.OutcomeAllowed, audit.Details{
		Extra: fmt.Sprintf("pairing code %s approved", code),
	}); err != nil {
		return err
	}

	fmt.Printf("Approved %s (%s)\n", req.PrincipalID, req.DisplayName)
	return nil
}

func runPairingDeny(cmd *cobra.Command, args []string) error {
	code := args[0]

	rt, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	req, err := rt.Pairing.Lookup(code)
	if err != nil {
		return err
	}
	if !rt.Pairing.Deny(code) {
		return fmt.Errorf("pairing: request %s no longer pending", code)
	}

	if err := rt.State.DeletePendingRequest(code); err != nil {
		return err
	}
	if err := rt.Audit.SecurityEvent(req.PrincipalID, audit.EventPairing, audit.OutcomeBlocked, audit.Details{
		Extra: fmt.Sprintf("pairing code %s denied", code),
	}); err != nil {
		return err
	}

	fmt.Printf("Denied %s (%s)\n", req.PrincipalID, req.DisplayName)
	return nil
}

func runPairingMode(cmd *cobra.Command, args []string) error {
	rt, err := openRuntimeReadOnly()
	if err != nil {
		return err
	}
	defer rt.Close()

	fmt.Printf("Mode: %s\n", rt.Pairing.GetMode())
	fmt.Printf("Code TTL: %s\n", rt.Config.PairingTTL())
	fmt.Printf("Pending: %d\n", len(rt.Pairing.Pending()))
	return nil
}

func runPairingPrincipals(cmd *cobra.Command, args []string) error {
	rt, err := openRuntimeReadOnly()
	if err != nil {
		return err
	}
	defer rt.Close()

	principals := rt.Pairing.AllowedPrincipals()
	if len(principals) == 0 {
		fmt.Println("No principals allow-listed.")
		return nil
	}
	for _, id := range principals {
		fmt.Printf("  %s\n", id)
	}
	return nil
}

func runPairingRemove(cmd *cobra.Command, args []string) error {
	principalID := args[0]

	rt, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.Pairing.RemovePrincipal(principalID)
	if err := rt.State.DeleteAllowedPrincipal(principalID); err != nil {
		return err
	}
	if err := rt.Audit.SecurityEvent(principalID, audit.EventPairing, audit.OutcomeBlocked, audit.Details{
		Extra: "principal removed from allow-list",
	}); err != nil {
		return err
	}

	fmt.Printf("Removed %s\n", principalID)
	return nil
}
