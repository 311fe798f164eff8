package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toolwarden/toolwarden/internal/audit"
)

func init() {
	rootCmd.AddCommand(killswitchCmd)
	killswitchCmd.AddCommand(killswitchEngageCmd)
	killswitchCmd.AddCommand(killswitchReleaseCmd)
	killswitchCmd.AddCommand(killswitchStatusCmd)
}

var killswitchCmd = &cobra.Command{
	Use:   "killswitch",
	Short: "Emergency disable for all tools",
	Long:  "While engaged, every tool is denied except the designated unlock tool.\nThe position persists across restarts.",
}

var killswitchEngageCmd = &cobra.Command{
	Use:   "engage <reason...>",
	Short: "Engage the kill-switch",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKillswitchEngage,
}

var killswitchReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release the kill-switch",
	Args:  cobra.NoArgs,
	RunE:  runKillswitchRelease,
}

var killswitchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the kill-switch position",
	Args:  cobra.NoArgs,
	RunE:  runKillswitchStatus,
}

func runKillswitchEngage(cmd *cobra.Command, args []string) error {
	reason := strings.Join(args, " ")

	rt, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Kill.Engage(reason); err != nil {
		return err
	}
	if err := rt.State.SaveKillswitch(true, reason); err != nil {
		return err
	}
	if err := rt.Audit.SecurityEvent("", audit.EventKillSwitch, audit.OutcomeBlocked, audit.Details{
		Reason: reason,
	}); err != nil {
		return err
	}

	fmt.Printf("Kill-switch ENGAGED: %s\n", reason)
	fmt.Printf("Only %q may run until release.\n", rt.Kill.UnlockTool())
	return nil
}

func runKillswitchRelease(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.Kill.Release()
	if err := rt.State.SaveKillswitch(false, ""); err != nil {
		return err
	}
	if err := rt.Audit.SecurityEvent("", audit.EventKillSwitch, audit.OutcomeAllowed, audit.Details{
		Extra: "kill-switch released",
	}); err != nil {
		return err
	}

	fmt.Println("Kill-switch released.")
	return nil
}

func runKillswitchStatus(cmd *cobra.Command, args []string) error {
	rt, err := openRuntimeReadOnly()
	if err != nil {
		return err
	}
	defer rt.Close()

	s := rt.Kill.Snapshot()
	if !s.Engaged {
		fmt.Println("Kill-switch: disengaged")
		return nil
	}
	fmt.Printf("Kill-switch: ENGAGED since %s\n", s.EngagedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Reason: %s\n", s.Reason)
	return nil
}
