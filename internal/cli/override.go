package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/toolwarden/toolwarden/internal/audit"
	"github.com/toolwarden/toolwarden/internal/tier"
)

func init() {
	rootCmd.AddCommand(overrideCmd)
	overrideCmd.AddCommand(overrideSetCmd)
	overrideCmd.AddCommand(overrideRemoveCmd)
	overrideCmd.AddCommand(overrideListCmd)
}

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Manage danger tier overrides",
	Long:  "Overrides replace a tool's default danger tier. They persist across\nrestarts and always win over the built-in classification.",
}

var overrideSetCmd = &cobra.Command{
	Use:   "set <tool> <tier>",
	Short: "Pin a tool to a danger tier",
	Args:  cobra.ExactArgs(2),
	RunE:  runOverrideSet,
}

var overrideRemoveCmd = &cobra.Command{
	Use:   "remove <tool>",
	Short: "Remove a tier override",
	Args:  cobra.ExactArgs(1),
	RunE:  runOverrideRemove,
}

var overrideListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active tier overrides",
	Args:  cobra.NoArgs,
	RunE:  runOverrideList,
}

func runOverrideSet(cmd *cobra.Command, args []string) error {
	toolID := args[0]
	t, err := tier.Parse(args[1])
	if err != nil {
		return err
	}

	rt, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.Classifier.SetOverride(toolID, t)
	if err := rt.State.SaveOverride(toolID, t); err != nil {
		return err
	}
	if err := rt.Audit.SecurityEvent(toolID, audit.EventPolicyDecision, audit.OutcomeSuccess, audit.Details{
		Extra: fmt.Sprintf("tier override set to %s", t),
	}); err != nil {
		return err
	}

	fmt.Printf("Override set: %s -> %s\n", toolID, t)
	return nil
}

func runOverrideRemove(cmd *cobra.Command, args []string) error {
	toolID := args[0]

	rt, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.Classifier.RemoveOverride(toolID)
	if err := rt.State.DeleteOverride(toolID); err != nil {
		return err
	}
	if err := rt.Audit.SecurityEvent(toolID, audit.EventPolicyDecision, audit.OutcomeSuccess, audit.Details{
		Extra: "tier override removed",
	}); err != nil {
		return err
	}

	fmt.Printf("Override removed: %s\n", toolID)
	return nil
}

func runOverrideList(cmd *cobra.Command, args []string) error {
	rt, err := openRuntimeReadOnly()
	if err != nil {
		return err
	}
	defer rt.Close()

	overrides := rt.Classifier.Overrides()
	if len(overrides) == 0 {
		fmt.Println("No overrides active.")
		return nil
	}

	toolIDs := make([]string, 0, len(overrides))
	for toolID := range overrides {
		toolIDs = append(toolIDs, toolID)
	}
	sort.Strings(toolIDs)

	for _, toolID := range toolIDs {
		fmt.Printf("  %-24s %s\n", toolID, overrides[toolID])
	}
	return nil
}
