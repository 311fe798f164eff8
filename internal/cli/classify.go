package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var classifyJSON bool

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "Output as JSON")
}

var classifyCmd = &cobra.Command{
	Use:   "classify <tool>",
	Short: "Show the danger tier for a tool",
	Long:  "Resolves a tool id to its danger tier: override first, then the\nbuilt-in defaults, then the unknown-tool fallback.",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	rt, err := openRuntimeReadOnly()
	if err != nil {
		return err
	}
	defer rt.Close()

	c := rt.Classifier.Classify(args[0])

	if classifyJSON {
		out, _ := json.MarshalIndent(map[string]any{
			"tool":     c.ToolID,
			"tier":     c.Tier.String(),
			"reason":   c.Reason,
			"requires": c.Requires.Names(),
		}, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Tool:   %s\n", c.ToolID)
	fmt.Printf("Tier:   %s\n", c.Tier)
	fmt.Printf("Reason: %s\n", c.Reason)
	if names := c.Requires.Names(); len(names) > 0 {
		fmt.Printf("Needs:  %s\n", strings.Join(names, ", "))
	}
	return nil
}
