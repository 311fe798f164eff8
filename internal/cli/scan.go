package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan <tool> [input...]",
	Short: "Run the safety scanner over tool input",
	Long: "Scans input for blocked patterns, prompt-injection markers, and\n" +
		"secrets without executing anything. Reads stdin when no input\n" +
		"arguments are given.\n\n" +
		"Exit code 0 if clean, 1 if the input would be blocked.",
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	toolID := args[0]

	var input string
	if len(args) > 1 {
		input = strings.Join(args[1:], " ")
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		input = string(data)
	}

	rt, err := openRuntime(true)
	if err != nil {
		return err
	}
	defer rt.Close()

	r := rt.Scanner.Scan(toolID, input)

	fmt.Printf("Risk: %s\n", r.Risk)
	for _, f := range r.Findings {
		if f.Matched != "" {
			fmt.Printf("  [%s] %s (matched %q)\n", f.Kind, f.Detail, f.Matched)
		} else {
			fmt.Printf("  [%s] %s\n", f.Kind, f.Detail)
		}
	}
	if r.Recommendation != "" {
		fmt.Printf("Recommendation: %s\n", r.Recommendation)
	}

	if !r.Allowed {
		fmt.Println("BLOCKED")
		os.Exit(1)
	}
	fmt.Println("OK")
	return nil
}
