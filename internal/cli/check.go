package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toolwarden/toolwarden/internal/policy"
)

var (
	checkSubAgent  bool
	checkSandboxed bool
	checkSession   string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkSubAgent, "sub-agent", false, "Evaluate as a sub-agent invocation")
	checkCmd.Flags().BoolVar(&checkSandboxed, "sandboxed", false, "Evaluate as a sandboxed invocation")
	checkCmd.Flags().StringVar(&checkSession, "session", "cli", "Session id for approval lookup")
}

var checkCmd = &cobra.Command{
	Use:   "check <tool>",
	Short: "Dry-run the policy pipeline for a tool",
	Long: "Evaluates the full decision pipeline without executing anything and\n" +
		"without touching approval grants or send counters.\n\n" +
		"Exit code 0 if the call would be allowed, 1 if denied.",
	Args: cobra.ExactArgs(1),
	RunE: runPolicyCheck,
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	toolID := args[0]

	rt, err := openRuntimeReadOnly()
	if err != nil {
		return err
	}
	defer rt.Close()

	ectx := policy.EvalContext{
		IsSubAgent:  checkSubAgent,
		IsSandboxed: checkSandboxed,
		SessionID:   checkSession,
	}

	d := rt.Engine.Check(toolID, ectx)
	if d.Allowed {
		if p, err := rt.Registry.Resolve(toolID); err == nil {
			d = rt.Engine.EvaluateCapabilities(toolID, p.Declared())
		}
	}

	if d.Allowed {
		fmt.Printf("ALLOWED: %s (%s)\n", toolID, d.Reason)
		return nil
	}

	fmt.Printf("DENIED: %s at %s layer: %s\n", toolID, d.Layer, d.Reason)
	if len(d.Missing) > 0 {
		names := make([]string, len(d.Missing))
		for i, c := range d.Missing {
			names[i] = c.String()
		}
		fmt.Printf("Missing capabilities: %s\n", strings.Join(names, ", "))
	}
	os.Exit(1)
	return nil
}
