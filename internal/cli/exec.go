package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toolwarden/toolwarden/internal/gate"
	"github.com/toolwarden/toolwarden/internal/policy"
)

var (
	execSubAgent  bool
	execSandboxed bool
	execSession   string
)

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().BoolVar(&execSubAgent, "sub-agent", false, "Execute as a sub-agent invocation")
	execCmd.Flags().BoolVar(&execSandboxed, "sandboxed", false, "Execute as a sandboxed invocation")
	execCmd.Flags().StringVar(&execSession, "session", "cli", "Session id for approval lookup")
}

var execCmd = &cobra.Command{
	Use:   "exec <tool> [input...]",
	Short: "Execute a tool through the full authorization pipeline",
	Long: "Runs the tool after policy evaluation, safety scan, and autonomy\n" +
		"check. Every decision and outcome lands in the audit log.\n\n" +
		"Exit code 0 on success, 77 if blocked by policy, 1 on tool failure.",
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	toolID := args[0]
	input := strings.Join(args[1:], " ")

	rt, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ectx := policy.EvalContext{
		IsSubAgent:  execSubAgent,
		IsSandboxed: execSandboxed,
		SessionID:   execSession,
	}

	result, err := rt.Gate.Execute(toolID, input, ectx)
	if result.AuditDegraded {
		fmt.Fprintln(os.Stderr, "warning: audit log degraded, decision not recorded")
	}
	if err != nil {
		if gate.IsDenial(err) {
			fmt.Fprintf(os.Stderr, "BLOCKED: %v\n", err)
			os.Exit(77)
		}
		return err
	}

	fmt.Println(result.Output)
	return nil
}
