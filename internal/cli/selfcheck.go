package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolwarden/toolwarden/internal/capability"
	"github.com/toolwarden/toolwarden/internal/integrity"
)

func init() {
	rootCmd.AddCommand(selfcheckCmd)
}

var selfcheckCmd = &cobra.Command{
	Use:   "selfcheck",
	Short: "Attest binary integrity and sweep tool trust states",
	Long: "Hashes the running binary, reports the attestation as a trust signal\n" +
		"for every restricted tool, and prints the autonomy trust sweep.",
	Args: cobra.NoArgs,
	RunE: runSelfcheck,
}

func runSelfcheck(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	hash, err := integrity.HashSelf()
	if err != nil {
		return fmt.Errorf("failed to hash binary: %w", err)
	}
	fmt.Printf("Binary: sha256:%s\n", hash)

	attestErr := integrity.Attest(rt.Autonomy, rt.Config.AutonomyRestricted...)
	if attestErr != nil {
		fmt.Printf("Attestation: FAILED (%v)\n", attestErr)
	} else {
		fmt.Println("Attestation: ok")
	}

	// Persist the fresh signals so the next process starts attested.
	for toolID, sig := range rt.Autonomy.Signals() {
		if err := rt.State.SaveSignal(toolID, sig); err != nil {
			return err
		}
	}

	// The combined declared surface of every registered tool.
	declared := capability.NewSet()
	for _, id := range rt.Registry.IDs() {
		if p, err := rt.Registry.Resolve(id); err == nil {
			declared = declared.Union(p.Declared())
		}
	}
	if len(declared) > 0 {
		fmt.Printf("Declared capabilities: %s\n", capability.FormatList(declared.Sorted()))
	}

	seen := make(map[string]struct{})
	var toolIDs []string
	for _, id := range append(rt.Registry.IDs(), rt.Config.AutonomyRestricted...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		toolIDs = append(toolIDs, id)
	}
	fmt.Println()
	fmt.Print(rt.Autonomy.SelfCheck(toolIDs))
	return nil
}
