package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factorwatch/internal/factor"
	"github.com/ppiankov/factorwatch/internal/policy"
)

func init() {
	rootCmd.AddCommand(factorsCmd)
}

var factorsCmd = &cobra.Command{
	Use:   "factors",
	Short: "List the built-in authentication factors",
	Long:  "Lists every registered factor. Factors marked * are in the policy's default candidate list.",
	RunE:  runFactors,
}

func runFactors(cmd *cobra.Command, args []string) error {
	cfg, err := policy.LoadConfig(policyPath)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for _, name := range factor.Builtin().Names() {
		mark := " "
		if slices.Contains(cfg.Factors, name) {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s\n", mark, name)
	}
	return nil
}
