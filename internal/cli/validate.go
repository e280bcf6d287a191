package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factorwatch/internal/engine"
	"github.com/ppiankov/factorwatch/internal/policy"
	"github.com/ppiankov/factorwatch/internal/profile"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate [policy.yaml]",
	Short: "Check that a policy file loads and its rules compile",
	Long: "Loads the policy (argument, --policy, or ~/.factorwatch/policy.yaml), compiles\n" +
		"every rule and checks the solver backend. With --profile the profile's rule\n" +
		"additions are validated against the policy too.",
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := policyPath
	if len(args) == 1 {
		path = args[0]
	}

	cfg, hash, err := policy.LoadConfigWithHash(path)
	if err != nil {
		return err
	}
	if profileName != "" {
		p, err := profile.Load(profileName)
		if err != nil {
			return err
		}
		cfg = profile.ApplyToPolicy(p, cfg)
	}
	rules, err := cfg.CompileRules()
	if err != nil {
		return err
	}
	if _, err := engine.New(engine.WithPolicy(cfg, hash)); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Policy is valid.")
	fmt.Fprintf(w, "  Rules:          %d\n", rules.Len())
	fmt.Fprintf(w, "  Requires:       %d\n", len(cfg.Combinations.Requires))
	fmt.Fprintf(w, "  Excludes:       %d\n", len(cfg.Combinations.Excludes))
	fmt.Fprintf(w, "  Factors:        %d\n", len(cfg.Factors))
	fmt.Fprintf(w, "  Alerts:         %d\n", len(cfg.Alerts))
	fmt.Fprintf(w, "  Backend:        %s\n", cfg.Solver.Backend)
	fmt.Fprintf(w, "  Hash:           %s\n", hash)
	return nil
}
