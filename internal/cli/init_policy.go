package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factorwatch/internal/policy"
)

var (
	initPolicyOutput string
	initPolicyForce  bool
)

func init() {
	rootCmd.AddCommand(initPolicyCmd)
	initPolicyCmd.Flags().StringVarP(&initPolicyOutput, "output", "o", "", "Output path (default: ~/.factorwatch/policy.yaml)")
	initPolicyCmd.Flags().BoolVar(&initPolicyForce, "force", false, "Overwrite an existing file")
}

var initPolicyCmd = &cobra.Command{
	Use:   "init-policy",
	Short: "Generate default policy.yaml with comments",
	Long:  "Creates ~/.factorwatch/policy.yaml with the default constraints, factor list and\nsolver settings. Edit this file to customize factor selection.",
	RunE:  runInitPolicy,
}

func runInitPolicy(cmd *cobra.Command, args []string) error {
	path := initPolicyOutput
	if path == "" {
		path = policy.DefaultPath()
		if path == "" {
			return fmt.Errorf("cannot determine home directory")
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil && !initPolicyForce {
		return fmt.Errorf("policy.yaml already exists at %s (use --force to overwrite)", path)
	}

	if err := os.WriteFile(path, []byte(policy.DefaultConfigYAML()), 0o644); err != nil {
		return fmt.Errorf("failed to write policy.yaml: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
	return nil
}
