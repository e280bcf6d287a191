package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factorwatch/internal/profile"
)

var initOutput string

func init() {
	profileCmd.AddCommand(profileInitCmd)
	profileInitCmd.Flags().StringVarP(&initOutput, "output", "o", "", "Output path (default: ~/.factorwatch/profiles/<name>.yaml)")
}

var profileInitCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Generate a starter profile template",
	Long:  "Creates a commented YAML profile template describing a login context.",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileInit,
}

func runProfileInit(cmd *cobra.Command, args []string) error {
	name := args[0]

	outPath := initOutput
	if outPath == "" {
		dir, err := profile.Dir()
		if err != nil {
			return err
		}
		outPath = filepath.Join(dir, name+".yaml")
	}

	if _, err := os.Stat(outPath); err == nil {
		return fmt.Errorf("file already exists: %s (remove it first or use --output)", outPath)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	if err := os.WriteFile(outPath, []byte(profile.InitProfile(name)), 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created profile template: %s\n", outPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Edit it, then validate with: factorwatch profile check %s\n", name)
	return nil
}
