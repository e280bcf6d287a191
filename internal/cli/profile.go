package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/factorwatch/internal/profile"
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileCheckCmd)
	profileCmd.AddCommand(profileShowCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage context profiles",
	Long:  "List, check, and inspect the named access contexts used with --profile.",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available context profiles",
	RunE:  runProfileList,
}

var profileCheckCmd = &cobra.Command{
	Use:   "check <name>",
	Short: "Validate a profile loads cleanly",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileCheck,
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a profile as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileShow,
}

func runProfileList(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	names := profile.List()
	if len(names) == 0 {
		fmt.Fprintln(w, "No profiles available.")
		return nil
	}

	fmt.Fprintln(w, "Available profiles:")
	for _, name := range names {
		p, err := profile.Load(name)
		if err != nil {
			fmt.Fprintf(w, "  %-15s (error loading: %v)\n", name, err)
			continue
		}
		fmt.Fprintf(w, "  %-15s %s\n", name, p.Description)
	}
	return nil
}

func runProfileCheck(cmd *cobra.Command, args []string) error {
	name := args[0]
	p, err := profile.Load(name)
	if err != nil {
		return fmt.Errorf("failed to load profile %q: %w", name, err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Profile %q is valid.\n", p.Name)
	fmt.Fprintf(w, "  Environment keys:  %d\n", len(p.Environment))
	fmt.Fprintf(w, "  Device keys:       %d\n", len(p.Device))
	fmt.Fprintf(w, "  Context keys:      %d\n", len(p.Context))
	if p.Policy != nil {
		fmt.Fprintf(w, "  Policy rules:      %d\n", len(p.Policy.Rules))
		fmt.Fprintf(w, "  Combinations:      %d\n", len(p.Policy.Combinations.Requires)+len(p.Policy.Combinations.Excludes))
	}
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	p, err := profile.Load(args[0])
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}
