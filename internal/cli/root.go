package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	policyPath  string
	profileName string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "factorwatch",
	Short: "Context-aware MFA factor selection",
	Long: "Scores authentication factors against the login context, derives attribute\n" +
		"constraints and enumerates every admissible factor combination with a SAT solver.",
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&policyPath, "policy", "", "Path to policy YAML (default ~/.factorwatch/policy.yaml)")
	pf.StringVar(&profileName, "profile", "", "Context profile to apply (e.g., office, cafe)")
	pf.StringVar(&logLevel, "log-level", "warn", "Log level (debug|info|warn|error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds a stderr logger at --log-level.
func newLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
