package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factorwatch/internal/systemd"
)

var (
	initServiceOutput string
	initServiceOpts   systemd.ServeOptions
)

func init() {
	rootCmd.AddCommand(initServiceCmd)
	f := initServiceCmd.Flags()
	f.StringVarP(&initServiceOutput, "output", "o", "", "Write the unit to this path instead of stdout")
	f.StringVar(&initServiceOpts.Binary, "binary", "", "factorwatch binary path (default /usr/local/bin/factorwatch)")
	f.StringVar(&initServiceOpts.Policy, "policy-file", "", "Policy path for the server (default /etc/factorwatch/policy.yaml)")
	f.StringVar(&initServiceOpts.HTTPAddr, "http", ":8080", "HTTP listen address")
	f.IntVar(&initServiceOpts.Port, "port", 50051, "gRPC listen port")
	f.StringVar(&initServiceOpts.AuditLog, "audit-log", "", "Audit log path (default /var/lib/factorwatch/decisions.jsonl)")
	f.StringVar(&initServiceOpts.User, "user", "", "Service user (default factorwatch)")
}

var initServiceCmd = &cobra.Command{
	Use:   "init-service",
	Short: "Generate a systemd unit for factorwatch serve",
	Long:  "Prints factorwatch.service. Install it to /etc/systemd/system and run\nsystemctl daemon-reload && systemctl enable --now factorwatch.",
	RunE:  runInitService,
}

func runInitService(cmd *cobra.Command, args []string) error {
	opts := initServiceOpts
	opts.Profile = profileName
	unit := systemd.ServeUnit(opts)

	if initServiceOutput == "" {
		fmt.Fprint(cmd.OutOrStdout(), unit)
		return nil
	}
	if err := os.WriteFile(initServiceOutput, []byte(unit), 0o644); err != nil {
		return fmt.Errorf("write unit: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", initServiceOutput)
	return nil
}
