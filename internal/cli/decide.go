package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factorwatch/internal/client"
	"github.com/ppiankov/factorwatch/internal/engine"
	"github.com/ppiankov/factorwatch/internal/service"
	"github.com/ppiankov/factorwatch/internal/wire"
)

var (
	decideInput    string
	decideFactors  []string
	decideAuditLog string
	decideRemote   string
	decideFormat   string
)

func init() {
	rootCmd.AddCommand(decideCmd)
	decideCmd.Flags().StringVarP(&decideInput, "input", "i", "", "Request file (YAML or JSON, - for stdin)")
	decideCmd.Flags().StringSliceVar(&decideFactors, "factors", nil, "Candidate factors (overrides the request and policy lists)")
	decideCmd.Flags().StringVar(&decideAuditLog, "audit-log", "", "Path to audit log JSONL file")
	decideCmd.Flags().StringVar(&decideRemote, "remote", "", "Ask a running factorwatch server (host:port) instead of deciding locally")
	decideCmd.Flags().StringVarP(&decideFormat, "format", "f", "text", "Output format (text|json)")
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Select the admissible factor combinations for a login request",
	Long: "Scores the candidate factors, derives constraints from the request context and\n" +
		"prints every admissible combination. Exits 1 unless the outcome is selected.\n\n" +
		"With --remote the server applies its own policy and profile.",
	RunE: runDecide,
}

func runDecide(cmd *cobra.Command, args []string) error {
	req, err := readRequest(decideInput, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if len(decideFactors) > 0 {
		req.Factors = decideFactors
	}

	var resp *wire.DecideResponse
	if decideRemote != "" {
		c, err := client.New(decideRemote)
		if err != nil {
			return err
		}
		defer c.Close()
		if resp, err = c.Decide(cmd.Context(), req); err != nil {
			return err
		}
	} else {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		svc, err := service.New(service.Config{
			PolicyPath:   policyPath,
			ProfileName:  profileName,
			AuditLogPath: decideAuditLog,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		defer svc.Close()

		d, derr := svc.Decide(cmd.Context(), req)
		if d == nil {
			return derr
		}
		r := wire.NewDecideResponse(d, derr)
		resp = &r
	}

	switch decideFormat {
	case "json":
		if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
	default:
		writeDecision(cmd.OutOrStdout(), resp)
	}

	if resp.Outcome != engine.OutcomeSelected {
		return fmt.Errorf("decision %s", resp.Outcome)
	}
	return nil
}
