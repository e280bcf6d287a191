package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factorwatch/internal/audit"
)

var (
	tailLines     int
	tailOutcome   string
	tailRequestID string
	tailSince     time.Duration
	tailFormat    string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show (0 = all)")
	auditTailCmd.Flags().StringVar(&tailOutcome, "outcome", "", "Only show decisions with this outcome")
	auditTailCmd.Flags().StringVar(&tailRequestID, "request", "", "Only show the decision with this request ID")
	auditTailCmd.Flags().DurationVar(&tailSince, "since", 0, "Only show decisions newer than this (e.g. 1h)")
	auditTailCmd.Flags().StringVarP(&tailFormat, "format", "f", "table", "Output format (table|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Decision log operations",
	Long:  "Commands for verifying and inspecting the hash-chained decision log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of a decision log",
	Long:  "Walks the JSONL decision log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent decisions",
	Long:  "Reads the last N matching entries from the JSONL decision log.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if !result.Valid {
		return fmt.Errorf("FAILED at line %d: %s", result.ErrorLine, result.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	filter := audit.Filter{
		RequestID: tailRequestID,
		Outcome:   tailOutcome,
		Limit:     tailLines,
	}
	if tailSince > 0 {
		filter.From = time.Now().Add(-tailSince)
	}

	result, err := audit.Tail(args[0], filter)
	if err != nil {
		return err
	}

	if tailFormat == "json" {
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), audit.FormatTable(result))
	return nil
}
