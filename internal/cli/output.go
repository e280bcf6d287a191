package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/factorwatch/internal/derive"
	"github.com/ppiankov/factorwatch/internal/model"
	"github.com/ppiankov/factorwatch/internal/wire"
)

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func writeDecision(w io.Writer, resp *wire.DecideResponse) {
	fmt.Fprintf(w, "Outcome:  %s\n", resp.Outcome)
	fmt.Fprintf(w, "Request:  %s\n", resp.RequestID)
	fmt.Fprintf(w, "Backend:  %s (%s)\n", resp.Backend, resp.Elapsed)
	if resp.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", resp.Error)
	}
	fmt.Fprintln(w)

	writeConstraints(w, resp.Constraints, resp.Adjustments)

	if len(resp.Excluded) > 0 {
		fmt.Fprintln(w, "Excluded:")
		for _, ex := range resp.Excluded {
			fmt.Fprintf(w, "  %-24s %s\n", ex.Factor, ex.Reason)
		}
		fmt.Fprintln(w)
	}

	for _, warn := range resp.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warn)
	}

	label := "Solutions"
	if resp.Truncated {
		label = "Solutions (truncated)"
	}
	fmt.Fprintf(w, "%s: %d\n", label, len(resp.Solutions))
	for i, sol := range resp.Solutions {
		fmt.Fprintf(w, "  %3d. %s\n", i+1, strings.Join(sol, " + "))
	}
}

func writeConstraints(w io.Writer, c model.Constraints, adj []derive.Adjustment) {
	fmt.Fprintln(w, "Constraints:")
	for _, attr := range c.Attributes() {
		fmt.Fprintf(w, "  %-14s %s\n", attr, c[attr])
	}
	fmt.Fprintln(w)
	if len(adj) == 0 {
		return
	}
	fmt.Fprintln(w, "Adjustments:")
	for _, a := range adj {
		fmt.Fprintf(w, "  %-14s %s  (%s)\n", a.Attribute, a.Range, a.Reason)
	}
	fmt.Fprintln(w)
}
