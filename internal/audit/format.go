package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTable renders a TailResult as a human-readable text table.
func FormatTable(result *TailResult) string {
	if len(result.Entries) == 0 {
		return "No decisions found.\n"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-19s %-36s %-19s %5s %s\n", "TIME", "REQUEST", "OUTCOME", "SOLS", "EXCLUDED"))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		excluded := make([]string, len(e.Excluded))
		for i, x := range e.Excluded {
			excluded[i] = x.Factor
		}
		outcome := e.Outcome
		if e.Truncated && outcome != "truncated" {
			outcome += "*"
		}
		b.WriteString(fmt.Sprintf("%-19s %-36s %-19s %5d %s\n",
			formatTime(e.Timestamp), e.RequestID, outcome, len(e.Solutions),
			truncate(strings.Join(excluded, ","), 40)))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a TailResult as indented JSON.
func FormatJSON(result *TailResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal audit result: %w", err)
	}
	return string(data), nil
}

func formatTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatSummary(s Summary) string {
	parts := []string{}
	if s.Selected > 0 {
		parts = append(parts, fmt.Sprintf("%d selected", s.Selected))
	}
	if s.NoEligible > 0 {
		parts = append(parts, fmt.Sprintf("%d no eligible factor", s.NoEligible))
	}
	if s.Truncated > 0 {
		parts = append(parts, fmt.Sprintf("%d truncated", s.Truncated))
	}
	if s.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", s.Failed))
	}
	return fmt.Sprintf("Summary: %d decisions | %s\n", s.Total, strings.Join(parts, ", "))
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
