package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Policy diff: %s → %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s → %s\n", r.OldPath, r.NewPath)

	constraints := filterChanges(r.Changes, "constraints.")
	solver := filterChanges(r.Changes, "solver.")
	sets := filterChanges(r.Changes, "factors", "combinations.", "alerts")

	if len(constraints) > 0 {
		b.WriteString("\n  Constraints:\n")
		writeScalars(&b, constraints, "constraints.")
	}

	if len(solver) > 0 {
		b.WriteString("\n  Solver:\n")
		writeScalars(&b, solver, "solver.")
	}

	if len(r.RuleChanges) > 0 {
		b.WriteString("\n  Rules:\n")
		for _, rc := range r.RuleChanges {
			switch rc.Type {
			case "added":
				fmt.Fprintf(&b, "    + %s\n", rc.Rule)
			case "removed":
				fmt.Fprintf(&b, "    - %s\n", rc.Rule)
			case "changed":
				fmt.Fprintf(&b, "    ~ %s\n", rc.Rule)
			}
		}
	}

	if len(sets) > 0 {
		b.WriteString("\n")
		for _, c := range sets {
			switch c.Comment {
			case "added":
				fmt.Fprintf(&b, "  %s: + %s\n", c.Field, c.New)
			case "removed":
				fmt.Fprintf(&b, "  %s: - %s\n", c.Field, c.Old)
			}
		}
	}

	return b.String()
}

func writeScalars(b *strings.Builder, changes []Change, prefix string) {
	for _, c := range changes {
		name := strings.TrimPrefix(c.Field, prefix)
		old, new := c.Old, c.New
		if old == "" {
			old = "(none)"
		}
		if new == "" {
			new = "(none)"
		}
		fmt.Fprintf(b, "    %-28s %s → %s", name+":", old, new)
		if c.Comment != "" {
			fmt.Fprintf(b, "  (%s)", c.Comment)
		}
		b.WriteString("\n")
	}
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func filterChanges(changes []Change, prefixes ...string) []Change {
	var out []Change
	for _, c := range changes {
		for _, p := range prefixes {
			if strings.HasPrefix(c.Field, p) || c.Field == p {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
