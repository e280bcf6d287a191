// Package policydiff compares two selection policies and labels each range
// change as stricter or looser.
package policydiff

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ppiankov/factorwatch/internal/alert"
	"github.com/ppiankov/factorwatch/internal/model"
	"github.com/ppiankov/factorwatch/internal/policy"
	"github.com/ppiankov/factorwatch/internal/rule"
)

// Change represents a scalar field change.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// RuleChange represents a rule addition, removal, or modification.
type RuleChange struct {
	Type string `json:"type"` // "added", "removed", "changed"
	Rule string `json:"rule"`
}

// DiffResult holds the comparison of two PolicyConfigs.
type DiffResult struct {
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	Changes     []Change     `json:"changes"`
	RuleChanges []RuleChange `json:"rule_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// Diff compares two PolicyConfigs and returns the differences.
func Diff(old, new *policy.PolicyConfig) *DiffResult {
	r := &DiffResult{}
	oc, nc := old.Constraints, new.Constraints

	diffConstraints(r, "constraints.base", oc.Base, nc.Base)

	if oc.FailedAttemptsAbove != nc.FailedAttemptsAbove {
		r.Changes = append(r.Changes, Change{
			Field:   "constraints.failed_attempts_above",
			Old:     fmt.Sprintf("%d", oc.FailedAttemptsAbove),
			New:     fmt.Sprintf("%d", nc.FailedAttemptsAbove),
			Comment: lowerIsStricter(oc.FailedAttemptsAbove, nc.FailedAttemptsAbove),
		})
	}
	diffConstraints(r, "constraints.failed_attempts", oc.FailedAttempts, nc.FailedAttempts)

	if oc.HighRatingValue != nc.HighRatingValue {
		r.Changes = append(r.Changes, Change{
			Field: "constraints.high_rating_value",
			Old:   oc.HighRatingValue,
			New:   nc.HighRatingValue,
		})
	}
	diffConstraints(r, "constraints.high_rating", oc.HighRating, nc.HighRating)

	if oc.RecentLoginHours != nc.RecentLoginHours {
		r.Changes = append(r.Changes, Change{
			Field: "constraints.recent_login_hours",
			Old:   fmt.Sprintf("%g", oc.RecentLoginHours),
			New:   fmt.Sprintf("%g", nc.RecentLoginHours),
		})
	}
	diffRange(r, "constraints.recent_login", oc.RecentLogin, nc.RecentLogin)
	diffRange(r, "constraints.stale_login", oc.StaleLogin, nc.StaleLogin)

	if old.Solver.Backend != new.Solver.Backend {
		r.Changes = append(r.Changes, Change{Field: "solver.backend", Old: old.Solver.Backend, New: new.Solver.Backend})
	}
	if old.Solver.MaxSolutions != new.Solver.MaxSolutions {
		r.Changes = append(r.Changes, Change{
			Field: "solver.max_solutions",
			Old:   fmt.Sprintf("%d", old.Solver.MaxSolutions),
			New:   fmt.Sprintf("%d", new.Solver.MaxSolutions),
		})
	}
	if old.Solver.Timeout != new.Solver.Timeout {
		r.Changes = append(r.Changes, Change{
			Field: "solver.timeout",
			Old:   old.Solver.Timeout.String(),
			New:   new.Solver.Timeout.String(),
		})
	}

	diffRules(r, old.Rules, new.Rules)

	diffSet(r, "factors", old.Factors, new.Factors)
	diffSet(r, "combinations.requires", pairLabels(old.Combinations.Requires, "requires"), pairLabels(new.Combinations.Requires, "requires"))
	diffSet(r, "combinations.excludes", pairLabels(old.Combinations.Excludes, "excludes"), pairLabels(new.Combinations.Excludes, "excludes"))
	diffSet(r, "alerts", alertLabels(old.Alerts), alertLabels(new.Alerts))

	r.HasChanges = len(r.Changes) > 0 || len(r.RuleChanges) > 0
	return r
}

func diffConstraints(r *DiffResult, section string, old, new model.Constraints) {
	attrs := map[string]bool{}
	for a := range old {
		attrs[a] = true
	}
	for a := range new {
		attrs[a] = true
	}
	for _, attr := range slices.Sorted(maps.Keys(attrs)) {
		o, hadOld := old[attr]
		n, hasNew := new[attr]
		field := section + "." + attr
		switch {
		case !hadOld:
			r.Changes = append(r.Changes, Change{Field: field, New: n.String(), Comment: "added"})
		case !hasNew:
			r.Changes = append(r.Changes, Change{Field: field, Old: o.String(), Comment: "removed"})
		default:
			diffRange(r, field, o, n)
		}
	}
}

func diffRange(r *DiffResult, field string, old, new model.Range) {
	if old == new {
		return
	}
	r.Changes = append(r.Changes, Change{
		Field:   field,
		Old:     old.String(),
		New:     new.String(),
		Comment: rangeComment(old, new),
	})
}

// rangeComment calls a narrower range stricter and a wider one looser.
func rangeComment(old, new model.Range) string {
	switch {
	case new.Min >= old.Min && new.Max <= old.Max:
		return "stricter"
	case new.Min <= old.Min && new.Max >= old.Max:
		return "looser"
	}
	return "shifted"
}

func lowerIsStricter(old, new int) string {
	if new < old {
		return "stricter"
	}
	return "looser"
}

func ruleKey(r rule.Rule) string {
	if r.Name != "" {
		return r.Name
	}
	return r.Condition
}

func ruleLabel(r rule.Rule) string {
	var parts []string
	for _, attr := range slices.Sorted(maps.Keys(r.Constraints)) {
		parts = append(parts, attr+" "+r.Constraints[attr])
	}
	cond := r.Condition
	if cond == "" {
		cond = "always"
	}
	label := fmt.Sprintf("if %s then %s", cond, strings.Join(parts, ", "))
	if r.Name != "" {
		label = r.Name + ": " + label
	}
	return label
}

func diffRules(r *DiffResult, oldRules, newRules []rule.Rule) {
	oldMap := make(map[string]rule.Rule)
	for _, ru := range oldRules {
		oldMap[ruleKey(ru)] = ru
	}
	newMap := make(map[string]rule.Rule)
	for _, ru := range newRules {
		newMap[ruleKey(ru)] = ru
	}

	for _, ru := range newRules {
		if oldRule, exists := oldMap[ruleKey(ru)]; exists {
			if ruleLabel(oldRule) != ruleLabel(ru) {
				r.RuleChanges = append(r.RuleChanges, RuleChange{
					Type: "changed",
					Rule: fmt.Sprintf("%s (was: %s)", ruleLabel(ru), ruleLabel(oldRule)),
				})
			}
			continue
		}
		r.RuleChanges = append(r.RuleChanges, RuleChange{Type: "added", Rule: ruleLabel(ru)})
	}

	for _, ru := range oldRules {
		if _, exists := newMap[ruleKey(ru)]; !exists {
			r.RuleChanges = append(r.RuleChanges, RuleChange{Type: "removed", Rule: ruleLabel(ru)})
		}
	}
}

func diffSet(r *DiffResult, section string, oldKeys, newKeys []string) {
	oldSet := make(map[string]bool)
	for _, k := range oldKeys {
		oldSet[k] = true
	}
	newSet := make(map[string]bool)
	for _, k := range newKeys {
		newSet[k] = true
	}

	for _, k := range newKeys {
		if !oldSet[k] {
			r.Changes = append(r.Changes, Change{Field: section, New: k, Comment: "added"})
		}
	}
	for _, k := range oldKeys {
		if !newSet[k] {
			r.Changes = append(r.Changes, Change{Field: section, Old: k, Comment: "removed"})
		}
	}
}

// alertLabels identifies a webhook by URL, format and events; header
// values are left out so secrets never reach diff output.
func alertLabels(alerts []alert.Config) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		format := a.Format
		if format == "" {
			format = "generic"
		}
		out[i] = fmt.Sprintf("%s (%s) on %s", a.URL, format, strings.Join(a.Events, ","))
	}
	return out
}

func pairLabels(pairs []policy.Pair, verb string) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.A + " " + verb + " " + p.B
	}
	return out
}
