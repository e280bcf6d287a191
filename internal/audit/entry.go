package audit

import (
	"github.com/ppiankov/factorwatch/internal/model"
)

// ConstraintEntry is one derived attribute range.
type ConstraintEntry struct {
	Attribute string  `json:"attribute"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
}

// ExclusionEntry records why a factor was left out.
type ExclusionEntry struct {
	Factor string `json:"factor"`
	Reason string `json:"reason"`
}

// Entry is one line in the hash-chained JSONL decision log.
// All fields are structs or slices (no maps) to guarantee deterministic
// json.Marshal output for reproducible hashing.
type Entry struct {
	Timestamp   string            `json:"ts"`
	RequestID   string            `json:"request_id"`
	Outcome     string            `json:"outcome"`
	Factors     []string          `json:"factors"`
	Constraints []ConstraintEntry `json:"constraints"`
	Excluded    []ExclusionEntry  `json:"excluded,omitempty"`
	Solutions   [][]string        `json:"solutions"`
	Truncated   bool              `json:"truncated,omitempty"`
	Error       string            `json:"error,omitempty"`
	PolicyHash  string            `json:"policy_hash"`
	PrevHash    string            `json:"prev_hash"`
}

// ConstraintsFrom flattens constraints in attribute order.
func ConstraintsFrom(c model.Constraints) []ConstraintEntry {
	out := make([]ConstraintEntry, 0, len(c))
	for _, attr := range c.Attributes() {
		r := c[attr]
		out = append(out, ConstraintEntry{Attribute: attr, Min: r.Min, Max: r.Max})
	}
	return out
}

// ExclusionsFrom keeps factor and reason of each exclusion.
func ExclusionsFrom(ex []model.Exclusion) []ExclusionEntry {
	if len(ex) == 0 {
		return nil
	}
	out := make([]ExclusionEntry, len(ex))
	for i, e := range ex {
		out[i] = ExclusionEntry{Factor: e.Factor, Reason: e.Reason}
	}
	return out
}

// SolutionsFrom converts solutions to plain string slices.
func SolutionsFrom(sols []model.Solution) [][]string {
	out := make([][]string, len(sols))
	for i, s := range sols {
		out[i] = append([]string(nil), s...)
	}
	return out
}
