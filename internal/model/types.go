package model

import (
	"fmt"
	"math"
	"sort"
)

// Quality attributes scored for every authentication factor.
// The set is open: providers may emit any attribute name.
const (
	AttrSecurity      = "Security"
	AttrIntrusiveness = "Intrusiveness"
	AttrPrivacy       = "Privacy"
	AttrAccuracy      = "Accuracy"
	// Utility and Speed are scored by the modality providers only.
	AttrUtility = "Utility"
	AttrSpeed   = "Speed"
)

// Scores maps attribute name to a numeric value for one factor.
// Produced once per factor per decision; callers must not mutate it afterwards.
type Scores map[string]float64

// Clone returns an independent copy.
func (s Scores) Clone() Scores {
	if s == nil {
		return nil
	}
	out := make(Scores, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Get returns the score for attr and whether it is present.
func (s Scores) Get(attr string) (float64, bool) {
	v, ok := s[attr]
	return v, ok
}

// Range is an inclusive admissible band [Min, Max].
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// R is shorthand for Range{Min: lo, Max: hi}.
func R(lo, hi float64) Range {
	return Range{Min: lo, Max: hi}
}

// Valid reports whether the range is finite and Min <= Max.
func (r Range) Valid() bool {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) {
		return false
	}
	return r.Min <= r.Max
}

// Contains reports whether v lies inside the inclusive range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
}

// Constraints maps attribute name to its admissible range for the current decision.
// Derived fresh per request; never shared across requests.
type Constraints map[string]Range

// Clone returns an independent copy.
func (c Constraints) Clone() Constraints {
	out := make(Constraints, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Attributes returns the constrained attribute names in sorted order.
func (c Constraints) Attributes() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every range is well-formed.
// Returns a *ConfigurationError listing all malformed attributes.
func (c Constraints) Validate() error {
	var problems []string
	for _, attr := range c.Attributes() {
		r := c[attr]
		if !r.Valid() {
			problems = append(problems, fmt.Sprintf("constraint %s: malformed range %s (min must be <= max)", attr, r))
		}
	}
	if len(problems) > 0 {
		return &ConfigurationError{Source: "constraints", Problems: problems}
	}
	return nil
}

// Violation returns the first attribute (in sorted order) present in both
// scores and constraints whose score falls outside its range.
func (c Constraints) Violation(s Scores) (attr string, value float64, r Range, violated bool) {
	for _, name := range c.Attributes() {
		v, ok := s[name]
		if !ok {
			continue
		}
		rng := c[name]
		if !rng.Contains(v) {
			return name, v, rng, true
		}
	}
	return "", 0, Range{}, false
}
