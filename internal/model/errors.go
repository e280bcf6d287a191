package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSolutionBudget is returned when enumeration stops at the configured
// solution cap.
var ErrSolutionBudget = errors.New("solution budget exhausted")

// ErrUnknownFactor is returned when a factor name has no registered provider.
var ErrUnknownFactor = errors.New("unknown factor")

// ConfigurationError reports malformed rules, unknown operators or
// malformed attribute ranges. The affected rule or factor is excluded,
// never silently defaulted.
type ConfigurationError struct {
	Source   string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("configuration error in %s: %s", e.Source, e.Problems[0])
	}
	return fmt.Sprintf("configuration error in %s: %d problems: %s",
		e.Source, len(e.Problems), strings.Join(e.Problems, "; "))
}

// Exclusion explains why one factor was forced out of every solution.
type Exclusion struct {
	Factor    string  `json:"factor"`
	Reason    string  `json:"reason"`
	Attribute string  `json:"attribute,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Rule      string  `json:"rule,omitempty"`
}

// NoEligibleFactorError is the distinct empty-result case: every factor was
// eliminated by per-factor checks before enumeration.
type NoEligibleFactorError struct {
	Exclusions []Exclusion
}

func (e *NoEligibleFactorError) Error() string {
	return fmt.Sprintf("no eligible factor: all %d factors excluded", len(e.Exclusions))
}

// SolverFailure reports a solver error or an exhausted time/iteration budget.
// It is distinct from "no solutions exist". Partial holds the solutions
// gathered before the failure.
type SolverFailure struct {
	Backend string
	Cause   error
	Partial []Solution
}

func (e *SolverFailure) Error() string {
	return fmt.Sprintf("solver failure (%s) after %d solutions: %v", e.Backend, len(e.Partial), e.Cause)
}

func (e *SolverFailure) Unwrap() error { return e.Cause }

// Truncated reports whether partial results were gathered.
func (e *SolverFailure) Truncated() bool {
	return len(e.Partial) > 0
}
