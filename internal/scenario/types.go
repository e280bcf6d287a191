package scenario

import "github.com/ppiankov/factorwatch/internal/model"

// Case is one decision under test.
type Case struct {
	Name        string                  `yaml:"name"`
	Profile     string                  `yaml:"profile,omitempty"`
	Environment model.Bundle            `yaml:"environment,omitempty"`
	Device      model.Bundle            `yaml:"device,omitempty"`
	Context     model.Bundle            `yaml:"context,omitempty"`
	Factors     []string                `yaml:"factors,omitempty"`
	Scores      map[string]model.Scores `yaml:"scores,omitempty"`
	// Now pins the clock (RFC3339) so last-login derivation is reproducible.
	Now string `yaml:"now,omitempty"`

	ExpectOutcome     string            `yaml:"expect_outcome,omitempty"`
	ExpectSolutions   [][]string        `yaml:"expect_solutions,omitempty"`
	ExpectCount       *int              `yaml:"expect_count,omitempty"`
	ExpectExcluded    []string          `yaml:"expect_excluded,omitempty"`
	ExpectConstraints model.Constraints `yaml:"expect_constraints,omitempty"`
}

// Scenario is a named collection of decision test cases.
type Scenario struct {
	Name    string `yaml:"name"`
	Profile string `yaml:"profile,omitempty"`
	Cases   []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index     int      `json:"index"`
	Name      string   `json:"name"`
	Passed    bool     `json:"passed"`
	Outcome   string   `json:"outcome"`
	Solutions int      `json:"solutions"`
	Failures  []string `json:"failures,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
