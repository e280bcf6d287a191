package rule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/factorwatch/internal/model"
)

// Rule is a conditional eligibility clause layered on top of range constraints.
// When Condition holds for a factor, every entry in Constraints must hold too,
// or the factor is rejected. Constraint values are comparison suffixes applied
// to their attribute key, e.g. Accuracy: ">= 7".
// An empty Condition activates the rule unconditionally.
type Rule struct {
	Name        string            `yaml:"name,omitempty" json:"name,omitempty"`
	Condition   string            `yaml:"condition" json:"condition"`
	Constraints map[string]string `yaml:"constraints" json:"constraints"`
}

// Constraint is one compiled attribute requirement of a rule.
type Constraint struct {
	Attribute string
	Source    string
	Expr      Expression
	Err       error
}

// Compiled is a parsed rule. Parse failures are kept on the rule so it
// fails closed instead of being dropped.
type Compiled struct {
	Name        string
	Source      Rule
	Condition   Expression
	CondErr     error
	Constraints []Constraint
}

// Broken reports whether any part of the rule failed to parse.
func (r *Compiled) Broken() bool {
	if r.CondErr != nil {
		return true
	}
	for _, c := range r.Constraints {
		if c.Err != nil {
			return true
		}
	}
	return false
}

// Activate reports whether the rule applies to a factor with these scores.
// A rule whose condition failed to parse always activates.
func (r *Compiled) Activate(s model.Scores) bool {
	if r.CondErr != nil {
		return true
	}
	return r.Condition.Eval(s)
}

// Check reports whether every constraint holds. Only meaningful when the
// rule is activated. Broken parts never hold.
func (r *Compiled) Check(s model.Scores) bool {
	_, ok := r.firstFailure(s)
	return ok
}

func (r *Compiled) firstFailure(s model.Scores) (string, bool) {
	if r.CondErr != nil {
		return "condition is malformed", false
	}
	for _, c := range r.Constraints {
		if c.Err != nil {
			return fmt.Sprintf("constraint on %s is malformed", c.Attribute), false
		}
		if !c.Expr.Eval(s) {
			return fmt.Sprintf("%s %s not satisfied", c.Attribute, c.Source), false
		}
	}
	return "", true
}

// Set is an ordered list of compiled rules.
type Set struct {
	Rules []*Compiled
}

// Len returns the number of rules, broken ones included.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rules)
}

// Reject returns the first activated rule whose constraints fail for these
// scores, with a human-readable reason.
func (s *Set) Reject(scores model.Scores) (*Compiled, string, bool) {
	if s == nil {
		return nil, "", false
	}
	for _, r := range s.Rules {
		if !r.Activate(scores) {
			continue
		}
		if reason, ok := r.firstFailure(scores); !ok {
			return r, reason, true
		}
	}
	return nil, "", false
}

// Compile parses an ordered rule list. The returned Set is always usable:
// malformed rules stay in it and fail closed. Their problems are reported
// together as a *model.ConfigurationError.
func Compile(rules []Rule) (*Set, error) {
	set := &Set{Rules: make([]*Compiled, 0, len(rules))}
	var problems []string

	for i, r := range rules {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rules[%d]", i)
		}
		c := &Compiled{Name: name, Source: r}

		if strings.TrimSpace(r.Condition) != "" {
			c.Condition, c.CondErr = Parse(r.Condition)
			if c.CondErr != nil {
				problems = append(problems, fmt.Sprintf("%s: condition: %v", name, c.CondErr))
			}
		}

		attrs := make([]string, 0, len(r.Constraints))
		for attr := range r.Constraints {
			attrs = append(attrs, attr)
		}
		sort.Strings(attrs)

		for _, attr := range attrs {
			src := r.Constraints[attr]
			con := Constraint{Attribute: attr, Source: strings.TrimSpace(src)}
			con.Expr, con.Err = parseConstraint(attr, src)
			if con.Err != nil {
				problems = append(problems, fmt.Sprintf("%s: constraint %s: %v", name, attr, con.Err))
			}
			c.Constraints = append(c.Constraints, con)
		}

		set.Rules = append(set.Rules, c)
	}

	if len(problems) > 0 {
		return set, &model.ConfigurationError{Source: "rules", Problems: problems}
	}
	return set, nil
}

// parseConstraint applies a comparison suffix such as ">= 7" to attr.
func parseConstraint(attr, suffix string) (Expression, error) {
	if !isIdent(attr) || strings.EqualFold(attr, "and") {
		return Expression{}, fmt.Errorf("invalid attribute name %q", attr)
	}
	if strings.TrimSpace(suffix) == "" {
		return Expression{}, fmt.Errorf("empty comparison")
	}
	expr, err := Parse(attr + " " + suffix)
	if err != nil {
		return Expression{}, err
	}
	return expr, nil
}
