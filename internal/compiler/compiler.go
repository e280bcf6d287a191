// Package compiler turns attribute constraints and rule outcomes into CNF
// clauses over one selection variable per factor.
//
// Each factor is constrained independently by unit clauses. The only clause
// relating factors in the base design is the global at-least-one clause;
// Require and Exclude add further cross-factor clauses without changing how
// solutions are enumerated.
package compiler

import (
	"fmt"
	"io"
	"sort"

	"github.com/ppiankov/factorwatch/internal/model"
	"github.com/ppiankov/factorwatch/internal/rule"
	"github.com/ppiankov/factorwatch/internal/solver"
)

// ClauseSet is the compiled boolean constraint set for one decision.
type ClauseSet struct {
	names      []string // variable v is names[v-1]
	vars       map[string]solver.Lit
	clauses    []solver.Clause
	exclusions map[string]model.Exclusion
}

// Compile builds the clause set for factors under the given constraints and rules.
// A malformed constraint aborts compilation with a *model.ConfigurationError.
// rules may be nil.
func Compile(factors map[string]model.Scores, constraints model.Constraints, rules *rule.Set) (*ClauseSet, error) {
	if err := constraints.Validate(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(factors))
	for name := range factors {
		names = append(names, name)
	}
	sort.Strings(names)

	cs := &ClauseSet{
		names:      names,
		vars:       make(map[string]solver.Lit, len(names)),
		exclusions: make(map[string]model.Exclusion),
	}
	for i, name := range names {
		cs.vars[name] = solver.Lit(i + 1)
	}

	for _, name := range names {
		v := cs.vars[name]
		scores := factors[name]

		// Step 1: attribute ranges. First violation is sufficient.
		if attr, val, r, violated := constraints.Violation(scores); violated {
			cs.exclude(v, model.Exclusion{
				Factor:    name,
				Reason:    fmt.Sprintf("%s=%g outside %s", attr, val, r),
				Attribute: attr,
				Value:     val,
			})
			continue
		}

		// Step 2: activated rules.
		if r, reason, rejected := rules.Reject(scores); rejected {
			cs.exclude(v, model.Exclusion{
				Factor: name,
				Reason: fmt.Sprintf("rule %s: %s", r.Name, reason),
				Rule:   r.Name,
			})
		}
	}

	// Step 3: at least one factor must be selected.
	atLeastOne := make(solver.Clause, len(names))
	for i := range names {
		atLeastOne[i] = solver.Lit(i + 1)
	}
	cs.clauses = append(cs.clauses, atLeastOne)

	return cs, nil
}

func (cs *ClauseSet) exclude(v solver.Lit, ex model.Exclusion) {
	cs.clauses = append(cs.clauses, solver.Clause{v.Neg()})
	cs.exclusions[ex.Factor] = ex
}

// Require adds "if a is selected then b is selected" as (-a v b).
func (cs *ClauseSet) Require(a, b string) error {
	va, vb, err := cs.pair(a, b)
	if err != nil {
		return err
	}
	cs.clauses = append(cs.clauses, solver.Clause{va.Neg(), vb})
	return nil
}

// Exclude adds "a and b are never selected together" as (-a v -b).
func (cs *ClauseSet) Exclude(a, b string) error {
	va, vb, err := cs.pair(a, b)
	if err != nil {
		return err
	}
	cs.clauses = append(cs.clauses, solver.Clause{va.Neg(), vb.Neg()})
	return nil
}

// Forbid excludes a factor after compilation, for example when a factor it
// requires is unavailable. An already excluded factor keeps its first reason.
func (cs *ClauseSet) Forbid(name, reason string) error {
	v, ok := cs.vars[name]
	if !ok {
		return &model.ConfigurationError{Source: "combinations", Problems: []string{fmt.Sprintf("unknown factor %q", name)}}
	}
	if _, done := cs.exclusions[name]; done {
		return nil
	}
	cs.exclude(v, model.Exclusion{Factor: name, Reason: reason})
	return nil
}

func (cs *ClauseSet) pair(a, b string) (solver.Lit, solver.Lit, error) {
	va, ok := cs.vars[a]
	if !ok {
		return 0, 0, &model.ConfigurationError{Source: "combinations", Problems: []string{fmt.Sprintf("unknown factor %q", a)}}
	}
	vb, ok := cs.vars[b]
	if !ok {
		return 0, 0, &model.ConfigurationError{Source: "combinations", Problems: []string{fmt.Sprintf("unknown factor %q", b)}}
	}
	if a == b {
		return 0, 0, &model.ConfigurationError{Source: "combinations", Problems: []string{fmt.Sprintf("factor %q paired with itself", a)}}
	}
	return va, vb, nil
}

// NumVars returns the number of selection variables.
func (cs *ClauseSet) NumVars() int { return len(cs.names) }

// Clauses returns a copy of the clause list.
func (cs *ClauseSet) Clauses() []solver.Clause {
	out := make([]solver.Clause, len(cs.clauses))
	for i, c := range cs.clauses {
		out[i] = append(solver.Clause(nil), c...)
	}
	return out
}

// Var returns the selection variable of a factor.
func (cs *ClauseSet) Var(name string) (solver.Lit, bool) {
	v, ok := cs.vars[name]
	return v, ok
}

// Name returns the factor behind selection variable v.
func (cs *ClauseSet) Name(v int) string {
	if v < 1 || v > len(cs.names) {
		return ""
	}
	return cs.names[v-1]
}

// Factors returns every factor name in variable order.
func (cs *ClauseSet) Factors() []string {
	return append([]string(nil), cs.names...)
}

// IsExcluded reports whether name was rejected by a per-factor check or Forbid.
func (cs *ClauseSet) IsExcluded(name string) bool {
	_, ok := cs.exclusions[name]
	return ok
}

// Eligible returns factors that passed every per-factor check, sorted.
func (cs *ClauseSet) Eligible() []string {
	var out []string
	for _, name := range cs.names {
		if _, excluded := cs.exclusions[name]; !excluded {
			out = append(out, name)
		}
	}
	return out
}

// Excluded returns the exclusion record of every rejected factor, sorted by name.
func (cs *ClauseSet) Excluded() []model.Exclusion {
	out := make([]model.Exclusion, 0, len(cs.exclusions))
	for _, name := range cs.names {
		if ex, ok := cs.exclusions[name]; ok {
			out = append(out, ex)
		}
	}
	return out
}

// Selected maps a solver model to the names of selected factors.
func (cs *ClauseSet) Selected(assignment []bool) model.Solution {
	var names []string
	for i, val := range assignment {
		if val && i < len(cs.names) {
			names = append(names, cs.names[i])
		}
	}
	return model.NewSolution(names...)
}

// Satisfied reports whether assignment satisfies every clause.
func (cs *ClauseSet) Satisfied(assignment []bool) bool {
	for _, c := range cs.clauses {
		ok := false
		for _, l := range c {
			v := l.Var()
			if v > len(assignment) {
				continue
			}
			if assignment[v-1] == (l > 0) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// WriteDIMACS writes the clause set in DIMACS CNF with a comment line per variable.
func (cs *ClauseSet) WriteDIMACS(w io.Writer) error {
	for i, name := range cs.names {
		if _, err := fmt.Fprintf(w, "c %d %s\n", i+1, name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "p cnf %d %d\n", len(cs.names), len(cs.clauses)); err != nil {
		return err
	}
	for _, c := range cs.clauses {
		for _, l := range c {
			if _, err := fmt.Fprintf(w, "%d ", l); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, "0"); err != nil {
			return err
		}
	}
	return nil
}
