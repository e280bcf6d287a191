// Package solver adapts SAT libraries to the four operations the
// enumeration engine relies on: add a clause, solve, read the model, reset.
// Every decision request creates its own instance.
package solver

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Lit is a DIMACS literal: +v selects variable v, -v negates it. Zero is invalid.
type Lit int

// Var returns the variable index of the literal.
func (l Lit) Var() int {
	if l < 0 {
		return int(-l)
	}
	return int(l)
}

// Neg returns the complementary literal.
func (l Lit) Neg() Lit { return -l }

// Clause is a disjunction of literals.
type Clause []Lit

// Solver is the external Boolean Solver collaborator. Implementations must be
// sound (no returned model violates a submitted clause) and complete (Solve
// reports false only when no assignment exists).
type Solver interface {
	// AddClause submits one clause. Clauses may be added between Solve calls.
	AddClause(lits ...Lit) error
	// Solve searches for a satisfying assignment. It returns ctx.Err() when
	// the context ends before the search completes.
	Solve(ctx context.Context) (bool, error)
	// Model returns the assignment found by the last successful Solve.
	// Index i holds the value of variable i+1.
	Model() ([]bool, error)
	// Reset drops every clause and returns the solver to its initial state.
	Reset()
}

// Backend names.
const (
	BackendGini      = "gini"
	BackendGophersat = "gophersat"
)

// DefaultBackend is used when no backend is configured.
const DefaultBackend = BackendGini

var (
	// ErrNoModel is returned by Model when the last Solve was not satisfiable.
	ErrNoModel = errors.New("no model available")
	// ErrIndeterminate is returned when the backend gives up without an answer.
	ErrIndeterminate = errors.New("solver returned indeterminate result")
)

var backends = map[string]func(numVars int) Solver{
	BackendGini:      func(n int) Solver { return newGini(n) },
	BackendGophersat: func(n int) Solver { return newGophersat(n) },
}

// New creates a fresh solver over numVars variables.
func New(backend string, numVars int) (Solver, error) {
	if backend == "" {
		backend = DefaultBackend
	}
	ctor, ok := backends[backend]
	if !ok {
		return nil, fmt.Errorf("unknown solver backend %q (available: %v)", backend, Backends())
	}
	if numVars < 0 {
		return nil, fmt.Errorf("invalid variable count %d", numVars)
	}
	return ctor(numVars), nil
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func checkLits(numVars int, lits []Lit) error {
	if len(lits) == 0 {
		return errors.New("empty clause")
	}
	for _, l := range lits {
		if l == 0 || l.Var() > numVars {
			return fmt.Errorf("literal %d out of range (1..%d)", l, numVars)
		}
	}
	return nil
}
