package solver

import (
	"context"

	sat "github.com/crillab/gophersat/solver"
)

// gophersatSolver keeps the clause list and rebuilds the problem on every
// Solve. gophersat simplifies unit clauses at parse time, so rebuilding is
// the straightforward way to honour clauses added between solves.
type gophersatSolver struct {
	numVars int
	clauses [][]int
	model   []bool
}

func newGophersat(numVars int) *gophersatSolver {
	return &gophersatSolver{numVars: numVars}
}

func (s *gophersatSolver) AddClause(lits ...Lit) error {
	if err := checkLits(s.numVars, lits); err != nil {
		return err
	}
	clause := make([]int, len(lits))
	for i, l := range lits {
		clause[i] = int(l)
	}
	s.clauses = append(s.clauses, clause)
	return nil
}

func (s *gophersatSolver) Solve(ctx context.Context) (bool, error) {
	s.model = nil
	if err := ctx.Err(); err != nil {
		return false, err
	}

	pb := sat.ParseSliceNb(s.clauses, s.numVars)
	sv := sat.New(pb)
	switch sv.Solve() {
	case sat.Sat:
		m := sv.Model()
		s.model = make([]bool, s.numVars)
		copy(s.model, m)
		return true, nil
	case sat.Unsat:
		return false, nil
	default:
		return false, ErrIndeterminate
	}
}

func (s *gophersatSolver) Model() ([]bool, error) {
	if s.model == nil {
		return nil, ErrNoModel
	}
	out := make([]bool, len(s.model))
	copy(out, s.model)
	return out, nil
}

func (s *gophersatSolver) Reset() {
	s.clauses = nil
	s.model = nil
}
