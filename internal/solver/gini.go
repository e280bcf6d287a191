package solver

import (
	"context"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
)

// pollInterval bounds how long a cancelled context waits before the
// running search is stopped.
const pollInterval = time.Millisecond

// giniSolver is incremental: clauses added after a Solve are kept and the
// learnt state is reused.
type giniSolver struct {
	numVars int
	g       *gini.Gini
	model   []bool
}

func newGini(numVars int) *giniSolver {
	return &giniSolver{numVars: numVars, g: gini.New()}
}

func (s *giniSolver) AddClause(lits ...Lit) error {
	if err := checkLits(s.numVars, lits); err != nil {
		return err
	}
	for _, l := range lits {
		s.g.Add(z.Dimacs2Lit(int(l)))
	}
	s.g.Add(z.LitNull)
	return nil
}

func (s *giniSolver) Solve(ctx context.Context) (bool, error) {
	s.model = nil
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var res int
	if ctx.Done() == nil {
		res = s.g.Solve()
	} else {
		var err error
		res, err = s.solveAsync(ctx)
		if err != nil {
			return false, err
		}
	}

	switch res {
	case 1:
		s.model = make([]bool, s.numVars)
		maxVar := int(s.g.MaxVar())
		for v := 1; v <= s.numVars && v <= maxVar; v++ {
			s.model[v-1] = s.g.Value(z.Var(v).Pos())
		}
		return true, nil
	case -1:
		return false, nil
	default:
		return false, ErrIndeterminate
	}
}

// solveAsync runs the search in the background so a cancelled context can
// stop it.
func (s *giniSolver) solveAsync(ctx context.Context) (int, error) {
	run := s.g.GoSolve()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if res, done := run.Test(); done {
			return res, nil
		}
		select {
		case <-ctx.Done():
			run.Stop()
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *giniSolver) Model() ([]bool, error) {
	if s.model == nil {
		return nil, ErrNoModel
	}
	out := make([]bool, len(s.model))
	copy(out, s.model)
	return out, nil
}

func (s *giniSolver) Reset() {
	s.g = gini.New()
	s.model = nil
}
