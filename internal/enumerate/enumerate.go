// Package enumerate produces every satisfying factor subset of a compiled
// clause set by repeatedly solving and blocking the model just found.
package enumerate

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/ppiankov/factorwatch/internal/compiler"
	"github.com/ppiankov/factorwatch/internal/model"
	"github.com/ppiankov/factorwatch/internal/solver"
)

// Options bounds one enumeration.
type Options struct {
	// MaxSolutions stops enumeration once this many solutions were emitted
	// and at least one more exists. Zero means unbounded.
	MaxSolutions int
	// Backend labels solver failures. It does not select the solver.
	Backend string
}

// Result is a completed or truncated enumeration.
type Result struct {
	Solutions []model.Solution
	Truncated bool
}

var (
	errDuplicate = errors.New("solver returned an already emitted solution")
	errUnsound   = errors.New("solver returned a model violating the clause set")
)

// Enumerator walks the solution space of one clause set. It is not safe for
// concurrent use and cannot be restarted; build a new one per request.
type Enumerator struct {
	cs      *compiler.ClauseSet
	s       solver.Solver
	opts    Options
	started bool
	done    bool
	err     error
	seen    map[string]struct{}
	emitted []model.Solution
}

// New prepares an enumerator. s must be a fresh solver over cs.NumVars()
// variables owned by the caller's request.
func New(cs *compiler.ClauseSet, s solver.Solver, opts Options) *Enumerator {
	return &Enumerator{
		cs:   cs,
		s:    s,
		opts: opts,
		seen: make(map[string]struct{}),
	}
}

// Run enumerates cs with a new solver from the named backend.
func Run(ctx context.Context, cs *compiler.ClauseSet, backend string, opts Options) (Result, error) {
	s, err := solver.New(backend, cs.NumVars())
	if err != nil {
		return Result{}, err
	}
	if opts.Backend == "" {
		opts.Backend = backend
		if backend == "" {
			opts.Backend = solver.DefaultBackend
		}
	}
	return New(cs, s, opts).All(ctx)
}

// Next returns the next solution. ok is false once the space is exhausted or
// after a failure, which is returned as a *model.SolverFailure.
func (e *Enumerator) Next(ctx context.Context) (model.Solution, bool, error) {
	if e.done {
		return nil, false, e.err
	}
	if !e.started {
		e.started = true
		if e.cs.NumVars() == 0 {
			return e.finish(nil)
		}
		for _, c := range e.cs.Clauses() {
			if err := e.s.AddClause(c...); err != nil {
				return e.finish(fmt.Errorf("submit clause %v: %w", c, err))
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return e.finish(err)
	}

	ok, err := e.s.Solve(ctx)
	if err != nil {
		return e.finish(err)
	}
	if !ok {
		return e.finish(nil)
	}
	if e.opts.MaxSolutions > 0 && len(e.emitted) >= e.opts.MaxSolutions {
		// Another solution exists beyond the cap.
		return e.finish(fmt.Errorf("%w (%d)", model.ErrSolutionBudget, e.opts.MaxSolutions))
	}

	assignment, err := e.s.Model()
	if err != nil {
		return e.finish(err)
	}
	if !e.cs.Satisfied(assignment) {
		return e.finish(errUnsound)
	}

	sol := e.cs.Selected(assignment)
	key := sol.Key()
	if _, dup := e.seen[key]; dup {
		return e.finish(fmt.Errorf("%w: %v", errDuplicate, sol))
	}
	e.seen[key] = struct{}{}
	e.emitted = append(e.emitted, sol)

	// Block the full assignment. Negating only the true literals would also
	// forbid every superset of sol.
	block := make(solver.Clause, len(assignment))
	for i, val := range assignment {
		v := solver.Lit(i + 1)
		if val {
			block[i] = v.Neg()
		} else {
			block[i] = v
		}
	}
	if err := e.s.AddClause(block...); err != nil {
		return e.finish(fmt.Errorf("add blocking clause: %w", err))
	}

	return sol, true, nil
}

func (e *Enumerator) finish(cause error) (model.Solution, bool, error) {
	e.done = true
	if cause != nil {
		partial := make([]model.Solution, len(e.emitted))
		copy(partial, e.emitted)
		e.err = &model.SolverFailure{Backend: e.opts.Backend, Cause: cause, Partial: partial}
	}
	return nil, false, e.err
}

// Seq returns the remaining solutions as a lazy sequence. A failure is
// yielded once with a nil solution and ends the sequence.
func (e *Enumerator) Seq(ctx context.Context) iter.Seq2[model.Solution, error] {
	return func(yield func(model.Solution, error) bool) {
		for {
			sol, ok, err := e.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok || !yield(sol, nil) {
				return
			}
		}
	}
}

// All drains the enumerator. On failure the partial solutions are kept in
// the Result with Truncated set, and the *model.SolverFailure is returned.
func (e *Enumerator) All(ctx context.Context) (Result, error) {
	var res Result
	for sol, err := range e.Seq(ctx) {
		if err != nil {
			res.Truncated = true
			return res, err
		}
		res.Solutions = append(res.Solutions, sol)
	}
	return res, nil
}

// Emitted returns the solutions produced so far.
func (e *Enumerator) Emitted() []model.Solution {
	out := make([]model.Solution, len(e.emitted))
	copy(out, e.emitted)
	return out
}
