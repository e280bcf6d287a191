// Package engine runs one factor-selection decision end to end: score the
// candidate factors, derive constraints from the request context, compile
// the clause set and enumerate every valid combination.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/abtime"
	"go.uber.org/zap"

	"github.com/ppiankov/factorwatch/internal/audit"
	"github.com/ppiankov/factorwatch/internal/compiler"
	"github.com/ppiankov/factorwatch/internal/derive"
	"github.com/ppiankov/factorwatch/internal/enumerate"
	"github.com/ppiankov/factorwatch/internal/factor"
	"github.com/ppiankov/factorwatch/internal/model"
	"github.com/ppiankov/factorwatch/internal/policy"
	"github.com/ppiankov/factorwatch/internal/rule"
	"github.com/ppiankov/factorwatch/internal/solver"
)

// Outcome classifies a decision.
type Outcome string

const (
	OutcomeSelected   Outcome = "selected"
	OutcomeNoEligible Outcome = "no_eligible_factor"
	OutcomeTruncated  Outcome = "truncated"
	OutcomeFailed     Outcome = "failed"
)

// Recorder receives one audit entry per decision.
type Recorder interface {
	Record(entry audit.Entry) error
}

// Request is one authentication attempt.
type Request struct {
	Environment model.Bundle `json:"environment,omitempty"`
	Device      model.Bundle `json:"device,omitempty"`
	Context     model.Bundle `json:"context,omitempty"`
	// Factors limits the candidates. Empty means the keys of Scores, or the
	// policy default list when Scores is empty too.
	Factors []string `json:"factors,omitempty"`
	// Scores are precomputed attribute scores. They take precedence over
	// registered providers.
	Scores map[string]model.Scores `json:"scores,omitempty"`
}

// FactorError records a provider that failed for this request.
type FactorError struct {
	Factor string `json:"factor"`
	Error  string `json:"error"`
}

// Decision is the full result of one request.
type Decision struct {
	RequestID    string                  `json:"request_id"`
	Outcome      Outcome                 `json:"outcome"`
	Factors      []string                `json:"factors"`
	Scores       map[string]model.Scores `json:"scores"`
	Constraints  model.Constraints       `json:"constraints"`
	Adjustments  []derive.Adjustment     `json:"adjustments,omitempty"`
	Eligible     []string                `json:"eligible"`
	Excluded     []model.Exclusion       `json:"excluded,omitempty"`
	FactorErrors []FactorError           `json:"factor_errors,omitempty"`
	Solutions    []model.Solution        `json:"solutions"`
	Truncated    bool                    `json:"truncated,omitempty"`
	Warnings     []string                `json:"warnings,omitempty"`
	Backend      string                  `json:"backend"`
	PolicyHash   string                  `json:"policy_hash,omitempty"`
	Elapsed      time.Duration           `json:"elapsed_ns"`
}

// Engine is immutable after New and safe for concurrent use.
type Engine struct {
	registry   *factor.Registry
	policy     *policy.PolicyConfig
	policyHash string
	rules      *rule.Set
	rulesErr   error
	deriver    *derive.Deriver
	clock      abtime.AbstractTime
	logger     *zap.Logger
	recorders  []Recorder
	newID      func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry sets the factor providers. Defaults to factor.Builtin().
func WithRegistry(r *factor.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithPolicy sets the policy and the hash recorded in audit entries.
func WithPolicy(cfg *policy.PolicyConfig, hash string) Option {
	return func(e *Engine) {
		e.policy = cfg
		e.policyHash = hash
	}
}

// WithClock sets the clock used for last-login derivation and timing.
func WithClock(c abtime.AbstractTime) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRecorder adds a decision sink. Sinks receive entries in the order
// they were added.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorders = append(e.recorders, r) }
}

// WithIDGenerator replaces the request ID source.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// New builds an engine. Invalid constraints or an unknown solver backend
// are rejected. Broken rules are not: they stay in the rule set, reject
// every factor they are evaluated against, and are reported as warnings.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = factor.Builtin()
	}
	if e.policy == nil {
		e.policy = policy.DefaultConfig()
	}
	if e.clock == nil {
		e.clock = abtime.NewRealTime()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}

	if err := e.policy.Constraints.Validate(); err != nil {
		return nil, err
	}
	if _, err := solver.New(e.policy.Solver.Backend, 0); err != nil {
		return nil, err
	}

	e.rules, e.rulesErr = e.policy.CompileRules()
	if e.rulesErr != nil {
		e.logger.Warn("policy contains broken rules; affected factors will be excluded",
			zap.Error(e.rulesErr))
	}
	e.deriver = derive.New(e.policy.Constraints, e.clock)
	return e, nil
}

// Policy returns the policy the engine was built with.
func (e *Engine) Policy() *policy.PolicyConfig { return e.policy }

// PolicyHash returns the hash recorded in audit entries.
func (e *Engine) PolicyHash() string { return e.policyHash }

// Registry returns the factor providers.
func (e *Engine) Registry() *factor.Registry { return e.registry }

// Derive computes the constraints for a request context without scoring
// or solving.
func (e *Engine) Derive(req Request) (model.Constraints, []derive.Adjustment) {
	return e.deriver.Explain(req.Environment, req.Device, req.Context)
}

// Decide runs the full pipeline. The returned Decision is nil only when the
// request itself is malformed, for example an unknown factor name.
// no_eligible_factor returns the Decision with a *model.NoEligibleFactorError.
// A solver failure returns it with a *model.SolverFailure: truncated when
// solutions were found before the failure, failed otherwise.
func (e *Engine) Decide(ctx context.Context, req Request) (*Decision, error) {
	start := e.clock.Now()
	d := &Decision{
		RequestID:  e.newID(),
		Backend:    e.backend(),
		PolicyHash: e.policyHash,
		Scores:     make(map[string]model.Scores),
	}
	log := e.logger.With(zap.String("request_id", d.RequestID))

	names, providers, err := e.candidates(req)
	if err != nil {
		log.Info("decision rejected", zap.Error(err))
		return nil, err
	}
	d.Factors = names

	for _, name := range names {
		scores, err := evaluate(providers[name], req)
		if err != nil {
			log.Warn("factor scoring failed", zap.String("factor", name), zap.Error(err))
			d.FactorErrors = append(d.FactorErrors, FactorError{Factor: name, Error: err.Error()})
			continue
		}
		d.Scores[name] = scores
	}

	d.Constraints, d.Adjustments = e.deriver.Explain(req.Environment, req.Device, req.Context)
	if e.rulesErr != nil {
		d.Warnings = append(d.Warnings, e.rulesErr.Error())
	}

	cs, err := compiler.Compile(d.Scores, d.Constraints, e.rules)
	if err != nil {
		return e.fail(log, d, start, err)
	}
	if err := e.policy.Combinations.Apply(cs); err != nil {
		return e.fail(log, d, start, err)
	}
	d.Eligible = cs.Eligible()
	d.Excluded = e.exclusions(cs, d.FactorErrors)

	if len(d.Eligible) == 0 {
		d.Outcome = OutcomeNoEligible
		return e.finish(log, d, start, &model.NoEligibleFactorError{Exclusions: d.Excluded})
	}

	solveCtx := ctx
	if t := e.policy.Solver.Timeout; t > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	res, err := enumerate.Run(solveCtx, cs, e.policy.Solver.Backend, enumerate.Options{
		MaxSolutions: e.policy.Solver.MaxSolutions,
		Backend:      d.Backend,
	})
	if err != nil {
		var sf *model.SolverFailure
		if !errors.As(err, &sf) || !sf.Truncated() {
			return e.fail(log, d, start, err)
		}
		d.Solutions = sf.Partial
		d.Truncated = true
		model.SortSolutions(d.Solutions)
		d.Outcome = OutcomeTruncated
		return e.finish(log, d, start, err)
	}

	d.Solutions = res.Solutions
	model.SortSolutions(d.Solutions)
	if len(d.Solutions) == 0 {
		// Combinations can leave eligible factors with no satisfiable subset.
		d.Outcome = OutcomeNoEligible
		return e.finish(log, d, start, &model.NoEligibleFactorError{Exclusions: d.Excluded})
	}
	d.Outcome = OutcomeSelected
	return e.finish(log, d, start, nil)
}

func (e *Engine) backend() string {
	if e.policy.Solver.Backend == "" {
		return solver.DefaultBackend
	}
	return e.policy.Solver.Backend
}

// candidates resolves the factor list of a request to providers.
func (e *Engine) candidates(req Request) ([]string, map[string]factor.Provider, error) {
	names := req.Factors
	if len(names) == 0 && len(req.Scores) > 0 {
		for name := range req.Scores {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		names = e.policy.Factors
	}

	seen := make(map[string]bool, len(names))
	var lookup []string
	providers := make(map[string]factor.Provider, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if s, ok := req.Scores[name]; ok {
			providers[name] = factor.Static(s)
			continue
		}
		lookup = append(lookup, name)
	}

	resolved, err := e.registry.Resolve(lookup)
	if err != nil {
		return nil, nil, err
	}
	for name, p := range resolved {
		providers[name] = p
	}

	out := make([]string, 0, len(providers))
	for name := range providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, providers, nil
}

// evaluate isolates a provider failure to its own factor.
func evaluate(p factor.Provider, req Request) (scores model.Scores, err error) {
	defer func() {
		if r := recover(); r != nil {
			scores, err = nil, fmt.Errorf("provider panic: %v", r)
		}
	}()
	scores, err = p.Evaluate(req.Environment, req.Device, req.Context)
	if err == nil && scores == nil {
		err = fmt.Errorf("provider returned no scores")
	}
	return scores, err
}

// exclusions merges compiler exclusions with scoring failures, sorted by factor.
func (e *Engine) exclusions(cs *compiler.ClauseSet, ferrs []FactorError) []model.Exclusion {
	out := cs.Excluded()
	for _, fe := range ferrs {
		out = append(out, model.Exclusion{Factor: fe.Factor, Reason: "scoring failed: " + fe.Error})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Factor < out[j].Factor })
	return out
}

func (e *Engine) fail(log *zap.Logger, d *Decision, start time.Time, err error) (*Decision, error) {
	d.Outcome = OutcomeFailed
	return e.finish(log, d, start, err)
}

func (e *Engine) finish(log *zap.Logger, d *Decision, start time.Time, err error) (*Decision, error) {
	d.Elapsed = e.clock.Now().Sub(start)

	fields := []zap.Field{
		zap.String("outcome", string(d.Outcome)),
		zap.Int("factors", len(d.Factors)),
		zap.Int("eligible", len(d.Eligible)),
		zap.Int("solutions", len(d.Solutions)),
		zap.Duration("elapsed", d.Elapsed),
	}
	switch d.Outcome {
	case OutcomeSelected, OutcomeNoEligible:
		log.Info("decision", fields...)
	default:
		log.Warn("decision", append(fields, zap.Error(err))...)
	}

	if len(e.recorders) > 0 {
		entry := audit.Entry{
			RequestID:   d.RequestID,
			Outcome:     string(d.Outcome),
			Factors:     d.Factors,
			Constraints: audit.ConstraintsFrom(d.Constraints),
			Excluded:    audit.ExclusionsFrom(d.Excluded),
			Solutions:   audit.SolutionsFrom(d.Solutions),
			Truncated:   d.Truncated,
			PolicyHash:  d.PolicyHash,
		}
		if err != nil && d.Outcome != OutcomeNoEligible {
			entry.Error = err.Error()
		}
		for _, r := range e.recorders {
			if rerr := r.Record(entry); rerr != nil {
				log.Error("audit record failed", zap.Error(rerr))
			}
		}
	}
	return d, err
}
