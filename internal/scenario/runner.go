package scenario

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/thejerf/abtime"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/factorwatch/internal/engine"
	"github.com/ppiankov/factorwatch/internal/factor"
	"github.com/ppiankov/factorwatch/internal/model"
	"github.com/ppiankov/factorwatch/internal/policy"
	"github.com/ppiankov/factorwatch/internal/profile"
)

// Run evaluates all cases in a scenario against the given policy.
// Each case gets its own engine, so cases are independent. reg may be nil
// for the built-in providers.
func Run(s *Scenario, cfg *policy.PolicyConfig, reg *factor.Registry) *RunResult {
	if reg == nil {
		reg = factor.Builtin()
	}
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		cr := runCase(s, c, cfg, reg)
		cr.Index = i + 1
		if cr.Name == "" {
			cr.Name = fmt.Sprintf("case %d", i+1)
		}
		if len(cr.Failures) == 0 {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}
	return result
}

func runCase(s *Scenario, c Case, cfg *policy.PolicyConfig, reg *factor.Registry) CaseResult {
	cr := CaseResult{Name: c.Name}
	fail := func(format string, args ...any) CaseResult {
		cr.Failures = append(cr.Failures, fmt.Sprintf(format, args...))
		return cr
	}

	req := engine.Request{
		Environment: c.Environment,
		Device:      c.Device,
		Context:     c.Context,
		Factors:     c.Factors,
		Scores:      c.Scores,
	}
	caseCfg := cfg

	profileName := c.Profile
	if profileName == "" {
		profileName = s.Profile
	}
	if profileName != "" {
		p, err := profile.Load(profileName)
		if err != nil {
			return fail("load profile: %v", err)
		}
		caseCfg = profile.ApplyToPolicy(p, caseCfg)
		req.Environment, req.Device, req.Context = p.Bundles(c.Environment, c.Device, c.Context)
	}

	clock := abtime.AbstractTime(abtime.NewRealTime())
	if c.Now != "" {
		now, err := time.Parse(time.RFC3339, c.Now)
		if err != nil {
			return fail("invalid now %q: %v", c.Now, err)
		}
		clock = abtime.NewManualAtTime(now)
	}

	eng, err := engine.New(engine.WithPolicy(caseCfg, ""), engine.WithRegistry(reg), engine.WithClock(clock))
	if err != nil {
		return fail("build engine: %v", err)
	}

	d, err := eng.Decide(context.Background(), req)
	if d == nil {
		cr.Outcome = "error"
		if c.ExpectOutcome != "error" {
			return fail("decide: %v", err)
		}
		return cr
	}
	cr.Outcome = string(d.Outcome)
	cr.Solutions = len(d.Solutions)

	if c.ExpectOutcome != "" && !strings.EqualFold(c.ExpectOutcome, cr.Outcome) {
		fail("outcome: expected %s, got %s (%v)", c.ExpectOutcome, cr.Outcome, err)
	}
	if c.ExpectCount != nil && *c.ExpectCount != len(d.Solutions) {
		fail("count: expected %d, got %d", *c.ExpectCount, len(d.Solutions))
	}
	if c.ExpectSolutions != nil {
		want := make([]model.Solution, len(c.ExpectSolutions))
		for i, names := range c.ExpectSolutions {
			want[i] = model.NewSolution(names...)
		}
		model.SortSolutions(want)
		if got, exp := solutionKeys(d.Solutions), solutionKeys(want); got != exp {
			fail("solutions: expected %s, got %s", exp, got)
		}
	}
	if c.ExpectExcluded != nil {
		got := make([]string, 0, len(d.Excluded))
		for _, ex := range d.Excluded {
			got = append(got, ex.Factor)
		}
		exp := append([]string(nil), c.ExpectExcluded...)
		sort.Strings(exp)
		if strings.Join(got, ",") != strings.Join(exp, ",") {
			fail("excluded: expected [%s], got [%s]", strings.Join(exp, ", "), strings.Join(got, ", "))
		}
	}
	for _, attr := range c.ExpectConstraints.Attributes() {
		want := c.ExpectConstraints[attr]
		if got, ok := d.Constraints[attr]; !ok || got != want {
			fail("constraint %s: expected %s, got %s", attr, want, got)
		}
	}
	return cr
}

func solutionKeys(sols []model.Solution) string {
	parts := make([]string, len(sols))
	for i, s := range sols {
		parts[i] = s.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Load reads one scenario YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadAndRun loads a scenario YAML file and the policy, then runs it with
// the built-in providers.
func LoadAndRun(path, policyPath string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}

	cfg, err := policy.LoadConfig(policyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	result := Run(s, cfg, nil)
	result.File = path

	return result, nil
}
