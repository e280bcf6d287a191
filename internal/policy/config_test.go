package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-test/deep"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/factorwatch/internal/compiler"
	"github.com/ppiankov/factorwatch/internal/enumerate"
	"github.com/ppiankov/factorwatch/internal/model"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Constraints.Base[model.AttrSecurity] != model.R(6, 10) {
		t.Errorf("expected base Security [6, 10], got %s", cfg.Constraints.Base[model.AttrSecurity])
	}
	if cfg.Constraints.FailedAttemptsAbove != 2 {
		t.Errorf("expected FailedAttemptsAbove=2, got %d", cfg.Constraints.FailedAttemptsAbove)
	}
	if len(cfg.Rules) != 0 {
		t.Errorf("expected no default rules, got %d", len(cfg.Rules))
	}
	if len(cfg.Factors) != 9 {
		t.Errorf("expected 9 default factors, got %d", len(cfg.Factors))
	}
	if cfg.Solver.Backend != "gini" {
		t.Errorf("expected backend=gini, got %s", cfg.Solver.Backend)
	}
	if cfg.Solver.MaxSolutions != 4096 {
		t.Errorf("expected MaxSolutions=4096, got %d", cfg.Solver.MaxSolutions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to validate, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/policy.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Solver.Backend != "gini" {
		t.Errorf("expected default backend, got %s", cfg.Solver.Backend)
	}
}

func TestLoadConfigEmptyPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error for empty path, got %v", err)
	}
	if len(cfg.Factors) != 9 {
		t.Errorf("expected default factors, got %v", cfg.Factors)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")

	content := `
constraints:
  base:
    Security: {min: 7, max: 10}
rules:
  - name: intrusive-needs-accuracy
    condition: "Intrusiveness >= 3"
    constraints:
      Accuracy: ">= 7"
combinations:
  requires:
    - {a: facial_recognition, b: password}
factors: [password, fingerprint, facial_recognition]
solver:
  backend: gophersat
  max_solutions: 10
  timeout: 250ms
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Constraints.Base[model.AttrSecurity] != model.R(7, 10) {
		t.Errorf("expected Security [7, 10], got %s", cfg.Constraints.Base[model.AttrSecurity])
	}
	// Unspecified base ranges keep their defaults.
	if cfg.Constraints.Base[model.AttrPrivacy] != model.R(5, 10) {
		t.Errorf("expected default Privacy [5, 10], got %s", cfg.Constraints.Base[model.AttrPrivacy])
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].Constraints[model.AttrAccuracy] != ">= 7" {
		t.Fatalf("unexpected rules %+v", cfg.Rules)
	}
	if diff := deep.Equal(cfg.Combinations.Requires, []Pair{{A: "facial_recognition", B: "password"}}); diff != nil {
		t.Errorf("combinations differ: %v", diff)
	}
	if len(cfg.Factors) != 3 {
		t.Errorf("expected 3 factors, got %v", cfg.Factors)
	}
	if cfg.Solver.Backend != "gophersat" || cfg.Solver.MaxSolutions != 10 || cfg.Solver.Timeout != 250*time.Millisecond {
		t.Errorf("unexpected solver config %+v", cfg.Solver)
	}
}

func TestLoadConfigJSONRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	content := `{"rules": [{"condition": "scores['Security'] >= 8", "constraints": {"Privacy": ">= 6"}}]}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load JSON rules: %v", err)
	}
	set, err := cfg.CompileRules()
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != 1 {
		t.Errorf("expected 1 rule, got %d", set.Len())
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")

	if err := os.WriteFile(path, []byte("{{invalid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(path)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadConfigInvalidPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `
constraints:
  base:
    Security: {min: 10, max: 6}
rules:
  - condition: "Security != 8"
solver:
  backend: minisat
  max_solutions: -1
combinations:
  excludes:
    - {a: password, b: password}
factors: [password, password]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(path)
	var cfgErr *model.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if len(cfgErr.Problems) != 6 {
		t.Errorf("expected 6 problems, got %d: %v", len(cfgErr.Problems), cfgErr.Problems)
	}
	for _, want := range []string{"constraints:", "rules:", "solver:", "combinations.excludes[0]", "factors:"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got %v", want, err)
		}
	}
}

func TestLoadConfigWithHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte("factors: [password]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, h1, err := LoadConfigWithHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(h1, "sha256:") || len(h1) != len("sha256:")+64 {
		t.Errorf("unexpected hash format %q", h1)
	}

	if err := os.WriteFile(path, []byte("factors: [fingerprint]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, h2, _ := LoadConfigWithHash(path)
	if h1 == h2 {
		t.Error("expected hash to change with file content")
	}

	_, missing, err := LoadConfigWithHash(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if missing != "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("expected empty-input hash for missing file, got %s", missing)
	}
}

func TestDefaultConfigYAMLRoundTrip(t *testing.T) {
	yamlStr := DefaultConfigYAML()

	var parsed PolicyConfig
	if err := yaml.Unmarshal([]byte(yamlStr), &parsed); err != nil {
		t.Fatalf("failed to parse DefaultConfigYAML: %v", err)
	}

	defaults := DefaultConfig()
	if diff := deep.Equal(parsed.Constraints, defaults.Constraints); diff != nil {
		t.Errorf("constraints mismatch: %v", diff)
	}
	if diff := deep.Equal(parsed.Factors, defaults.Factors); diff != nil {
		t.Errorf("factors mismatch: %v", diff)
	}
	if parsed.Solver != defaults.Solver {
		t.Errorf("solver mismatch: parsed=%+v, default=%+v", parsed.Solver, defaults.Solver)
	}
	if len(parsed.Rules) != 0 {
		t.Errorf("expected no rules, got %d", len(parsed.Rules))
	}
}

func TestCombinationsApply(t *testing.T) {
	factors := map[string]model.Scores{
		"a": {model.AttrSecurity: 8},
		"b": {model.AttrSecurity: 8},
		"c": {model.AttrSecurity: 8},
	}
	cs, err := compiler.Compile(factors, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	combos := Combinations{
		Requires: []Pair{{A: "a", B: "b"}},
		Excludes: []Pair{{A: "b", B: "c"}},
	}
	if err := combos.Apply(cs); err != nil {
		t.Fatal(err)
	}

	res, err := enumerate.Run(context.Background(), cs, "", enumerate.Options{})
	if err != nil {
		t.Fatal(err)
	}
	model.SortSolutions(res.Solutions)
	want := []model.Solution{{"b"}, {"c"}, {"a", "b"}}
	if diff := deep.Equal(res.Solutions, want); diff != nil {
		t.Errorf("solutions differ: %v", diff)
	}
}

func TestCombinationsWithAbsentFactors(t *testing.T) {
	cs, err := compiler.Compile(map[string]model.Scores{
		"a": {model.AttrSecurity: 8},
		"b": {model.AttrSecurity: 8},
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	combos := Combinations{
		Requires: []Pair{{A: "a", B: "missing"}, {A: "missing", B: "b"}},
		Excludes: []Pair{{A: "b", B: "missing"}},
	}
	if err := combos.Apply(cs); err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(cs.Eligible(), []string{"b"}); diff != nil {
		t.Errorf("expected only b eligible: %v", diff)
	}
	ex := cs.Excluded()
	if len(ex) != 1 || !strings.Contains(ex[0].Reason, "requires missing") {
		t.Errorf("unexpected exclusions %+v", ex)
	}
}

func TestLoadConfigAlerts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `
alerts:
  - url: https://hooks.example.com/factorwatch
    format: pagerduty
    events: [failed, truncated]
    headers:
      Authorization: Token abc
  - url: ""
    events: [deny]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(path)
	var cfgErr *model.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if len(cfgErr.Problems) != 2 {
		t.Errorf("expected 2 problems, got %v", cfgErr.Problems)
	}
	for _, p := range cfgErr.Problems {
		if !strings.HasPrefix(p, "alerts[1]: ") {
			t.Errorf("expected problem on alerts[1], got %q", p)
		}
	}

	if err := os.WriteFile(path, []byte(content[:strings.Index(content, "  - url: \"\"")]), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Alerts) != 1 || cfg.Alerts[0].Headers["Authorization"] != "Token abc" {
		t.Errorf("unexpected alerts %+v", cfg.Alerts)
	}
}

func TestCombinationsRequiringExcludedFactor(t *testing.T) {
	cs, err := compiler.Compile(map[string]model.Scores{
		"a": {model.AttrSecurity: 8},
		"b": {model.AttrSecurity: 2},
		"c": {model.AttrSecurity: 8},
		"d": {model.AttrSecurity: 8},
	}, model.Constraints{model.AttrSecurity: model.R(6, 10)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	combos := Combinations{
		Requires: []Pair{{A: "c", B: "a"}, {A: "a", B: "b"}},
	}
	if err := combos.Apply(cs); err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(cs.Eligible(), []string{"d"}); diff != nil {
		t.Errorf("expected only d eligible: %v", diff)
	}
	reasons := map[string]string{}
	for _, ex := range cs.Excluded() {
		reasons[ex.Factor] = ex.Reason
	}
	want := map[string]string{
		"a": "requires b, which is excluded",
		"b": "Security=2 outside [6, 10]",
		"c": "requires a, which is excluded",
	}
	if diff := deep.Equal(reasons, want); diff != nil {
		t.Errorf("exclusion reasons differ: %v", diff)
	}
}
