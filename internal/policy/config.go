package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/factorwatch/internal/alert"
	"github.com/ppiankov/factorwatch/internal/compiler"
	"github.com/ppiankov/factorwatch/internal/derive"
	"github.com/ppiankov/factorwatch/internal/factor"
	"github.com/ppiankov/factorwatch/internal/model"
	"github.com/ppiankov/factorwatch/internal/rule"
	"github.com/ppiankov/factorwatch/internal/solver"
)

// Pair names two factors of a cross-factor combination.
type Pair struct {
	A string `yaml:"a" json:"a"`
	B string `yaml:"b" json:"b"`
}

// Combinations adds cross-factor clauses on top of per-factor filtering.
// Requires: selecting A forces B. Excludes: A and B never appear together.
type Combinations struct {
	Requires []Pair `yaml:"requires" json:"requires,omitempty"`
	Excludes []Pair `yaml:"excludes" json:"excludes,omitempty"`
}

// Apply adds the combination clauses to cs. Pairs naming a factor that is
// not part of the decision are skipped, except that a factor requiring an
// absent or excluded one is excluded too, transitively.
func (c Combinations) Apply(cs *compiler.ClauseSet) error {
	for _, p := range c.Requires {
		_, hasA := cs.Var(p.A)
		_, hasB := cs.Var(p.B)
		if !hasA || !hasB {
			continue
		}
		if err := cs.Require(p.A, p.B); err != nil {
			return err
		}
	}
	for changed := true; changed; {
		changed = false
		for _, p := range c.Requires {
			if _, hasA := cs.Var(p.A); !hasA || cs.IsExcluded(p.A) {
				continue
			}
			reason := ""
			switch _, hasB := cs.Var(p.B); {
			case !hasB:
				reason = fmt.Sprintf("requires %s, which is not available", p.B)
			case cs.IsExcluded(p.B):
				reason = fmt.Sprintf("requires %s, which is excluded", p.B)
			default:
				continue
			}
			if err := cs.Forbid(p.A, reason); err != nil {
				return err
			}
			changed = true
		}
	}
	for _, p := range c.Excludes {
		_, hasA := cs.Var(p.A)
		_, hasB := cs.Var(p.B)
		if !hasA || !hasB {
			continue
		}
		if err := cs.Exclude(p.A, p.B); err != nil {
			return err
		}
	}
	return nil
}

// SolverConfig selects the SAT backend and bounds enumeration.
type SolverConfig struct {
	Backend      string        `yaml:"backend" json:"backend"`
	MaxSolutions int           `yaml:"max_solutions" json:"max_solutions"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

// PolicyConfig holds all configurable selection parameters.
type PolicyConfig struct {
	Constraints  derive.Config  `yaml:"constraints" json:"constraints"`
	Rules        []rule.Rule    `yaml:"rules" json:"rules"`
	Combinations Combinations   `yaml:"combinations" json:"combinations"`
	Factors      []string       `yaml:"factors" json:"factors"`
	Solver       SolverConfig   `yaml:"solver" json:"solver"`
	Alerts       []alert.Config `yaml:"alerts,omitempty" json:"alerts,omitempty"`
}

// DefaultConfig returns the built-in policy: stock derivation ranges, no
// rules, no combinations, every builtin factor.
func DefaultConfig() *PolicyConfig {
	return &PolicyConfig{
		Constraints: derive.DefaultConfig(),
		Factors:     factor.Builtin().Names(),
		Solver: SolverConfig{
			Backend:      solver.DefaultBackend,
			MaxSolutions: 4096,
			Timeout:      5 * time.Second,
		},
	}
}

// DefaultPath returns ~/.factorwatch/policy.yaml, or "" when the home
// directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".factorwatch", "policy.yaml")
}

// LoadConfig loads policy configuration from a YAML file.
// Empty path falls back to ~/.factorwatch/policy.yaml.
// Missing file returns defaults. Invalid YAML or an invalid policy returns an error.
func LoadConfig(path string) (*PolicyConfig, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads policy configuration and returns its SHA-256 hash.
// The hash is computed over the raw YAML bytes on disk.
// When no file exists (defaults used), the hash is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*PolicyConfig, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("failed to read policy config: %w", err)
		}
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, "", err
	}
	return cfg, hash, nil
}

// ParseConfig decodes YAML (or JSON) over the defaults and validates the result.
func ParseConfig(data []byte) (*PolicyConfig, error) {
	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy config: %w", err)
	}
	return cfg, nil
}

// Validate checks every section and reports all problems together.
// Fail-closed: an unknown backend or malformed rule rejects the whole policy.
func (c *PolicyConfig) Validate() error {
	var problems []string
	collect := func(section string, err error) {
		if err == nil {
			return
		}
		if cfgErr, ok := err.(*model.ConfigurationError); ok {
			for _, p := range cfgErr.Problems {
				problems = append(problems, section+": "+p)
			}
			return
		}
		problems = append(problems, section+": "+err.Error())
	}

	collect("constraints", c.Constraints.Validate())
	_, err := c.CompileRules()
	collect("rules", err)

	if c.Solver.Backend != "" {
		if _, err := solver.New(c.Solver.Backend, 0); err != nil {
			collect("solver", err)
		}
	}
	if c.Solver.MaxSolutions < 0 {
		problems = append(problems, fmt.Sprintf("solver: max_solutions must be >= 0, got %d", c.Solver.MaxSolutions))
	}
	if c.Solver.Timeout < 0 {
		problems = append(problems, fmt.Sprintf("solver: timeout must be >= 0, got %s", c.Solver.Timeout))
	}

	for _, sec := range []struct {
		kind  string
		pairs []Pair
	}{{"requires", c.Combinations.Requires}, {"excludes", c.Combinations.Excludes}} {
		for i, p := range sec.pairs {
			if strings.TrimSpace(p.A) == "" || strings.TrimSpace(p.B) == "" {
				problems = append(problems, fmt.Sprintf("combinations.%s[%d]: both a and b are required", sec.kind, i))
			} else if p.A == p.B {
				problems = append(problems, fmt.Sprintf("combinations.%s[%d]: factor %q paired with itself", sec.kind, i, p.A))
			}
		}
	}

	for i, a := range c.Alerts {
		for _, p := range a.Validate() {
			problems = append(problems, fmt.Sprintf("alerts[%d]: %s", i, p))
		}
	}

	seen := make(map[string]bool, len(c.Factors))
	for _, name := range c.Factors {
		if seen[name] {
			problems = append(problems, fmt.Sprintf("factors: duplicate %q", name))
		}
		seen[name] = true
	}

	if len(problems) > 0 {
		return &model.ConfigurationError{Source: "policy", Problems: problems}
	}
	return nil
}

// CompileRules compiles the rule list. The Set is returned even when some
// rules are malformed; those fail closed.
func (c *PolicyConfig) CompileRules() (*rule.Set, error) {
	return rule.Compile(c.Rules)
}

// DefaultConfigYAML returns a commented YAML string for init-policy.
func DefaultConfigYAML() string {
	return `# factorwatch policy configuration
# Generated by: factorwatch init-policy
#
# Decision pipeline (cannot be changed):
#   1. Score every factor listed under factors
#   2. Derive attribute constraints from context (constraints below)
#   3. Exclude factors outside a range, then factors failing an activated rule
#   4. Enumerate every non-empty combination of the remaining factors

# Attribute ranges, inclusive. Later adjustments override earlier ones.
constraints:
  base:
    Security: {min: 6, max: 10}
    Intrusiveness: {min: 0, max: 5}
    Privacy: {min: 5, max: 10}
    Accuracy: {min: 6, max: 10}
  # context.recent_failed_attempts > failed_attempts_above
  failed_attempts_above: 2
  failed_attempts:
    Security: {min: 8, max: 10}
  # context.request_security_rating == high_rating_value
  high_rating_value: high
  high_rating:
    Security: {min: 8, max: 10}
    Privacy: {min: 7, max: 10}
    Accuracy: {min: 8, max: 10}
  # Intrusiveness by time since context.device_usage.last_login_time
  recent_login_hours: 1
  recent_login: {min: 0, max: 2}
  stale_login: {min: 0, max: 4}

# Conditional rules. When condition holds for a factor, every constraint
# must hold too, or the factor is excluded. Grammar:
#   Attribute op number [and Attribute op number ...]
#   op: < > <= >= ==
# An empty condition applies to every factor.
rules: []
#  - name: intrusive-needs-accuracy
#    condition: "Intrusiveness >= 3 and Security >= 8"
#    constraints:
#      Accuracy: ">= 7"

# Cross-factor clauses.
combinations:
  requires: []
  #  - {a: facial_recognition, b: password}
  excludes: []
  #  - {a: geolocation, b: ip_address}

# Factors scored for every decision unless the request names its own.
factors:
  - battery_information
  - facial_recognition
  - fingerprint
  - geolocation
  - ip_address
  - network_flow_statistics
  - password
  - screen_frame_resolution
  - timezone

# SAT backend: gini | gophersat
# max_solutions: 0 = unbounded. timeout: 0 = none.
solver:
  backend: gini
  max_solutions: 4096
  timeout: 5s

# Webhooks notified when a decision ends with one of the listed outcomes:
# selected, no_eligible_factor, truncated, failed. format: generic | slack | pagerduty
# alerts:
#   - url: https://hooks.slack.com/services/T000/B000/XXXX
#     format: slack
#     events: [no_eligible_factor, failed]
`
}
