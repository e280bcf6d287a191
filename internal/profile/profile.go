// Package profile stores named access contexts: the environment, device and
// user context bundles of a typical login situation, plus optional policy
// additions that apply whenever the profile is used.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/factorwatch/internal/model"
	"github.com/ppiankov/factorwatch/internal/policy"
	"github.com/ppiankov/factorwatch/internal/rule"
)

// PolicyOverrides holds rules and combinations that a profile adds.
type PolicyOverrides struct {
	Rules        []rule.Rule         `yaml:"rules"`
	Combinations policy.Combinations `yaml:"combinations"`
}

// Profile is a named, reusable access context.
type Profile struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description" json:"description"`
	Environment model.Bundle     `yaml:"environment" json:"environment"`
	Device      model.Bundle     `yaml:"device" json:"device"`
	Context     model.Bundle     `yaml:"context" json:"context"`
	Policy      *PolicyOverrides `yaml:"policy,omitempty" json:"policy,omitempty"`
}

// Dir returns the user profile directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".factorwatch", "profiles"), nil
}

// Load loads a profile by name. Checks built-in profiles first,
// then falls back to ~/.factorwatch/profiles/<name>.yaml.
func Load(name string) (*Profile, error) {
	if data, ok := builtinProfiles[name]; ok {
		p, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse built-in profile %q: %w", name, err)
		}
		return p, nil
	}

	dir, err := Dir()
	if err != nil {
		return nil, fmt.Errorf("profile %q not found (no built-in, cannot determine home dir)", name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("profile %q not found", name)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile %q: %w", name, err)
	}
	return p, nil
}

// Parse decodes and validates one profile document.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns sorted names of all available profiles (built-in + user).
func List() []string {
	seen := make(map[string]bool)
	for name := range builtinProfiles {
		seen[name] = true
	}

	if dir, err := Dir(); err == nil {
		entries, err := os.ReadDir(dir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				name := e.Name()
				if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
					seen[name[:len(name)-len(ext)]] = true
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that a profile is well-formed. Profile rules must compile.
func Validate(p *Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.Policy != nil {
		if _, err := rule.Compile(p.Policy.Rules); err != nil {
			return fmt.Errorf("profile %s: %w", p.Name, err)
		}
		for i, pair := range append(append([]policy.Pair(nil), p.Policy.Combinations.Requires...), p.Policy.Combinations.Excludes...) {
			if pair.A == "" || pair.B == "" || pair.A == pair.B {
				return fmt.Errorf("profile %s: combinations[%d]: invalid pair %s/%s", p.Name, i, pair.A, pair.B)
			}
		}
	}
	return nil
}

// Bundles returns copies of the profile bundles with overrides merged on
// top, key by key. Nested maps are replaced, not merged.
func (p *Profile) Bundles(env, device, ctx model.Bundle) (model.Bundle, model.Bundle, model.Bundle) {
	return merge(p.Environment, env), merge(p.Device, device), merge(p.Context, ctx)
}

func merge(base, over model.Bundle) model.Bundle {
	out := make(model.Bundle, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// ApplyToPolicy merges profile rules and combinations into config.
// Profile rules are prepended so their exclusions are reported first.
// Returns a new config and does not mutate the input.
func ApplyToPolicy(p *Profile, cfg *policy.PolicyConfig) *policy.PolicyConfig {
	if p.Policy == nil {
		return cfg
	}

	merged := *cfg
	merged.Rules = make([]rule.Rule, 0, len(p.Policy.Rules)+len(cfg.Rules))
	merged.Rules = append(merged.Rules, p.Policy.Rules...)
	merged.Rules = append(merged.Rules, cfg.Rules...)

	merged.Combinations.Requires = append(append([]policy.Pair(nil), cfg.Combinations.Requires...), p.Policy.Combinations.Requires...)
	merged.Combinations.Excludes = append(append([]policy.Pair(nil), cfg.Combinations.Excludes...), p.Policy.Combinations.Excludes...)
	return &merged
}
