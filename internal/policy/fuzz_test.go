package policy

import (
	"testing"
)

func FuzzParseConfig(f *testing.F) {
	// Seed with valid default config YAML
	f.Add([]byte(DefaultConfigYAML()))

	// Seed with minimal valid YAML
	f.Add([]byte(`solver:
  backend: gophersat
`))

	// Seed with a JSON rule file
	f.Add([]byte(`{"rules": [{"condition": "scores['Security'] > 7", "constraints": {"Accuracy": ">= 6"}}]}`))

	// Seed with empty
	f.Add([]byte{})

	// Seed with garbage
	f.Add([]byte(`{{{not yaml at all`))

	f.Fuzz(func(t *testing.T, data []byte) {
		// Must not panic on any input; accepted configs must validate.
		cfg, err := ParseConfig(data)
		if err != nil {
			return
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("ParseConfig accepted an invalid config: %v", err)
		}
	})
}
