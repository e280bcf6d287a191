package profile

import _ "embed"

//go:embed profiles/office.yaml
var officeYAML []byte

//go:embed profiles/cafe.yaml
var cafeYAML []byte

// builtinProfiles maps profile names to their embedded YAML content.
var builtinProfiles = map[string][]byte{
	"office": officeYAML,
	"cafe":   cafeYAML,
}
