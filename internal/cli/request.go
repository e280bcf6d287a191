package cli

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/factorwatch/internal/engine"
)

// readRequest loads a request from a YAML or JSON file. "-" reads stdin and
// an empty path yields an empty request.
func readRequest(path string, stdin io.Reader) (engine.Request, error) {
	var req engine.Request
	if path == "" {
		return req, nil
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return req, fmt.Errorf("read request: %w", err)
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse request: %w", err)
	}
	return req, nil
}
