// Package wire holds the JSON shapes shared by the gRPC, HTTP and MCP
// transports, and the conversions between them and protobuf Structs.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/factorwatch/internal/derive"
	"github.com/ppiankov/factorwatch/internal/engine"
	"github.com/ppiankov/factorwatch/internal/model"
)

// DecideResponse is a decision plus the outcome error, if any.
// no_eligible_factor and truncated decisions carry Error alongside the
// decision body.
type DecideResponse struct {
	engine.Decision
	Error string `json:"error,omitempty"`
}

// NewDecideResponse wraps a decision. d must not be nil.
func NewDecideResponse(d *engine.Decision, err error) DecideResponse {
	resp := DecideResponse{Decision: *d}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// DeriveResponse is the result of constraint derivation alone.
type DeriveResponse struct {
	Constraints model.Constraints   `json:"constraints"`
	Adjustments []derive.Adjustment `json:"adjustments,omitempty"`
}

// FactorsResponse lists the registered factors.
type FactorsResponse struct {
	Factors []string `json:"factors"`
}

// Kind classifies errors that prevent a decision from being made.
type Kind int

const (
	KindInternal Kind = iota
	// KindInvalid is a malformed request, such as an unknown factor.
	KindInvalid
	// KindConfiguration is a policy problem on the server side.
	KindConfiguration
)

// Classify maps an error returned with a nil decision to a Kind.
func Classify(err error) Kind {
	var cfgErr *model.ConfigurationError
	switch {
	case errors.Is(err, model.ErrUnknownFactor):
		return KindInvalid
	case errors.As(err, &cfgErr):
		return KindConfiguration
	}
	return KindInternal
}

// ToStruct converts any JSON-encodable value to a protobuf Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes a protobuf Struct into v through its JSON form.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
