package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/factorwatch/internal/engine"
	"github.com/ppiankov/factorwatch/internal/model"
	"github.com/ppiankov/factorwatch/internal/wire"
)

// DecideInput defines parameters for the factorwatch_decide tool.
type DecideInput struct {
	Environment model.Bundle            `json:"environment,omitempty" jsonschema:"environment attributes such as location and network_type"`
	Device      model.Bundle            `json:"device,omitempty" jsonschema:"device attributes such as camera and battery state"`
	Context     model.Bundle            `json:"context,omitempty" jsonschema:"login context such as recent_failed_attempts and last_login_time"`
	Factors     []string                `json:"factors,omitempty" jsonschema:"candidate factor names; defaults to the policy factor list"`
	Scores      map[string]model.Scores `json:"scores,omitempty" jsonschema:"precomputed attribute scores per factor, bypassing the built-in scorers"`
}

func (in DecideInput) request() engine.Request {
	return engine.Request{
		Environment: in.Environment,
		Device:      in.Device,
		Context:     in.Context,
		Factors:     in.Factors,
		Scores:      in.Scores,
	}
}

// DeriveInput defines parameters for the factorwatch_derive tool.
type DeriveInput struct {
	Environment model.Bundle `json:"environment,omitempty" jsonschema:"environment attributes"`
	Device      model.Bundle `json:"device,omitempty" jsonschema:"device attributes"`
	Context     model.Bundle `json:"context,omitempty" jsonschema:"login context"`
}

// FactorsInput is empty.
type FactorsInput struct{}

func (s *Server) handleDecide(ctx context.Context, _ *mcpsdk.CallToolRequest, input DecideInput) (*mcpsdk.CallToolResult, wire.DecideResponse, error) {
	d, err := s.svc.Decide(ctx, input.request())
	if d == nil {
		s.logger.Warn("mcp decide rejected", zap.Error(err))
		return nil, wire.DecideResponse{}, err
	}

	out := wire.NewDecideResponse(d, err)
	if d.Outcome == engine.OutcomeFailed {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleDerive(_ context.Context, _ *mcpsdk.CallToolRequest, input DeriveInput) (*mcpsdk.CallToolResult, wire.DeriveResponse, error) {
	c, adj := s.svc.Derive(engine.Request{
		Environment: input.Environment,
		Device:      input.Device,
		Context:     input.Context,
	})
	return nil, wire.DeriveResponse{Constraints: c, Adjustments: adj}, nil
}

func (s *Server) handleFactors(_ context.Context, _ *mcpsdk.CallToolRequest, _ FactorsInput) (*mcpsdk.CallToolResult, wire.FactorsResponse, error) {
	return nil, wire.FactorsResponse{Factors: s.svc.Factors()}, nil
}
