// Package mcp exposes factor selection as MCP tools over stdio.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/factorwatch/internal/service"
)

// Config holds MCP server configuration.
type Config struct {
	Version string
	Logger  *zap.Logger
}

// Server wraps the MCP SDK server around a selection service.
type Server struct {
	mcpServer *mcpsdk.Server
	svc       service.Selector
	logger    *zap.Logger
}

// New creates an MCP server with the factorwatch tools registered.
func New(svc service.Selector, cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{svc: svc, logger: logger}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "factorwatch",
			Version: cfg.Version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Connect serves a single session on t.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "factorwatch_decide",
		Description: "Select the authentication factor combinations acceptable for a login request. Returns every admissible combination, the derived constraints and the reason each rejected factor was excluded.",
	}, s.handleDecide)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "factorwatch_derive",
		Description: "Derive the attribute constraints for a login context without scoring factors or running the solver.",
	}, s.handleDerive)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "factorwatch_factors",
		Description: "List the authentication factors known to factorwatch.",
	}, s.handleFactors)
}
