// Package client talks to a remote factorwatch selection server.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ppiankov/factorwatch/internal/engine"
	"github.com/ppiankov/factorwatch/internal/server"
	"github.com/ppiankov/factorwatch/internal/wire"
)

// DefaultTimeout bounds every call that has no earlier deadline.
const DefaultTimeout = 5 * time.Second

// Client connects to a factorwatch gRPC selection server.
type Client struct {
	conn    *grpc.ClientConn
	client  server.SelectionServiceClient
	Timeout time.Duration
}

// New creates a gRPC client connected to the given address.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to selection server: %w", err)
	}
	return &Client{
		conn:    conn,
		client:  server.NewSelectionServiceClient(conn),
		Timeout: DefaultTimeout,
	}, nil
}

// Decide asks the remote server for a decision. A no_eligible_factor or
// truncated outcome is returned as a response with Error set, not as err.
func (c *Client) Decide(ctx context.Context, req engine.Request) (*wire.DecideResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	in, err := wire.ToStruct(req)
	if err != nil {
		return nil, err
	}
	out, err := c.client.Decide(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("selection server: %w", err)
	}

	var resp wire.DecideResponse
	if err := wire.FromStruct(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Derive asks the remote server for the constraints of a request context.
func (c *Client) Derive(ctx context.Context, req engine.Request) (*wire.DeriveResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	in, err := wire.ToStruct(req)
	if err != nil {
		return nil, err
	}
	out, err := c.client.Derive(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("selection server: %w", err)
	}

	var resp wire.DeriveResponse
	if err := wire.FromStruct(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
