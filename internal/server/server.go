// Package server exposes the selection service over gRPC.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/factorwatch/internal/engine"
	"github.com/ppiankov/factorwatch/internal/service"
	"github.com/ppiankov/factorwatch/internal/wire"
)

// Config holds gRPC server configuration.
type Config struct {
	Port   int
	Logger *zap.Logger
}

// Server implements SelectionServiceServer on top of a service.Selector.
type Server struct {
	svc    service.Selector
	cfg    Config
	logger *zap.Logger

	grpcServer *grpc.Server
	health     *health.Server
}

// New creates a gRPC server with the selection and health services registered.
func New(svc service.Selector, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
		health: health.NewServer(),
	}
	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(s.logUnary))

	RegisterSelectionServiceServer(s.grpcServer, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve listens on the configured port until ctx is cancelled. It satisfies
// suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	s.logger.Info("grpc listening", zap.String("addr", lis.Addr().String()))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.GracefulStop()
		case <-done:
		}
	}()

	if err := s.grpcServer.Serve(lis); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// ServeOn starts the gRPC server on the given listener. For testing.
func (s *Server) ServeOn(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// GracefulStop marks the service as not serving and drains connections.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

func (s *Server) String() string { return "grpc" }

// Decide implements the Decide RPC. no_eligible_factor and truncated
// decisions are successful responses with the error field set.
func (s *Server) Decide(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req engine.Request
	if err := wire.FromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	d, err := s.svc.Decide(ctx, req)
	if d == nil {
		return nil, toStatus(err)
	}
	out, err := wire.ToStruct(wire.NewDecideResponse(d, err))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Derive implements the Derive RPC.
func (s *Server) Derive(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req engine.Request
	if err := wire.FromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	c, adj := s.svc.Derive(req)
	out, err := wire.ToStruct(wire.DeriveResponse{Constraints: c, Adjustments: adj})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	switch wire.Classify(err) {
	case wire.KindInvalid:
		return status.Error(codes.InvalidArgument, err.Error())
	case wire.KindConfiguration:
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("rpc",
		zap.String("method", info.FullMethod),
		zap.String("code", status.Code(err).String()),
		zap.Duration("elapsed", time.Since(start)))
	return resp, err
}
