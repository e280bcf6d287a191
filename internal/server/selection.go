package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "factorwatch.v1.SelectionService"

const (
	decideMethod = "/" + ServiceName + "/Decide"
	deriveMethod = "/" + ServiceName + "/Derive"
)

// SelectionServiceServer is the server API. Messages are JSON-shaped
// protobuf Structs; see package wire for their fields.
type SelectionServiceServer interface {
	Decide(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Derive(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// SelectionServiceClient is the client API.
type SelectionServiceClient interface {
	Decide(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Derive(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type selectionServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSelectionServiceClient returns a client stub over cc.
func NewSelectionServiceClient(cc grpc.ClientConnInterface) SelectionServiceClient {
	return &selectionServiceClient{cc}
}

func (c *selectionServiceClient) Decide(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, decideMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *selectionServiceClient) Derive(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, deriveMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterSelectionServiceServer registers srv on s.
func RegisterSelectionServiceServer(s grpc.ServiceRegistrar, srv SelectionServiceServer) {
	s.RegisterService(&SelectionServiceDesc, srv)
}

func unaryHandler(method string, call func(SelectionServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SelectionServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SelectionServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// SelectionServiceDesc describes the service for grpc.Server.RegisterService.
var SelectionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SelectionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Decide",
			Handler:    unaryHandler(decideMethod, SelectionServiceServer.Decide),
		},
		{
			MethodName: "Derive",
			Handler:    unaryHandler(deriveMethod, SelectionServiceServer.Derive),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "factorwatch/v1/selection.proto",
}
