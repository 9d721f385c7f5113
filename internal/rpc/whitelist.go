// ABOUTME: gRPC service definition for whitelist.v1.Whitelist
// ABOUTME: JSON messages travel as wrapperspb.BytesValue; client and server stubs

package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "whitelist.v1.Whitelist"

// Full method names.
const (
	Whitelist_Execute_FullMethodName     = "/whitelist.v1.Whitelist/Execute"
	Whitelist_Query_FullMethodName       = "/whitelist.v1.Whitelist/Query"
	Whitelist_Instantiate_FullMethodName = "/whitelist.v1.Whitelist/Instantiate"
)

// MetadataRequestID carries the optional execute request id.
const MetadataRequestID = "idempotency-key"

// WhitelistServer is the server API for the Whitelist service.
// Every request and response value is a JSON document.
type WhitelistServer interface {
	// Execute takes an exec message from the authenticated sender.
	Execute(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	// Query answers a query message. No identity is required.
	Query(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	// Instantiate creates the registry on an empty store.
	Instantiate(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// RegisterWhitelistServer registers srv on s.
func RegisterWhitelistServer(s grpc.ServiceRegistrar, srv WhitelistServer) {
	s.RegisterService(&Whitelist_ServiceDesc, srv)
}

func unaryHandler(fullMethod string, call func(WhitelistServer, context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(wrapperspb.BytesValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(WhitelistServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(WhitelistServer), ctx, req.(*wrapperspb.BytesValue))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Whitelist_ServiceDesc is the grpc.ServiceDesc for the Whitelist service.
var Whitelist_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WhitelistServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Execute",
			Handler:    unaryHandler(Whitelist_Execute_FullMethodName, WhitelistServer.Execute),
		},
		{
			MethodName: "Query",
			Handler:    unaryHandler(Whitelist_Query_FullMethodName, WhitelistServer.Query),
		},
		{
			MethodName: "Instantiate",
			Handler:    unaryHandler(Whitelist_Instantiate_FullMethodName, WhitelistServer.Instantiate),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "whitelist/v1/whitelist.proto",
}

// WhitelistClient is the client API for the Whitelist service.
type WhitelistClient interface {
	Execute(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Query(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Instantiate(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type whitelistClient struct {
	cc grpc.ClientConnInterface
}

// NewWhitelistClient returns a client bound to cc.
func NewWhitelistClient(cc grpc.ClientConnInterface) WhitelistClient {
	return &whitelistClient{cc: cc}
}

func (c *whitelistClient) invoke(ctx context.Context, method string, in *wrapperspb.BytesValue, opts []grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *whitelistClient) Execute(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return c.invoke(ctx, Whitelist_Execute_FullMethodName, in, opts)
}

func (c *whitelistClient) Query(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return c.invoke(ctx, Whitelist_Query_FullMethodName, in, opts)
}

func (c *whitelistClient) Instantiate(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return c.invoke(ctx, Whitelist_Instantiate_FullMethodName, in, opts)
}
