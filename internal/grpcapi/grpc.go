package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "cryptonet.v1.Cryptonet"

// CryptonetServer is the server API for the Cryptonet gRPC service. Messages
// are JSON documents in well-known wrapper types, so no protoc toolchain is
// needed. Proto definition: cryptonet.proto.
type CryptonetServer interface {
	Enroll(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Predict(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	ScanFront(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	ScanBack(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Compare(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Encrypt(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	AboutModels(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// UnimplementedCryptonetServer can be embedded to have forward compatible
// implementations.
type UnimplementedCryptonetServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedCryptonetServer) Enroll(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, unimplemented("Enroll")
}
func (UnimplementedCryptonetServer) Predict(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, unimplemented("Predict")
}
func (UnimplementedCryptonetServer) ScanFront(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, unimplemented("ScanFront")
}
func (UnimplementedCryptonetServer) ScanBack(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, unimplemented("ScanBack")
}
func (UnimplementedCryptonetServer) Compare(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, unimplemented("Compare")
}
func (UnimplementedCryptonetServer) Encrypt(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, unimplemented("Encrypt")
}
func (UnimplementedCryptonetServer) AboutModels(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, unimplemented("AboutModels")
}

// RegisterCryptonetServer registers the Cryptonet service on a gRPC server.
func RegisterCryptonetServer(s grpc.ServiceRegistrar, srv CryptonetServer) {
	s.RegisterService(&Cryptonet_ServiceDesc, srv)
}

// CryptonetClient is the client API for the Cryptonet gRPC service.
type CryptonetClient interface {
	Enroll(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Predict(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	ScanFront(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	ScanBack(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Compare(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Encrypt(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	AboutModels(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
}

type cryptonetClient struct{ cc grpc.ClientConnInterface }

func NewCryptonetClient(cc grpc.ClientConnInterface) CryptonetClient {
	return &cryptonetClient{cc: cc}
}

func (c *cryptonetClient) invoke(ctx context.Context, method string, in *wrapperspb.StringValue, opts []grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *cryptonetClient) Enroll(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return c.invoke(ctx, "Enroll", in, opts)
}
func (c *cryptonetClient) Predict(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return c.invoke(ctx, "Predict", in, opts)
}
func (c *cryptonetClient) ScanFront(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return c.invoke(ctx, "ScanFront", in, opts)
}
func (c *cryptonetClient) ScanBack(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return c.invoke(ctx, "ScanBack", in, opts)
}
func (c *cryptonetClient) Compare(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return c.invoke(ctx, "Compare", in, opts)
}
func (c *cryptonetClient) Encrypt(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return c.invoke(ctx, "Encrypt", in, opts)
}
func (c *cryptonetClient) AboutModels(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return c.invoke(ctx, "AboutModels", in, opts)
}

type stringMethod func(CryptonetServer, context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)

// handler builds the unary handler for one method. All methods share the
// StringValue in/out shape.
func handler(method string, call stringMethod) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(wrapperspb.StringValue)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CryptonetServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			h := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(CryptonetServer), ctx, req.(*wrapperspb.StringValue))
			}
			return interceptor(ctx, in, info, h)
		},
	}
}

// Cryptonet_ServiceDesc is the grpc.ServiceDesc for the Cryptonet service.
var Cryptonet_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CryptonetServer)(nil),
	Methods: []grpc.MethodDesc{
		handler("Enroll", CryptonetServer.Enroll),
		handler("Predict", CryptonetServer.Predict),
		handler("ScanFront", CryptonetServer.ScanFront),
		handler("ScanBack", CryptonetServer.ScanBack),
		handler("Compare", CryptonetServer.Compare),
		handler("Encrypt", CryptonetServer.Encrypt),
		handler("AboutModels", CryptonetServer.AboutModels),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cryptonet.proto",
}
