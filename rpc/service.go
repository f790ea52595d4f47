package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the name of the node RPC service.
const ServiceName = "xchain.Node"

// Full method names.
const (
	GetBlockTipMethod       = "/xchain.Node/GetBlockTip"
	GetBlockHeadersMethod   = "/xchain.Node/GetBlockHeaders"
	GetBlocksMethod         = "/xchain.Node/GetBlocks"
	SubmitTransactionMethod = "/xchain.Node/SubmitTransaction"
)

// NodeServer is the server API of the node RPC service. Payloads are ssz
// encoded inside the bytes wrappers.
type NodeServer interface {
	GetBlockTip(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	GetBlockHeaders(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	GetBlocks(*wrapperspb.BytesValue, grpc.ServerStream) error
	SubmitTransaction(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// RegisterNodeServer registers the node service on a gRPC server.
func RegisterNodeServer(s *grpc.Server, srv NodeServer) {
	s.RegisterService(&NodeServiceDesc, srv)
}

func getBlockTipHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServer).GetBlockTip(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetBlockTipMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).GetBlockTip(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getBlockHeadersHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServer).GetBlockHeaders(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetBlockHeadersMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).GetBlockHeaders(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func submitTransactionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServer).SubmitTransaction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: SubmitTransactionMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).SubmitTransaction(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func getBlocksHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(wrapperspb.BytesValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(NodeServer).GetBlocks(in, stream)
}

// NodeServiceDesc describes the node RPC service.
var NodeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NodeServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetBlockTip",
			Handler:    getBlockTipHandler,
		},
		{
			MethodName: "GetBlockHeaders",
			Handler:    getBlockHeadersHandler,
		},
		{
			MethodName: "SubmitTransaction",
			Handler:    submitTransactionHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "GetBlocks",
			Handler:       getBlocksHandler,
			ServerStreams: true,
		},
	},
	Metadata: "xchain/node.proto",
}
