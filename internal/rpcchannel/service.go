// Package rpcchannel implements the gRPC-backed WorkerChannel described in
// SPEC_FULL.md §2.2/§6: a single unary RPC, GetStatus, carried over
// structpb.Struct payloads instead of a protoc-generated message type, so
// the wire contract is expressible with stock google.golang.org/protobuf
// types and no protoc invocation is required to produce a working
// client/server pair (SPEC_FULL.md §9 "Transport choice").
package rpcchannel

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service name carried in the wire contract.
const ServiceName = "rpcchannel.WorkerChannel"

// Response field names inside the GetStatus structpb.Struct payload.
const (
	FieldIsReady   = "is_ready"
	FieldLatencyMs = "latency_ms"
)

// WorkerChannelServer is implemented by anything that can answer a
// worker's GetStatus probe over gRPC: the real out-of-process worker
// shim, or the in-process fakeworker used in tests.
type WorkerChannelServer interface {
	GetStatus(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

// WorkerChannelClient is the client stub generated, by hand, against the
// ServiceDesc below.
type WorkerChannelClient interface {
	GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type workerChannelClient struct {
	cc grpc.ClientConnInterface
}

// NewWorkerChannelClient builds a client stub over an existing connection.
func NewWorkerChannelClient(cc grpc.ClientConnInterface) WorkerChannelClient {
	return &workerChannelClient{cc: cc}
}

func (c *workerChannelClient) GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetStatus", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func workerChannelGetStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerChannelServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/GetStatus",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorkerChannelServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// serviceDesc is the hand-written equivalent of a protoc-generated
// ServiceDesc for the single-RPC WorkerChannel service.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorkerChannelServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler:    workerChannelGetStatusHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/rpcchannel/service.go",
}

// RegisterWorkerChannelServer registers srv's GetStatus implementation on
// s under the WorkerChannel service name.
func RegisterWorkerChannelServer(s grpc.ServiceRegistrar, srv WorkerChannelServer) {
	s.RegisterService(&serviceDesc, srv)
}
