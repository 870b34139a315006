package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RunServiceName is the fully-qualified gRPC service name.
const RunServiceName = "researchtown.v1.RunService"

const (
	methodGetStatus   = "/" + RunServiceName + "/GetStatus"
	methodStop        = "/" + RunServiceName + "/Stop"
	methodWatchEvents = "/" + RunServiceName + "/WatchEvents"
)

// RunServiceServer is the server API for the run service.
//
// Messages use the well-known protobuf types so no generated code is needed:
// a status or event travels as a Struct mirroring its JSON form.
type RunServiceServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stop(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	WatchEvents(*emptypb.Empty, RunService_WatchEventsServer) error
}

// RunService_WatchEventsServer is the server side of the event stream.
type RunService_WatchEventsServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type runServiceWatchEventsServer struct {
	grpc.ServerStream
}

func (x *runServiceWatchEventsServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// RegisterRunServiceServer registers srv on s.
func RegisterRunServiceServer(s grpc.ServiceRegistrar, srv RunServiceServer) {
	s.RegisterService(&RunService_ServiceDesc, srv)
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RunServiceServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RunServiceServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func stopHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RunServiceServer).Stop(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStop}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RunServiceServer).Stop(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RunServiceServer).WatchEvents(in, &runServiceWatchEventsServer{stream})
}

// RunService_ServiceDesc is the grpc.ServiceDesc for the run service.
var RunService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: RunServiceName,
	HandlerType: (*RunServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: getStatusHandler},
		{MethodName: "Stop", Handler: stopHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchEvents", Handler: watchEventsHandler, ServerStreams: true},
	},
}

// =============================================================================
// CLIENT
// =============================================================================

// RunServiceClient is the client API for the run service.
type RunServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRunServiceClient wraps cc.
func NewRunServiceClient(cc grpc.ClientConnInterface) *RunServiceClient {
	return &RunServiceClient{cc: cc}
}

// GetStatus fetches the attached run's status.
func (c *RunServiceClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetStatus, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Stop asks the attached run to stop after its current cycle.
func (c *RunServiceClient) Stop(ctx context.Context, reason string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, methodStop, wrapperspb.String(reason), new(emptypb.Empty), opts...)
}

// WatchEvents opens the event stream. Call Recv until it returns io.EOF.
func (c *RunServiceClient) WatchEvents(ctx context.Context, opts ...grpc.CallOption) (*EventStream, error) {
	stream, err := c.cc.NewStream(ctx, &RunService_ServiceDesc.Streams[0], methodWatchEvents, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}

// EventStream is the client side of WatchEvents.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv returns the next event.
func (s *EventStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.stream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
