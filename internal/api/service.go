package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "chatsync.v1.ChatSync"

// ChatSyncServer is the server side of the daemon API. Requests and responses
// are protobuf well-known types; structured payloads travel as structpb.Struct.
type ChatSyncServer interface {
	GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListConversations(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListMessages(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Send(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkRead(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
	Retry(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Discard(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Reconnect(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Refresh(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetVisible(context.Context, *wrapperspb.BoolValue) (*emptypb.Empty, error)
	SetActive(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Typing(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Watch(*wrapperspb.StringValue, grpc.ServerStreamingServer[structpb.Struct]) error
}

// ChatSyncDesc describes the service for grpc.Server.RegisterService.
var ChatSyncDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetState", ChatSyncServer.GetState),
		unary("ListConversations", ChatSyncServer.ListConversations),
		unary("ListMessages", ChatSyncServer.ListMessages),
		unary("Send", ChatSyncServer.Send),
		unary("MarkRead", ChatSyncServer.MarkRead),
		unary("Retry", ChatSyncServer.Retry),
		unary("Discard", ChatSyncServer.Discard),
		unary("Reconnect", ChatSyncServer.Reconnect),
		unary("Refresh", ChatSyncServer.Refresh),
		unary("SetVisible", ChatSyncServer.SetVisible),
		unary("SetActive", ChatSyncServer.SetActive),
		unary("Typing", ChatSyncServer.Typing),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "chatsync/v1/chatsync.proto",
}

// RegisterChatSyncServer registers srv on s.
func RegisterChatSyncServer(s grpc.ServiceRegistrar, srv ChatSyncServer) {
	s.RegisterService(&ChatSyncDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary builds the method descriptor for one request/response call, in the
// shape protoc-gen-go-grpc emits for each method.
func unary[Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](name string, call func(ChatSyncServer, context.Context, PReq) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatSyncServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatSyncServer), ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatSyncServer).Watch(in, &grpc.GenericServerStream[wrapperspb.StringValue, structpb.Struct]{ServerStream: stream})
}
