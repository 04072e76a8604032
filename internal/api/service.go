package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Service names as they appear on the wire.
const (
	ChatListServiceName = "chatlist.v1.ChatListService"
	SessionServiceName  = "chatlist.v1.SessionService"
	GroupServiceName    = "chatlist.v1.GroupService"
	MessageServiceName  = "chatlist.v1.MessageService"
)

// ChatListServer serves the signed-in user's chat list.
type ChatListServer interface {
	ListEntries(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetEntry(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	MarkRead(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	WatchSnapshots(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

// SessionServer controls who is signed in.
type SessionServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SignIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SignOut(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// GroupServer administers groups in the remote store.
type GroupServer interface {
	CreateGroup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RenameGroup(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	DeleteGroup(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	AddMember(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	RemoveMember(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// MessageServer queues outgoing messages.
type MessageServer interface {
	SendText(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// unary builds a method descriptor that decodes a PReq, runs it through the
// server's interceptor chain and dispatches to call.
func unary[S any, Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](service, name string, call func(S, context.Context, PReq) (Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var chatListServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatListServiceName,
	HandlerType: (*ChatListServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatListServiceName, "ListEntries", ChatListServer.ListEntries),
		unary(ChatListServiceName, "GetEntry", ChatListServer.GetEntry),
		unary(ChatListServiceName, "MarkRead", ChatListServer.MarkRead),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchSnapshots",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(emptypb.Empty)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ChatListServer).WatchSnapshots(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
			},
		},
	},
}

var sessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", SessionServer.GetStatus),
		unary(SessionServiceName, "SignIn", SessionServer.SignIn),
		unary(SessionServiceName, "SignOut", SessionServer.SignOut),
	},
}

var groupServiceDesc = grpc.ServiceDesc{
	ServiceName: GroupServiceName,
	HandlerType: (*GroupServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(GroupServiceName, "CreateGroup", GroupServer.CreateGroup),
		unary(GroupServiceName, "RenameGroup", GroupServer.RenameGroup),
		unary(GroupServiceName, "DeleteGroup", GroupServer.DeleteGroup),
		unary(GroupServiceName, "AddMember", GroupServer.AddMember),
		unary(GroupServiceName, "RemoveMember", GroupServer.RemoveMember),
	},
}

var messageServiceDesc = grpc.ServiceDesc{
	ServiceName: MessageServiceName,
	HandlerType: (*MessageServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MessageServiceName, "SendText", MessageServer.SendText),
	},
}

// RegisterChatListServer registers srv with s.
func RegisterChatListServer(s grpc.ServiceRegistrar, srv ChatListServer) {
	s.RegisterService(&chatListServiceDesc, srv)
}

// RegisterSessionServer registers srv with s.
func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&sessionServiceDesc, srv)
}

// RegisterGroupServer registers srv with s.
func RegisterGroupServer(s grpc.ServiceRegistrar, srv GroupServer) {
	s.RegisterService(&groupServiceDesc, srv)
}

// RegisterMessageServer registers srv with s.
func RegisterMessageServer(s grpc.ServiceRegistrar, srv MessageServer) {
	s.RegisterService(&messageServiceDesc, srv)
}
