// Package api serves the daemon's state and login surface over gRPC. The
// services exchange well-known protobuf types only, so their descriptors
// are declared here rather than generated.
package api

import (
	"context"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	StateServiceName = "tgchats.v1.StateService"
	AuthServiceName  = "tgchats.v1.AuthService"
	MediaServiceName = "tgchats.v1.MediaService"

	StateGetSnapshotMethod  = "/" + StateServiceName + "/GetSnapshot"
	StateGetThumbnailMethod = "/" + StateServiceName + "/GetThumbnail"
	StateWatchMethod        = "/" + StateServiceName + "/Watch"
	AuthSendCodeMethod      = "/" + AuthServiceName + "/SendCode"
	AuthSignInMethod        = "/" + AuthServiceName + "/SignIn"
	MediaDownloadMethod     = "/" + MediaServiceName + "/Download"
)

// StateServer is the read side of the daemon.
type StateServer interface {
	GetSnapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetThumbnail(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Watch(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

// AuthServer drives the phone-code login.
type AuthServer interface {
	SendCode(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	SignIn(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

var StateServiceDesc = grpc.ServiceDesc{
	ServiceName: StateServiceName,
	HandlerType: (*StateServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetSnapshot",
			Handler: unaryHandler(StateGetSnapshotMethod, func(srv any, ctx context.Context, in *emptypb.Empty) (any, error) {
				return srv.(StateServer).GetSnapshot(ctx, in)
			}),
		},
		{
			MethodName: "GetThumbnail",
			Handler: unaryHandler(StateGetThumbnailMethod, func(srv any, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
				return srv.(StateServer).GetThumbnail(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
}

var AuthServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendCode",
			Handler: unaryHandler(AuthSendCodeMethod, func(srv any, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
				return srv.(AuthServer).SendCode(ctx, in)
			}),
		},
		{
			MethodName: "SignIn",
			Handler: unaryHandler(AuthSignInMethod, func(srv any, ctx context.Context, in *structpb.Struct) (any, error) {
				return srv.(AuthServer).SignIn(ctx, in)
			}),
		},
	},
}

// MediaServer requests message media downloads.
type MediaServer interface {
	Download(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

var MediaServiceDesc = grpc.ServiceDesc{
	ServiceName: MediaServiceName,
	HandlerType: (*MediaServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Download",
			Handler: unaryHandler(MediaDownloadMethod, func(srv any, ctx context.Context, in *structpb.Struct) (any, error) {
				return srv.(MediaServer).Download(ctx, in)
			}),
		},
	},
}

// RegisterStateServer registers srv on s.
func RegisterStateServer(s grpc.ServiceRegistrar, srv StateServer) {
	s.RegisterService(&StateServiceDesc, srv)
}

// RegisterAuthServer registers srv on s.
func RegisterAuthServer(s grpc.ServiceRegistrar, srv AuthServer) {
	s.RegisterService(&AuthServiceDesc, srv)
}

// RegisterMediaServer registers srv on s.
func RegisterMediaServer(s grpc.ServiceRegistrar, srv MediaServer) {
	s.RegisterService(&MediaServiceDesc, srv)
}

// unaryHandler adapts a typed call into a grpc.MethodHandler.
func unaryHandler[Req any, PReq interface {
	*Req
}](fullMethod string, call func(srv any, ctx context.Context, in PReq) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(StateServer).Watch(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// StateClient calls a remote StateServer.
type StateClient struct {
	cc grpc.ClientConnInterface
}

func NewStateClient(cc grpc.ClientConnInterface) *StateClient {
	return &StateClient{cc: cc}
}

func (c *StateClient) GetSnapshot(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, StateGetSnapshotMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StateClient) GetThumbnail(ctx context.Context, photoID string, opts ...grpc.CallOption) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, StateGetThumbnailMethod, wrapperspb.String(photoID), out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// Watch opens the event stream. Each message is an envelope built by
// envelope.
func (c *StateClient) Watch(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &StateServiceDesc.Streams[0], StateWatchMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// AuthClient calls a remote AuthServer.
type AuthClient struct {
	cc grpc.ClientConnInterface
}

func NewAuthClient(cc grpc.ClientConnInterface) *AuthClient {
	return &AuthClient{cc: cc}
}

func (c *AuthClient) SendCode(ctx context.Context, phone string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, AuthSendCodeMethod, wrapperspb.String(phone), new(emptypb.Empty), opts...)
}

func (c *AuthClient) SignIn(ctx context.Context, phone, code, password string, opts ...grpc.CallOption) error {
	in, err := structpb.NewStruct(map[string]any{
		"phone":    phone,
		"code":     code,
		"password": password,
	})
	if err != nil {
		return err
	}
	return c.cc.Invoke(ctx, AuthSignInMethod, in, new(emptypb.Empty), opts...)
}

// MediaClient calls a remote MediaServer.
type MediaClient struct {
	cc grpc.ClientConnInterface
}

func NewMediaClient(cc grpc.ClientConnInterface) *MediaClient {
	return &MediaClient{cc: cc}
}

func (c *MediaClient) Download(ctx context.Context, chatID int64, messageID int, opts ...grpc.CallOption) error {
	in, err := structpb.NewStruct(map[string]any{
		"chat_id":    strconv.FormatInt(chatID, 10),
		"message_id": messageID,
	})
	if err != nil {
		return err
	}
	return c.cc.Invoke(ctx, MediaDownloadMethod, in, new(emptypb.Empty), opts...)
}
